package storage

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"premium-watch-go/alert"
	"premium-watch-go/dispatch"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRulesRoundTrip(t *testing.T) {
	s := openTemp(t)

	rules, err := s.LoadRules()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(rules) != 0 {
		t.Fatalf("fresh store must have no rules")
	}

	in := []alert.Rule{
		{ID: "1", Symbol: "BTC", Metric: alert.MetricPremium, Condition: alert.Above, Threshold: 3, CreatedAt: time.Now().UTC()},
		{ID: "2", Symbol: "ETH", Metric: alert.MetricForeignPrice, Condition: alert.Below, Threshold: 4000, CreatedAt: time.Now().UTC()},
	}
	if err := s.SaveRules(in); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	out, err := s.LoadRules()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(out) != 2 || out[0].ID != "1" || out[1].Metric != alert.MetricForeignPrice {
		t.Fatalf("unexpected rules %+v", out)
	}

	// saving again replaces, never appends
	if err := s.SaveRules(in[:1]); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	out, _ = s.LoadRules()
	if len(out) != 1 {
		t.Fatalf("expected replacement, got %d rules", len(out))
	}
}

func TestHistoryAppendLoadClear(t *testing.T) {
	s := openTemp(t)

	first := alert.HistoryEntry{Title: "a", Body: "1", FiredAt: time.Now().UTC().Truncate(time.Second)}
	second := alert.HistoryEntry{Title: "b", Body: "2", FiredAt: time.Now().UTC().Truncate(time.Second)}
	if err := s.AppendHistory(first); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := s.AppendHistory(second); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	entries, err := s.LoadHistory()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	// newest first
	if entries[0].Title != "b" || entries[1].Title != "a" {
		t.Fatalf("unexpected order %+v", entries)
	}

	if err := s.ClearHistory(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	entries, _ = s.LoadHistory()
	if len(entries) != 0 {
		t.Fatalf("history must be empty after clear")
	}
}

func TestSubscriptionsUpsert(t *testing.T) {
	s := openTemp(t)

	sub := dispatch.Subscription{
		Endpoint: "https://push.example/abc",
		Keys:     json.RawMessage(`{"p256dh":"x","auth":"y"}`),
	}
	if err := s.SaveSubscription(sub); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	// same endpoint again: upsert, not duplicate
	sub.Keys = json.RawMessage(`{"p256dh":"x2","auth":"y2"}`)
	if err := s.SaveSubscription(sub); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	subs, err := s.LoadSubscriptions()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("expected 1 subscription, got %d", len(subs))
	}
	if string(subs[0].Keys) != `{"p256dh":"x2","auth":"y2"}` {
		t.Fatalf("keys must be updated, got %s", subs[0].Keys)
	}
}

func TestStoreReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := s.SaveRules([]alert.Rule{{ID: "1", Symbol: "BTC"}}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()
	rules, err := s2.LoadRules()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(rules) != 1 || rules[0].ID != "1" {
		t.Fatalf("unexpected rules %+v", rules)
	}
}
