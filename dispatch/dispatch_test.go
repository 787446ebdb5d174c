package dispatch

import (
	"errors"
	"sync"
	"testing"
	"time"

	"premium-watch-go/alert"
)

type recordChannel struct {
	name string
	sent []Alert
	fail error
}

func (c *recordChannel) Name() string { return c.name }

func (c *recordChannel) Send(a Alert) error {
	if c.fail != nil {
		return c.fail
	}
	c.sent = append(c.sent, a)
	return nil
}

func TestDispatcherDeliversToEveryChannel(t *testing.T) {
	a := &recordChannel{name: "a"}
	b := &recordChannel{name: "b"}
	d := New(nil, nil, a, b)
	d.Dispatch("title", "body")

	if len(a.sent) != 1 || len(b.sent) != 1 {
		t.Fatalf("expected delivery to both channels: %d/%d", len(a.sent), len(b.sent))
	}
	if a.sent[0].Title != "title" || a.sent[0].Body != "body" {
		t.Fatalf("unexpected alert %+v", a.sent[0])
	}
}

func TestDispatcherChannelFailureIsolated(t *testing.T) {
	bad := &recordChannel{name: "bad", fail: errors.New("boom")}
	good := &recordChannel{name: "good"}
	d := New(nil, nil, bad, good)
	d.Dispatch("t", "b")

	if len(good.sent) != 1 {
		t.Fatalf("failure in one channel must not block the next")
	}
}

func TestToastCoalescesExactDuplicates(t *testing.T) {
	c := NewToastChannel()
	a := Alert{Title: "Premium alert: BTC", Body: "BTC premium reached 3.00%."}
	if err := c.Send(a); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if err := c.Send(a); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if got := len(c.Pending()); got != 1 {
		t.Fatalf("exact duplicate must coalesce, got %d pending", got)
	}

	// any textual difference stacks normally
	b := a
	b.Body = "BTC premium reached 3.01%."
	if err := c.Send(b); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if got := len(c.Pending()); got != 2 {
		t.Fatalf("near duplicate must stack, got %d pending", got)
	}
}

func TestToastDismiss(t *testing.T) {
	c := NewToastChannel()
	c.Send(Alert{Title: "x", Body: "1"})
	c.Send(Alert{Title: "x", Body: "2"})

	c.Dismiss(Toast{Title: "x", Body: "1"})
	pending := c.Pending()
	if len(pending) != 1 || pending[0].Body != "2" {
		t.Fatalf("unexpected pending %+v", pending)
	}

	// dismissing something not pending is a no-op
	c.Dismiss(Toast{Title: "x", Body: "1"})
	if got := len(c.Pending()); got != 1 {
		t.Fatalf("unexpected pending count %d", got)
	}
}

func TestToastDismissedCanRepeat(t *testing.T) {
	c := NewToastChannel()
	a := Alert{Title: "x", Body: "1"}
	c.Send(a)
	c.Dismiss(Toast{Title: "x", Body: "1"})
	c.Send(a)
	if got := len(c.Pending()); got != 1 {
		t.Fatalf("dismissed toast must be showable again, got %d", got)
	}
}

type fakeNotifier struct {
	perm      Permission
	onRequest Permission
	requests  int
	shown     []string
}

func (n *fakeNotifier) Permission() Permission { return n.perm }

func (n *fakeNotifier) RequestPermission() (Permission, error) {
	n.requests++
	n.perm = n.onRequest
	return n.perm, nil
}

func (n *fakeNotifier) Show(title, body string) error {
	n.shown = append(n.shown, title)
	return nil
}

func TestNotifyGranted(t *testing.T) {
	n := &fakeNotifier{perm: PermissionGranted}
	c := NewNotifyChannel(n)
	if err := c.Send(Alert{Title: "t"}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(n.shown) != 1 || n.requests != 0 {
		t.Fatalf("granted must show without prompting: shown=%d requests=%d", len(n.shown), n.requests)
	}
}

func TestNotifyDeniedDropsSilently(t *testing.T) {
	n := &fakeNotifier{perm: PermissionDenied}
	c := NewNotifyChannel(n)
	if err := c.Send(Alert{Title: "t"}); err != nil {
		t.Fatalf("denied is not an error: %v", err)
	}
	if len(n.shown) != 0 || n.requests != 0 {
		t.Fatalf("denied must not show or prompt")
	}
}

func TestNotifyDefaultPromptsThenShows(t *testing.T) {
	n := &fakeNotifier{perm: PermissionDefault, onRequest: PermissionGranted}
	c := NewNotifyChannel(n)
	if err := c.Send(Alert{Title: "t"}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if n.requests != 1 || len(n.shown) != 1 {
		t.Fatalf("default must prompt once then show: requests=%d shown=%d", n.requests, len(n.shown))
	}
}

func TestNotifyDefaultPromptDenied(t *testing.T) {
	n := &fakeNotifier{perm: PermissionDefault, onRequest: PermissionDenied}
	c := NewNotifyChannel(n)
	if err := c.Send(Alert{Title: "t"}); err != nil {
		t.Fatalf("denied prompt is not an error: %v", err)
	}
	if len(n.shown) != 0 {
		t.Fatalf("denied prompt must not show")
	}
}

func TestNotifyConcurrentSends(t *testing.T) {
	// the registry's post-add goroutine and the engine's evaluation loop can
	// dispatch at the same time; the permission prompt path must be safe
	n := NewLogNotifier(nil, PermissionDefault)
	c := NewNotifyChannel(n)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if err := c.Send(Alert{Title: "t", Body: "b"}); err != nil {
					t.Errorf("send failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	if got := n.Permission(); got != PermissionGranted {
		t.Fatalf("expected granted after prompt, got %q", got)
	}
}

type fakePlayer struct {
	plays int
}

func (p *fakePlayer) Play() error {
	p.plays++
	return nil
}

func TestSoundGatedOnInteraction(t *testing.T) {
	p := &fakePlayer{}
	c := NewSoundChannel(p)

	if err := c.Send(Alert{}); err != nil {
		t.Fatalf("pre-interaction send is silent, not an error: %v", err)
	}
	if p.plays != 0 {
		t.Fatalf("must not play before interaction")
	}

	c.MarkInteracted()
	if err := c.Send(Alert{}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if p.plays != 1 {
		t.Fatalf("expected one play, got %d", p.plays)
	}
}

func TestHistoryChannelAppends(t *testing.T) {
	store := &memHistory{}
	c := NewHistoryChannel(store)
	fired := time.Now()
	if err := c.Send(Alert{Title: "t", Body: "b", FiredAt: fired}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(store.entries) != 1 || store.entries[0].Title != "t" {
		t.Fatalf("unexpected history %+v", store.entries)
	}
	if !store.entries[0].FiredAt.Equal(fired) {
		t.Fatalf("fired time must carry through")
	}
}

type memHistory struct {
	entries []alert.HistoryEntry
}

func (s *memHistory) LoadRules() ([]alert.Rule, error) { return nil, nil }
func (s *memHistory) SaveRules([]alert.Rule) error     { return nil }

func (s *memHistory) LoadHistory() ([]alert.HistoryEntry, error) {
	return s.entries, nil
}

func (s *memHistory) ClearHistory() error { s.entries = nil; return nil }

func (s *memHistory) AppendHistory(e alert.HistoryEntry) error {
	s.entries = append(s.entries, e)
	return nil
}
