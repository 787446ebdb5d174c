// Package storage persists alert rules, alert history and push
// subscriptions in a local SQLite database.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"premium-watch-go/alert"
	"premium-watch-go/dispatch"
)

// rulesKey is the fixed key the rule set lives under. Rules are stored as one
// JSON array per the dashboard's original storage contract, not one row per
// rule.
const rulesKey = "alert_rules"

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS alert_history (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	title    TEXT NOT NULL,
	body     TEXT NOT NULL,
	fired_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS push_subscriptions (
	endpoint   TEXT PRIMARY KEY,
	keys       TEXT,
	created_at TIMESTAMP NOT NULL
);
`

// Store is the SQLite-backed implementation of alert.Store plus the push
// subscription book.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// modernc sqlite serializes access itself; a single connection avoids
	// SQLITE_BUSY on concurrent writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadRules reads the persisted rule set. A missing key means no rules yet.
func (s *Store) LoadRules() ([]alert.Rule, error) {
	var raw string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, rulesKey).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	var rules []alert.Rule
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	return rules, nil
}

// SaveRules replaces the persisted rule set.
func (s *Store) SaveRules(rules []alert.Rule) error {
	if rules == nil {
		rules = []alert.Rule{}
	}
	raw, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		rulesKey, string(raw))
	if err != nil {
		return fmt.Errorf("write rules: %w", err)
	}
	return nil
}

// AppendHistory records one fired alert.
func (s *Store) AppendHistory(e alert.HistoryEntry) error {
	_, err := s.db.Exec(
		`INSERT INTO alert_history (title, body, fired_at) VALUES (?, ?, ?)`,
		e.Title, e.Body, e.FiredAt.UTC())
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// LoadHistory returns the history log, newest first.
func (s *Store) LoadHistory() ([]alert.HistoryEntry, error) {
	rows, err := s.db.Query(
		`SELECT title, body, fired_at FROM alert_history ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	defer rows.Close()

	var out []alert.HistoryEntry
	for rows.Next() {
		var e alert.HistoryEntry
		if err := rows.Scan(&e.Title, &e.Body, &e.FiredAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return out, nil
}

// ClearHistory empties the history log.
func (s *Store) ClearHistory() error {
	if _, err := s.db.Exec(`DELETE FROM alert_history`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// SaveSubscription upserts a push subscription, keyed by its endpoint.
func (s *Store) SaveSubscription(sub dispatch.Subscription) error {
	keys := ""
	if len(sub.Keys) > 0 {
		keys = string(sub.Keys)
	}
	_, err := s.db.Exec(
		`INSERT INTO push_subscriptions (endpoint, keys, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(endpoint) DO UPDATE SET keys = excluded.keys`,
		sub.Endpoint, keys, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

// LoadSubscriptions returns every registered subscription.
func (s *Store) LoadSubscriptions() ([]dispatch.Subscription, error) {
	rows, err := s.db.Query(`SELECT endpoint, keys FROM push_subscriptions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("read subscriptions: %w", err)
	}
	defer rows.Close()

	var out []dispatch.Subscription
	for rows.Next() {
		var sub dispatch.Subscription
		var keys string
		if err := rows.Scan(&sub.Endpoint, &keys); err != nil {
			return nil, fmt.Errorf("scan subscription row: %w", err)
		}
		if keys != "" {
			sub.Keys = json.RawMessage(keys)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read subscriptions: %w", err)
	}
	return out, nil
}
