package alert

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"premium-watch-go/infrastructure/logger"
	"premium-watch-go/market"
	"premium-watch-go/monitor"
)

// Dispatcher fans a fired alert out to the notification channels.
// Implemented by the dispatch package.
type Dispatcher interface {
	Dispatch(title, body string)
}

// Board is the read side of the price board the registry evaluates against.
type Board interface {
	Get(symbol string) (market.Tick, bool)
}

// Registry holds the active rule set and evaluates it against board updates.
//
// Fire-at-most-once: the decision that a rule matched and its removal from
// the active set happen under one lock, so a concurrent Evaluate with a
// stale snapshot cannot fire the same rule again. Dispatch runs after the
// lock is released and never blocks registry mutation.
type Registry struct {
	mu    sync.Mutex
	rules map[string]Rule

	board Board
	store Store // optional
	disp  Dispatcher
	log   *logger.Logger
	mon   *monitor.Monitor

	seq atomic.Uint64
}

// NewRegistry builds a registry, loading persisted rules when a store is
// present.
func NewRegistry(board Board, store Store, disp Dispatcher, log *logger.Logger, mon *monitor.Monitor) (*Registry, error) {
	if log == nil {
		log = logger.Nop()
	}
	r := &Registry{
		rules: make(map[string]Rule),
		board: board,
		store: store,
		disp:  disp,
		log:   log.Named("alerts"),
		mon:   mon,
	}
	if store != nil {
		rules, err := store.LoadRules()
		if err != nil {
			return nil, fmt.Errorf("load alert rules: %w", err)
		}
		for _, rule := range rules {
			r.rules[rule.ID] = rule
		}
	}
	r.mon.UpdateActiveRules(len(r.rules))
	return r, nil
}

// Add assigns a fresh unique ID, stores and persists the rule, and schedules
// an immediate one-shot evaluation in case the condition is already true.
// The evaluation is deferred to a separate goroutine so the caller never
// observes a dispatch re-entering mid-add.
func (r *Registry) Add(rule Rule) (Rule, error) {
	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}
	rule.ID = fmt.Sprintf("%d-%d", time.Now().UnixMilli(), r.seq.Add(1))
	rule.CreatedAt = time.Now()

	r.mu.Lock()
	r.rules[rule.ID] = rule
	active := len(r.rules)
	err := r.persistLocked()
	r.mu.Unlock()

	if err != nil {
		r.log.Error("persist alert rules failed", zap.Error(err))
	}
	r.mon.RecordRuleAdded()
	r.mon.UpdateActiveRules(active)
	r.log.Info("alert rule added",
		zap.String("id", rule.ID), zap.String("symbol", rule.Symbol),
		zap.String("metric", rule.Metric.String()),
		zap.String("condition", rule.Condition.String()),
		zap.Float64("threshold", rule.Threshold))

	go r.evaluateOne(rule.ID)
	return rule, nil
}

// Remove deletes the rule if present. Removing an unknown ID is a no-op, not
// an error.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	_, ok := r.rules[id]
	if ok {
		delete(r.rules, id)
	}
	active := len(r.rules)
	var err error
	if ok {
		err = r.persistLocked()
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	if err != nil {
		r.log.Error("persist alert rules failed", zap.Error(err))
	}
	r.mon.RecordRuleRemoved()
	r.mon.UpdateActiveRules(active)
	r.log.Info("alert rule removed", zap.String("id", id))
}

// Rules returns the active set, oldest first.
func (r *Registry) Rules() []Rule {
	r.mu.Lock()
	out := make([]Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Evaluate tests every active rule whose symbol appears in ticks. Matching
// rules are retired under the lock and dispatched afterwards.
func (r *Registry) Evaluate(ticks []market.Tick) {
	if len(ticks) == 0 {
		return
	}
	bySymbol := make(map[string]market.Tick, len(ticks))
	for _, t := range ticks {
		bySymbol[t.Symbol] = t
	}

	type firing struct {
		rule Rule
		tick market.Tick
	}
	var fired []firing

	r.mu.Lock()
	for id, rule := range r.rules {
		t, ok := bySymbol[rule.Symbol]
		if !ok {
			continue
		}
		if rule.Matches(t) {
			fired = append(fired, firing{rule: rule, tick: t})
			delete(r.rules, id)
		}
	}
	active := len(r.rules)
	var persistErr error
	if len(fired) > 0 {
		persistErr = r.persistLocked()
	}
	r.mu.Unlock()

	if persistErr != nil {
		r.log.Error("persist alert rules failed", zap.Error(persistErr))
	}
	for _, f := range fired {
		r.fire(f.rule, f.tick)
	}
	if len(fired) > 0 {
		r.mon.UpdateActiveRules(active)
	}
}

// evaluateOne is the deferred post-Add check against the latest known state.
func (r *Registry) evaluateOne(id string) {
	r.mu.Lock()
	rule, ok := r.rules[id]
	r.mu.Unlock()
	if !ok {
		return
	}
	t, ok := r.board.Get(rule.Symbol)
	if !ok {
		return
	}
	if !rule.Matches(t) {
		return
	}

	r.mu.Lock()
	_, still := r.rules[id]
	if still {
		delete(r.rules, id)
	}
	active := len(r.rules)
	var persistErr error
	if still {
		persistErr = r.persistLocked()
	}
	r.mu.Unlock()

	if !still {
		return
	}
	if persistErr != nil {
		r.log.Error("persist alert rules failed", zap.Error(persistErr))
	}
	r.fire(rule, t)
	r.mon.UpdateActiveRules(active)
}

func (r *Registry) fire(rule Rule, t market.Tick) {
	// The premium sentinel is 0 while either price is missing, so a
	// "below 0" rule can fire before any data arrives. Log it when it does.
	if rule.Metric == MetricPremium && !t.PricesKnown() {
		r.log.Warn("premium alert fired before both prices were known",
			zap.String("id", rule.ID), zap.String("symbol", rule.Symbol))
	}

	msg := BuildMessage(rule, rule.Metric.Value(t))
	r.mon.RecordAlertFired()
	r.log.Info("alert fired",
		zap.String("id", rule.ID), zap.String("symbol", rule.Symbol),
		zap.String("metric", rule.Metric.String()),
		zap.Float64("threshold", rule.Threshold),
		zap.Float64("value", rule.Metric.Value(t)))
	if r.disp != nil {
		r.disp.Dispatch(msg.Title, msg.Body)
	}
}

// persistLocked writes the active set through the store. Callers hold r.mu.
func (r *Registry) persistLocked() error {
	if r.store == nil {
		return nil
	}
	rules := make([]Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return r.store.SaveRules(rules)
}
