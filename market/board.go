package market

import (
	"sort"
	"sync"
	"time"

	"premium-watch-go/monitor"
)

// Board maintains the canonical per-symbol state merged from both feeds.
//
// Records are seeded with zero values for every tracked symbol at
// construction and never deleted. Each apply is a merge: only the fields the
// raw tick carries are overwritten, everything else carries forward. Feed
// goroutines are the only writers; readers take snapshots.
type Board struct {
	mu    sync.RWMutex
	ticks map[string]*Tick
	rate  float64 // USD/KRW

	pub *Publisher
	mon *monitor.Monitor
}

// NewBoard seeds a board with zero-valued records for symbols and the given
// starting exchange rate.
func NewBoard(symbols []string, defaultRate float64, pub *Publisher, mon *monitor.Monitor) *Board {
	if pub == nil {
		pub = NewPublisher()
	}
	ticks := make(map[string]*Tick, len(symbols))
	for _, sym := range symbols {
		ticks[sym] = &Tick{Symbol: sym}
	}
	return &Board{
		ticks: ticks,
		rate:  defaultRate,
		pub:   pub,
		mon:   mon,
	}
}

// ApplyDomestic merges a domestic tick. Unknown symbols are ignored: the
// tracked set is fixed at construction.
func (b *Board) ApplyDomestic(symbol string, price, volume, changePct float64, ts time.Time) {
	b.mu.Lock()
	t, ok := b.ticks[symbol]
	if !ok {
		b.mu.Unlock()
		return
	}
	t.DomesticPrice = price
	t.DomesticVolume = volume
	t.ChangePct24h = changePct
	t.LastSide = SideDomestic
	t.UpdatedAt = ts
	t.PremiumPct = ComputePremium(t.DomesticPrice, t.ForeignPrice, b.rate)
	out := *t
	b.mu.Unlock()

	b.mon.UpdatePrices(symbol, out.DomesticPrice, out.ForeignPrice, out.PremiumPct)
	b.pub.Publish(out)
}

// ApplyForeign merges a foreign tick.
func (b *Board) ApplyForeign(symbol string, price, volume float64, ts time.Time) {
	b.mu.Lock()
	t, ok := b.ticks[symbol]
	if !ok {
		b.mu.Unlock()
		return
	}
	t.ForeignPrice = price
	t.ForeignVolume = volume
	t.LastSide = SideForeign
	t.UpdatedAt = ts
	t.PremiumPct = ComputePremium(t.DomesticPrice, t.ForeignPrice, b.rate)
	out := *t
	b.mu.Unlock()

	b.mon.UpdatePrices(symbol, out.DomesticPrice, out.ForeignPrice, out.PremiumPct)
	b.pub.Publish(out)
}

// SetRate updates the USD/KRW rate and recomputes every premium. Each
// affected record is republished so alert evaluation sees the new premiums.
func (b *Board) SetRate(rate float64) {
	if rate <= 0 {
		return
	}
	b.mu.Lock()
	b.rate = rate
	updated := make([]Tick, 0, len(b.ticks))
	for _, t := range b.ticks {
		t.PremiumPct = ComputePremium(t.DomesticPrice, t.ForeignPrice, rate)
		updated = append(updated, *t)
	}
	b.mu.Unlock()

	b.mon.UpdateFXRate(rate)
	for _, t := range updated {
		b.mon.UpdatePrices(t.Symbol, t.DomesticPrice, t.ForeignPrice, t.PremiumPct)
		b.pub.Publish(t)
	}
}

// Rate returns the current USD/KRW rate.
func (b *Board) Rate() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.rate
}

// Get returns the record for symbol.
func (b *Board) Get(symbol string) (Tick, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.ticks[symbol]
	if !ok {
		return Tick{}, false
	}
	return *t, true
}

// Snapshot returns a copy of every record, sorted by symbol.
func (b *Board) Snapshot() []Tick {
	b.mu.RLock()
	out := make([]Tick, 0, len(b.ticks))
	for _, t := range b.ticks {
		out = append(out, *t)
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Symbols returns the tracked symbol set, sorted.
func (b *Board) Symbols() []string {
	b.mu.RLock()
	out := make([]string, 0, len(b.ticks))
	for sym := range b.ticks {
		out = append(out, sym)
	}
	b.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Updates exposes the underlying publisher's subscription.
func (b *Board) Updates() <-chan Tick {
	return b.pub.Subscribe()
}
