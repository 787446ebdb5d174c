package market

import "sync"

// Publisher is a lightweight fan-out for board updates. Publishing never
// blocks; a subscriber that falls behind loses intermediate updates, which is
// fine because every Tick carries the full merged state.
type Publisher struct {
	mu   sync.RWMutex
	subs []chan Tick
}

func NewPublisher() *Publisher {
	return &Publisher{subs: make([]chan Tick, 0)}
}

// Subscribe returns a channel receiving board updates.
func (p *Publisher) Subscribe() <-chan Tick {
	ch := make(chan Tick, 64)
	p.mu.Lock()
	p.subs = append(p.subs, ch)
	p.mu.Unlock()
	return ch
}

// Publish delivers t to every subscriber without blocking.
func (p *Publisher) Publish(t Tick) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ch := range p.subs {
		select {
		case ch <- t:
		default:
		}
	}
}
