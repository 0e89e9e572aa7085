package engine

import "sync"

// SupplyPool counts commodity units that have been sold but not yet
// allocated to any buyer.
type SupplyPool struct {
	mu        sync.Mutex
	available uint64
}

// Drain takes up to requested units out of the pool and returns how many
// were actually taken.
func (p *SupplyPool) Drain(requested uint64) uint64 {
	if requested == 0 {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	n := min(requested, p.available)
	p.available -= n
	return n
}

// Add returns amount units to the pool. It panics if the pool would exceed
// the uint64 range.
func (p *SupplyPool) Add(amount uint64) {
	if amount == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.available = mustAdd(p.available, amount, "supply")
}

// Available returns the current pool size.
func (p *SupplyPool) Available() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available
}
