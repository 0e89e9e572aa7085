// Package engine implements the single-commodity matching core: a supply
// pool of unallocated units, a price-ordered book of standing bids and a
// per-user allocation ledger.
//
// Buy drains the supply pool and queues whatever is left as a bid. Sell
// fills the best-priced bids first, oldest first within a price, and returns
// whatever is left to the supply pool.
//
// Each resource has its own lock. When locks nest they are taken in the
// order book, ledger, supply. A Buy never holds two locks at once, so a
// concurrent observer may briefly see supply drained before the matching
// credit lands; totals add up again once the call returns.
package engine

import "github.com/vmbid/matching-engine/internal/model"

// Engine is the shared matching state. Construct one with New and inject it
// wherever it is needed.
type Engine struct {
	seq    Sequencer
	supply SupplyPool
	ledger *Ledger
	book   *BidBook
}

// New creates an engine with empty supply, book and ledger.
func New() *Engine {
	return &Engine{
		ledger: NewLedger(),
		book:   NewBidBook(),
	}
}

// BuyResult describes what happened to a buy request.
type BuyResult struct {
	Allocated uint64       // taken from the supply pool right away
	Queued    uint64       // left resting in the book
	Bid       *model.Bid   // the queued bid, nil when nothing was queued
	Fills     []model.Fill // at most one, for the allocated volume
}

// SellResult describes what happened to a sell request.
type SellResult struct {
	Allocated uint64       // delivered to resting bids
	Unmatched uint64       // returned to the supply pool
	Fills     []model.Fill // one per bid touched, in matching order
}

// Buy allocates up to volume units from the supply pool to username and
// queues the remainder as a bid at price.
func (e *Engine) Buy(username string, volume, price uint64) (BuyResult, error) {
	name, err := normalizeUsername(username)
	if err != nil {
		return BuyResult{}, err
	}
	if volume == 0 {
		return BuyResult{}, nil
	}

	var res BuyResult

	res.Allocated = e.supply.Drain(volume)
	if res.Allocated > 0 {
		e.ledger.Credit(name, res.Allocated)
		res.Fills = []model.Fill{model.NewFill(name, res.Allocated, price, model.SourceSupply, 0)}
	}

	if remainder := volume - res.Allocated; remainder > 0 {
		bid := e.book.Insert(name, remainder, price, &e.seq)
		res.Queued = remainder
		res.Bid = &bid
	}

	return res, nil
}

// Sell delivers volume units to resting bids and adds whatever no bid
// wanted to the supply pool.
func (e *Engine) Sell(volume uint64) SellResult {
	if volume == 0 {
		return SellResult{}
	}

	remaining, fills := e.book.MatchAgainst(volume, e.ledger)
	e.supply.Add(remaining)

	return SellResult{
		Allocated: volume - remaining,
		Unmatched: remaining,
		Fills:     fills,
	}
}

// Allocation returns the total volume ever allocated to username.
func (e *Engine) Allocation(username string) (uint64, error) {
	name, err := normalizeUsername(username)
	if err != nil {
		return 0, err
	}
	total, ok := e.ledger.Get(name)
	if !ok {
		return 0, &NotFoundError{Username: name}
	}
	return total, nil
}

// TotalVolume returns (supply + Σ allocations, Σ allocations + Σ open bid
// volume). Once every call has returned, the first equals the total volume
// ever sold and the second the total volume ever bought.
func (e *Engine) TotalVolume() (sold, bought uint64) {
	e.book.mu.Lock()
	defer e.book.mu.Unlock()
	e.ledger.mu.RLock()
	defer e.ledger.mu.RUnlock()
	e.supply.mu.Lock()
	defer e.supply.mu.Unlock()

	allocated := e.ledger.sumLocked()
	return e.supply.available + allocated, allocated + e.book.volume
}

// Supply returns the units currently waiting in the supply pool.
func (e *Engine) Supply() uint64 { return e.supply.Available() }

// OpenBidVolume returns the unfilled volume across all resting bids.
func (e *Engine) OpenBidVolume() uint64 { return e.book.Volume() }

// Bids returns a copy of the resting bids in matching order.
func (e *Engine) Bids() []model.Bid { return e.book.Bids() }

// Allocations returns a copy of every user's allocation total.
func (e *Engine) Allocations() map[string]uint64 { return e.ledger.Snapshot() }
