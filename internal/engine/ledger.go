package engine

import "sync"

// Crediter receives volume allocated to a user.
type Crediter interface {
	Credit(username string, amount uint64)
}

// Ledger tracks the cumulative volume allocated to every user. Totals only
// ever grow and entries are never removed.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]uint64
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]uint64)}
}

// Credit adds amount to the user's running total. A zero amount does not
// create an entry. Credit panics rather than let a total wrap around.
func (l *Ledger) Credit(username string, amount uint64) {
	if amount == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[username] = mustAdd(l.entries[username], amount, "allocation of "+username)
}

// Get returns the user's total and whether the user was ever credited.
func (l *Ledger) Get(username string) (uint64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total, ok := l.entries[username]
	return total, ok
}

// Snapshot copies the current totals.
func (l *Ledger) Snapshot() map[string]uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]uint64, len(l.entries))
	for user, total := range l.entries {
		out[user] = total
	}
	return out
}

// sumLocked requires l.mu to be held.
func (l *Ledger) sumLocked() uint64 {
	var sum uint64
	for _, total := range l.entries {
		sum += total
	}
	return sum
}
