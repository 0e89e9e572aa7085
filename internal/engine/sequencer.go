package engine

import "sync/atomic"

// Sequencer hands out arrival numbers for queued bids. Numbers start at 0,
// are strictly increasing and are never handed out twice.
type Sequencer struct {
	next atomic.Uint64
}

// Next returns a fresh sequence number.
func (s *Sequencer) Next() uint64 {
	return s.next.Add(1) - 1
}

// Issued returns how many sequence numbers have been handed out so far.
func (s *Sequencer) Issued() uint64 {
	return s.next.Load()
}
