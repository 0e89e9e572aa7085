// Package model defines the core domain types shared across the matching engine.
// Volumes and prices are whole commodity units, never fractional.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Bid is a standing request to buy Volume units at Price. Username, Price and
// Seq are fixed at creation; Volume is the unfilled remainder and only ever
// shrinks while the bid rests in the book.
type Bid struct {
	Username string `json:"username"`
	Volume   uint64 `json:"volume"`
	Price    uint64 `json:"price"`
	Seq      uint64 `json:"seq"`
}

// FillSource says what a fill was matched against.
type FillSource string

const (
	// SourceSupply marks volume a buyer took straight from the supply pool.
	SourceSupply FillSource = "supply"
	// SourceBid marks volume a seller delivered to a resting bid.
	SourceBid FillSource = "bid"
)

// Fill is an immutable record of volume allocated to a user.
// Once created, fills are never modified or deleted.
type Fill struct {
	ID        string     `json:"id" db:"id"`
	Username  string     `json:"username" db:"username"`
	Volume    uint64     `json:"volume" db:"volume"`
	Price     uint64     `json:"price" db:"price"`
	Source    FillSource `json:"source" db:"source"`
	BidSeq    uint64     `json:"bid_seq" db:"bid_seq"` // only meaningful for SourceBid
	Timestamp time.Time  `json:"timestamp" db:"timestamp"`
}

// NewFill stamps a fill with a fresh ID and the current time.
func NewFill(username string, volume, price uint64, source FillSource, bidSeq uint64) Fill {
	return Fill{
		ID:        uuid.New().String(),
		Username:  username,
		Volume:    volume,
		Price:     price,
		Source:    source,
		BidSeq:    bidSeq,
		Timestamp: time.Now().UTC(),
	}
}
