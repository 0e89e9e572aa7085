package engine

import (
	"sync"

	"github.com/tidwall/btree"

	"github.com/vmbid/matching-engine/internal/model"
)

// priceLevel holds the bids resting at one price, oldest first.
type priceLevel struct {
	price  uint64
	queue  []*model.Bid
	volume uint64
}

func (l *priceLevel) push(b *model.Bid) {
	l.queue = append(l.queue, b)
	l.volume += b.Volume
}

func (l *priceLevel) front() *model.Bid {
	return l.queue[0]
}

func (l *priceLevel) pop() {
	l.queue[0] = nil
	l.queue = l.queue[1:]
}

func (l *priceLevel) empty() bool {
	return len(l.queue) == 0
}

// BidBook keeps pending bids grouped by price. Matching walks prices from
// highest to lowest and serves each price level strictly in seq order.
type BidBook struct {
	mu     sync.Mutex
	levels *btree.Map[uint64, *priceLevel]
	volume uint64 // Σ outstanding bid volume
	count  int
}

// NewBidBook creates an empty book.
func NewBidBook() *BidBook {
	return &BidBook{
		levels: btree.NewMap[uint64, *priceLevel](32),
	}
}

// Insert queues a new bid at the back of its price level. The seq is drawn
// while the book is locked, so a later seq never rests ahead of an earlier one.
func (b *BidBook) Insert(username string, volume, price uint64, seq *Sequencer) model.Bid {
	if volume == 0 {
		panic("engine: refusing to queue a zero-volume bid")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	total := mustAdd(b.volume, volume, "open bid volume")

	bid := &model.Bid{
		Username: username,
		Volume:   volume,
		Price:    price,
		Seq:      seq.Next(),
	}

	lvl, ok := b.levels.Get(price)
	if !ok {
		lvl = &priceLevel{price: price}
		b.levels.Set(price, lvl)
	}
	lvl.push(bid)
	b.volume = total
	b.count++

	return *bid
}

// MatchAgainst allocates up to volume units to resting bids, best price
// first and oldest first within a price. Every match is credited through
// sink while the book is still locked. It returns the volume that found no
// bid, together with one fill per bid touched.
func (b *BidBook) MatchAgainst(volume uint64, sink Crediter) (uint64, []model.Fill) {
	if volume == 0 {
		return 0, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	remaining := volume
	var fills []model.Fill

	for remaining > 0 {
		price, lvl, ok := b.levels.Max()
		if !ok {
			break
		}

		for remaining > 0 && !lvl.empty() {
			bid := lvl.front()
			matched := min(remaining, bid.Volume)

			sink.Credit(bid.Username, matched)
			fills = append(fills, model.NewFill(bid.Username, matched, bid.Price, model.SourceBid, bid.Seq))

			bid.Volume -= matched
			lvl.volume -= matched
			b.volume -= matched
			remaining -= matched

			if bid.Volume == 0 {
				lvl.pop()
				b.count--
			}
		}

		if lvl.empty() {
			b.levels.Delete(price)
		}
	}

	return remaining, fills
}

// Volume returns the outstanding volume across all bids.
func (b *BidBook) Volume() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.volume
}

// Len returns the number of resting bids.
func (b *BidBook) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Levels returns the number of distinct prices with resting bids.
func (b *BidBook) Levels() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.levels.Len()
}

// Bids copies the resting bids in matching order: price descending, seq
// ascending within a price.
func (b *BidBook) Bids() []model.Bid {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]model.Bid, 0, b.count)
	b.levels.Reverse(func(_ uint64, lvl *priceLevel) bool {
		for _, bid := range lvl.queue {
			out = append(out, *bid)
		}
		return true
	})
	return out
}
