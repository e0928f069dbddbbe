package domain

import (
	"sort"
	"sync"
)

// Actions carried by the levels of a full book payload.
const (
	LevelActionNew    = "new"
	LevelActionChange = "change"
	LevelActionDelete = "delete"
)

// PriceLevel is one resting level of a book side. Amount <= 0 is a deletion
// signal on the wire and is never stored.
type PriceLevel struct {
	Price  float64
	Amount float64
}

// BookLevel is a level entry of a full book payload: an action plus the level
// it applies to.
type BookLevel struct {
	Action string
	Price  float64
	Amount float64
}

// BookSnapshot is a deep copy of a book, safe to hand across goroutines.
type BookSnapshot struct {
	Instrument string
	Timestamp  int64
	Bids       []PriceLevel
	Asks       []PriceLevel
}

// OrderBook holds the reconstructed bid/ask levels of one instrument.
// Bids are sorted descending, asks ascending, no duplicate price per side.
// The dispatch goroutine writes while callers read, so every accessor locks.
type OrderBook struct {
	instrument string
	timestamp  int64
	bids       []PriceLevel
	asks       []PriceLevel

	mu sync.Mutex
}

func NewOrderBook(instrument string) *OrderBook {
	return &OrderBook{instrument: instrument}
}

func (ob *OrderBook) Instrument() string {
	return ob.instrument
}

func (ob *OrderBook) Timestamp() int64 {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.timestamp
}

// Replace swaps in the contents of a full book payload. Entries with a
// delete action are ignored: a snapshot has nothing to delete from.
func (ob *OrderBook) Replace(timestamp int64, bids, asks []BookLevel) {
	freshBids := buildSide(bids, descending)
	freshAsks := buildSide(asks, ascending)

	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.timestamp = timestamp
	ob.bids = freshBids
	ob.asks = freshAsks
}

// ApplyDelta merges incremental level changes into the book. Each side is
// processed independently; a nil side is left untouched. Within a side an
// amount > 0 updates or inserts the level at that exact price, an
// amount <= 0 removes it (no-op when absent).
func (ob *OrderBook) ApplyDelta(timestamp int64, bids, asks []PriceLevel) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.timestamp = timestamp

	if bids != nil {
		ob.bids = mergeSide(ob.bids, bids, descending)
	}
	if asks != nil {
		ob.asks = mergeSide(ob.asks, asks, ascending)
	}
}

// BestBid returns the highest bid, or a zero PriceLevel when the side is
// empty. An empty side is a valid transient market state, not an error.
func (ob *OrderBook) BestBid() PriceLevel {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	if len(ob.bids) == 0 {
		return PriceLevel{}
	}
	return ob.bids[0]
}

// BestAsk returns the lowest ask, or a zero PriceLevel when the side is empty.
func (ob *OrderBook) BestAsk() PriceLevel {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	if len(ob.asks) == 0 {
		return PriceLevel{}
	}
	return ob.asks[0]
}

// TakeSnapshot copies up to limit levels per side. limit <= 0 copies the
// whole book.
func (ob *OrderBook) TakeSnapshot(limit int) *BookSnapshot {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	return &BookSnapshot{
		Instrument: ob.instrument,
		Timestamp:  ob.timestamp,
		Bids:       copyLevels(ob.bids, limit),
		Asks:       copyLevels(ob.asks, limit),
	}
}

func copyLevels(side []PriceLevel, limit int) []PriceLevel {
	n := len(side)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]PriceLevel, n)
	copy(out, side[:n])
	return out
}

func descending(a, b PriceLevel) bool { return a.Price > b.Price }
func ascending(a, b PriceLevel) bool  { return a.Price < b.Price }

func buildSide(levels []BookLevel, less func(a, b PriceLevel) bool) []PriceLevel {
	side := make([]PriceLevel, 0, len(levels))

	for _, l := range levels {
		if l.Action == LevelActionDelete || l.Amount <= 0 {
			continue
		}

		// last write wins for a repeated price
		replaced := false
		for i := range side {
			if side[i].Price == l.Price {
				side[i].Amount = l.Amount
				replaced = true
				break
			}
		}
		if !replaced {
			side = append(side, PriceLevel{Price: l.Price, Amount: l.Amount})
		}
	}

	sort.Slice(side, func(i, j int) bool { return less(side[i], side[j]) })
	return side
}

func mergeSide(side, changes []PriceLevel, less func(a, b PriceLevel) bool) []PriceLevel {
	for _, change := range changes {
		idx := -1
		for i := range side {
			if side[i].Price == change.Price {
				idx = i
				break
			}
		}

		switch {
		case idx >= 0 && change.Amount > 0:
			side[idx].Amount = change.Amount
		case idx >= 0:
			side = append(side[:idx], side[idx+1:]...)
		case change.Amount > 0:
			side = append(side, change)
		}
		// an amount <= 0 for an absent price is a no-op
	}

	sort.Slice(side, func(i, j int) bool { return less(side[i], side[j]) })
	return side
}
