package domain

import (
	"errors"
	"sync"
)

var ErrOrderBookNotFound = errors.New("order book not found")

// OrderBookStorage keeps one book per instrument. Books are created lazily on
// the first snapshot or the first delta for an instrument; the storage is
// written from the stream dispatch goroutine and read from caller context.
type OrderBookStorage struct {
	mu    sync.RWMutex
	books map[string]*OrderBook
}

func NewOrderBookStorage() *OrderBookStorage {
	return &OrderBookStorage{
		books: make(map[string]*OrderBook),
	}
}

func (s *OrderBookStorage) Get(instrument string) (*OrderBook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ob, ok := s.books[instrument]
	if !ok {
		return nil, ErrOrderBookNotFound
	}
	return ob, nil
}

// ApplySnapshot replaces the book of the instrument wholesale, creating it
// if this is the first payload seen. Returns the updated book.
func (s *OrderBookStorage) ApplySnapshot(instrument string, timestamp int64, bids, asks []BookLevel) *OrderBook {
	ob := s.getOrCreate(instrument)
	ob.Replace(timestamp, bids, asks)
	return ob
}

// ApplyDelta merges incremental changes into the instrument's book, creating
// an empty book first if none exists yet. Returns the updated book.
func (s *OrderBookStorage) ApplyDelta(instrument string, timestamp int64, bids, asks []PriceLevel) *OrderBook {
	ob := s.getOrCreate(instrument)
	ob.ApplyDelta(timestamp, bids, asks)
	return ob
}

func (s *OrderBookStorage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.books)
}

func (s *OrderBookStorage) getOrCreate(instrument string) *OrderBook {
	s.mu.Lock()
	defer s.mu.Unlock()

	ob, ok := s.books[instrument]
	if !ok {
		ob = NewOrderBook(instrument)
		s.books[instrument] = ob
	}
	return ob
}
