package domain

import (
	"sync"
)

// BookCallback is invoked inline by the stream dispatch goroutine with the
// updated book. It must not block, or it stalls all subsequent frame
// processing for the session.
type BookCallback func(*OrderBook)

// SubscriptionRegistry maps an instrument to its subscriber callback. At most
// one callback per instrument; a second subscribe replaces the first.
type SubscriptionRegistry struct {
	mu   sync.Mutex
	subs map[string]BookCallback
}

func NewSubscriptionRegistry() *SubscriptionRegistry {
	return &SubscriptionRegistry{
		subs: make(map[string]BookCallback),
	}
}

func (r *SubscriptionRegistry) Subscribe(instrument string, cb BookCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[instrument] = cb
}

// Unsubscribe removes the registration if present. Unsubscribing an unknown
// instrument is a no-op.
func (r *SubscriptionRegistry) Unsubscribe(instrument string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, instrument)
}

// Dispatch invokes the registered callback with the updated book. A missing
// callback silently drops the update: a late-arriving update can race an
// in-flight unsubscribe.
func (r *SubscriptionRegistry) Dispatch(instrument string, ob *OrderBook) {
	r.mu.Lock()
	cb := r.subs[instrument]
	r.mu.Unlock()

	if cb != nil {
		cb(ob)
	}
}

func (r *SubscriptionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

func (r *SubscriptionRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = make(map[string]BookCallback)
}
