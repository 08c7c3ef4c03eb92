package quote

import (
	"context"
	"sync"
	"time"

	"github.com/ariefcatur/go-shipment-booking/internal/redisx"
	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
)

// MemoryStore keeps reservations until ExpiresAt plus Retention, the same
// window the Redis store gives its keys. Eviction is lazy, at most once per
// sweepEvery of store time.
type MemoryStore struct {
	Retention time.Duration

	mu        sync.Mutex
	m         map[string]*shipments.QuoteReservation
	nextSweep time.Time
}

const sweepEvery = time.Minute

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{Retention: redisx.TTLQuoteRetention, m: map[string]*shipments.QuoteReservation{}}
}

func (s *MemoryStore) Save(_ context.Context, rs []shipments.QuoteReservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var now time.Time
	for i := range rs {
		r := rs[i]
		s.m[r.QuoteID] = &r
		if r.CreatedAt.After(now) {
			now = r.CreatedAt
		}
	}
	s.sweep(now)
	return nil
}

func (s *MemoryStore) Consume(_ context.Context, quoteID string, now time.Time) (*shipments.QuoteReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep(now)
	r, ok := s.m[quoteID]
	if !ok {
		return nil, shipments.ErrQuoteNotFound
	}
	switch r.Status {
	case shipments.QuoteConsumed:
		return nil, shipments.ErrQuoteConsumed
	case shipments.QuoteExpired:
		return nil, shipments.ErrQuoteExpired
	}
	if !now.Before(r.ExpiresAt) {
		r.Status = shipments.QuoteExpired
		return nil, shipments.ErrQuoteExpired
	}
	r.Status = shipments.QuoteConsumed
	cp := *r
	return &cp, nil
}

// Len counts reservations still held, evicted ones excluded.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// sweep dipanggil dengan mu terkunci.
func (s *MemoryStore) sweep(now time.Time) {
	if now.IsZero() || now.Before(s.nextSweep) {
		return
	}
	s.nextSweep = now.Add(sweepEvery)
	for id, r := range s.m {
		if !now.Before(r.ExpiresAt.Add(s.Retention)) {
			delete(s.m, id)
		}
	}
}
