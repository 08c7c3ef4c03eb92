package quote

import (
	"context"
	"strings"
	"time"

	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
	"github.com/google/uuid"
)

// DefaultTTL is how long a priced option can be checked out.
const DefaultTTL = 15 * time.Minute

type Store interface {
	Save(ctx context.Context, rs []shipments.QuoteReservation) error
	// Consume atomically moves reserved -> consumed when now < expiresAt.
	Consume(ctx context.Context, quoteID string, now time.Time) (*shipments.QuoteReservation, error)
}

type Service struct {
	Store Store
	TTL   time.Duration
	Now   func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultTTL
}

// Reserve stores one reservation per sibling option. All share the same expiresAt.
func (s *Service) Reserve(ctx context.Context, options []shipments.RateQuoteOption, req shipments.ShipmentRequest) ([]shipments.QuoteReservation, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl())
	out := make([]shipments.QuoteReservation, 0, len(options))
	for _, opt := range options {
		id := NewID()
		opt.QuoteID = id
		out = append(out, shipments.QuoteReservation{
			QuoteID:   id,
			Option:    opt,
			Request:   req,
			Status:    shipments.QuoteReserved,
			CreatedAt: now,
			ExpiresAt: exp,
		})
	}
	if err := s.Store.Save(ctx, out); err != nil {
		return nil, time.Time{}, err
	}
	return out, exp, nil
}

func (s *Service) Consume(ctx context.Context, quoteID string) (*shipments.QuoteReservation, error) {
	if strings.TrimSpace(quoteID) == "" {
		return nil, shipments.Invalid("quoteId", "required")
	}
	return s.Store.Consume(ctx, quoteID, s.now())
}

// NewID: 122 bit random (uuid v4), tanpa tanda hubung.
func NewID() string {
	return "qt_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
