// Package checkout runs quote selection, payment and carrier booking for one
// shipment: QUOTED -> CHECKOUT_INITIATED -> AWAITING_PAYMENT -> CONFIRMED, with
// FAILED reachable from every non-terminal state.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ariefcatur/go-shipment-booking/internal/carrier"
	"github.com/ariefcatur/go-shipment-booking/internal/payment"
	"github.com/ariefcatur/go-shipment-booking/internal/pricing"
	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
)

// DefaultLease bounds how long one process may hold a confirm claim.
const DefaultLease = 2 * time.Minute

var transitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "checkout_transitions_total",
	Help: "Checkout session transitions by target status",
}, []string{"to"})

type Store interface {
	CreateCheckout(ctx context.Context, sh *shipments.Shipment, inv *shipments.Invoice, s *shipments.CheckoutSession, ev shipments.StatusEvent) error
	GetSession(ctx context.Context, shipmentID string) (*shipments.CheckoutSession, error)
	GetShipment(ctx context.Context, id string) (*shipments.Shipment, error)
	GetInvoiceByShipment(ctx context.Context, shipmentID string) (*shipments.Invoice, error)
	SetPayment(ctx context.Context, shipmentID string, p shipments.PaymentRef) error
	ClaimConfirm(ctx context.Context, shipmentID string, now, until time.Time) (bool, error)
	// ReleaseConfirm clears the lease only if it is still the one ending at until.
	ReleaseConfirm(ctx context.Context, shipmentID string, until time.Time) error
	CompleteBooking(ctx context.Context, shipmentID string, b shipments.Booking, invStatus shipments.InvoiceStatus, paidAt *time.Time, ev shipments.StatusEvent) error
	MarkFailed(ctx context.Context, shipmentID, reason string) error
}

type Quotes interface {
	Consume(ctx context.Context, quoteID string) (*shipments.QuoteReservation, error)
}

type Carriers interface {
	Get(code string) (carrier.Adapter, error)
}

// Publisher is the fire-and-forget outbox (kafka.Producer in production).
type Publisher interface {
	Publish(topic string, key, value []byte)
}

type Service struct {
	Store    Store
	Quotes   Quotes
	Carriers Carriers
	Payments payment.Gateway
	Events   Publisher
	Log      *zap.Logger

	// PublicBaseURL dipakai untuk callback payment dan URL label lokal.
	PublicBaseURL string
	Producer      string
	LeaseTTL      time.Duration
	Now           func() time.Time

	confirms singleflight.Group
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Service) lease() time.Duration {
	if s.LeaseTTL > 0 {
		return s.LeaseTTL
	}
	return DefaultLease
}

// TrackingNumber builds the local number SHP-YYYYMMDD-XXXXXXXX.
func TrackingNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "SHP-" + now.Format("20060102") + "-" + suffix
}

// SelectQuote consumes the quote and opens a checkout session for it.
func (s *Service) SelectQuote(ctx context.Context, quoteID string) (*shipments.CheckoutSession, *shipments.Shipment, error) {
	res, err := s.Quotes.Consume(ctx, quoteID)
	if err != nil {
		return nil, nil, err
	}
	now := s.now()
	opt := res.Option

	sh := &shipments.Shipment{
		ID:                uuid.NewString(),
		TrackingNumber:    TrackingNumber(now),
		QuoteID:           res.QuoteID,
		ClientProfile:     res.Request.ClientProfile,
		Carrier:           opt.Carrier,
		ServiceType:       opt.ServiceType,
		ServiceName:       opt.ServiceName,
		Shipper:           res.Request.Shipper,
		Recipient:         res.Request.Recipient,
		Packages:          res.Request.Packages,
		BaseRate:          opt.BaseRate,
		MarginPercentage:  opt.MarginPercentage,
		MarginAmount:      opt.MarginAmount,
		FinalPrice:        opt.FinalPrice,
		Currency:          opt.Currency,
		Status:            shipments.ShipmentProcessing,
		EstimatedDelivery: opt.EstimatedDelivery,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	amount := pricing.MinorUnits(opt.FinalPrice, opt.Currency)
	inv := &shipments.Invoice{
		ID:          uuid.NewString(),
		ShipmentID:  sh.ID,
		AmountMinor: amount,
		Currency:    opt.Currency,
		Status:      shipments.InvoicePending,
		CreatedAt:   now,
	}
	sess := &shipments.CheckoutSession{
		ShipmentID:  sh.ID,
		QuoteID:     res.QuoteID,
		AmountMinor: amount,
		Currency:    opt.Currency,
		Status:      shipments.StatusCheckoutInitiated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	ev := shipments.StatusEvent{
		ShipmentID:  sh.ID,
		Status:      string(shipments.StatusCheckoutInitiated),
		Description: fmt.Sprintf("%s -> %s", shipments.StatusQuoted, shipments.StatusCheckoutInitiated),
		Source:      "checkout",
		OccurredAt:  now,
	}
	if err := s.Store.CreateCheckout(ctx, sh, inv, sess, ev); err != nil {
		return nil, nil, err
	}
	transitions.WithLabelValues(string(shipments.StatusCheckoutInitiated)).Inc()
	s.log().Info("checkout initiated",
		zap.String("shipment_id", sh.ID), zap.String("quote_id", res.QuoteID),
		zap.String("carrier", sh.Carrier), zap.Int64("amount_minor", amount))
	return sess, sh, nil
}

// InitiatePayment creates the provider payment for a CHECKOUT_INITIATED session.
// A session already AWAITING_PAYMENT returns the stored payment.
func (s *Service) InitiatePayment(ctx context.Context, shipmentID string) (*shipments.CheckoutSession, error) {
	sess, err := s.Store.GetSession(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	switch sess.Status {
	case shipments.StatusAwaitingPayment:
		return sess, nil
	case shipments.StatusCheckoutInitiated:
	default:
		return nil, fmt.Errorf("%w: payment from %s", shipments.ErrInvalidTransition, sess.Status)
	}
	sh, err := s.Store.GetShipment(ctx, shipmentID)
	if err != nil {
		return nil, err
	}

	p, err := s.Payments.CreatePayment(ctx, payment.CreateRequest{
		AmountMinor: sess.AmountMinor,
		Currency:    sess.Currency,
		Description: fmt.Sprintf("Shipment %s via %s %s", sh.TrackingNumber, sh.Carrier, sh.ServiceType),
		CallbackURL: s.PublicBaseURL + "/shipments/" + shipmentID + "/payment/callback",
		Metadata: map[string]string{
			"shipment_id":     shipmentID,
			"quote_id":        sess.QuoteID,
			"tracking_number": sh.TrackingNumber,
		},
		IdempotencyKey: "checkout:" + shipmentID,
	})
	if err != nil {
		if shipments.IsProviderRejection(err) || shipments.IsValidation(err) {
			s.fail(ctx, shipmentID, "", "payment rejected: "+err.Error())
		}
		return nil, err
	}

	ref := shipments.PaymentRef{ID: p.ID, TransactionURL: p.TransactionURL, ClientSecret: p.ClientSecret}
	if err := s.Store.SetPayment(ctx, shipmentID, ref); err != nil {
		if errors.Is(err, shipments.ErrInvalidTransition) {
			// request lain sudah lebih dulu; kembalikan yang tersimpan
			cur, gerr := s.Store.GetSession(ctx, shipmentID)
			if gerr == nil && cur.Status == shipments.StatusAwaitingPayment {
				return cur, nil
			}
		}
		return nil, err
	}
	transitions.WithLabelValues(string(shipments.StatusAwaitingPayment)).Inc()
	s.log().Info("payment initiated",
		zap.String("shipment_id", shipmentID), zap.String("payment_id", p.ID),
		zap.String("gateway", s.Payments.Name()))
	return s.Store.GetSession(ctx, shipmentID)
}

// CheckoutResult is what POST /shipments/checkout returns.
type CheckoutResult struct {
	Session  *shipments.CheckoutSession
	Shipment *shipments.Shipment
	// PaymentDeferred: provider unavailable, session masih CHECKOUT_INITIATED
	// dan payment bisa diulang lewat InitiatePayment.
	PaymentDeferred bool
}

// Checkout runs SelectQuote then InitiatePayment.
func (s *Service) Checkout(ctx context.Context, quoteID string) (*CheckoutResult, error) {
	sess, sh, err := s.SelectQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	paid, err := s.InitiatePayment(ctx, sh.ID)
	switch {
	case err == nil:
		return &CheckoutResult{Session: paid, Shipment: sh}, nil
	case errors.Is(err, shipments.ErrProviderUnavailable), errors.Is(err, shipments.ErrMockFallbackDisabled):
		s.log().Warn("payment deferred", zap.String("shipment_id", sh.ID), zap.Error(err))
		return &CheckoutResult{Session: sess, Shipment: sh, PaymentDeferred: true}, nil
	}
	return nil, err
}

// FailPayment handles a provider-reported payment failure.
func (s *Service) FailPayment(ctx context.Context, shipmentID, reason string) error {
	sess, err := s.Store.GetSession(ctx, shipmentID)
	if err != nil {
		return err
	}
	switch sess.Status {
	case shipments.StatusFailed:
		return nil
	case shipments.StatusAwaitingPayment:
	default:
		return fmt.Errorf("%w: fail payment from %s", shipments.ErrInvalidTransition, sess.Status)
	}
	if err := s.Store.MarkFailed(ctx, shipmentID, reason); err != nil {
		return err
	}
	transitions.WithLabelValues(string(shipments.StatusFailed)).Inc()
	s.publishFailed(shipmentID, sess.PaymentID, reason)
	return nil
}

// fail is best effort: the session may already be terminal.
func (s *Service) fail(ctx context.Context, shipmentID, paymentID, reason string) {
	if err := s.Store.MarkFailed(context.WithoutCancel(ctx), shipmentID, reason); err != nil {
		s.log().Warn("mark failed", zap.String("shipment_id", shipmentID), zap.Error(err))
		return
	}
	transitions.WithLabelValues(string(shipments.StatusFailed)).Inc()
	s.publishFailed(shipmentID, paymentID, reason)
}
