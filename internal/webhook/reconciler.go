package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-shipment-booking/internal/checkout"
	"github.com/ariefcatur/go-shipment-booking/internal/redisx"
	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
)

// MaxWebhookRetries is the attempt budget before an event goes to manual review.
const MaxWebhookRetries = 5

// Outcome of one delivery or sweep attempt.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRetry     Outcome = "retry"
	OutcomeFailed    Outcome = "failed"
)

var outcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "webhook_events_total",
	Help: "Webhook deliveries by source and outcome",
}, []string{"source", "outcome"})

type Store interface {
	InsertWebhookEvent(ctx context.Context, ev *shipments.WebhookEvent) (*shipments.WebhookEvent, bool, error)
	MarkWebhookProcessed(ctx context.Context, id string, at time.Time) error
	MarkWebhookFailure(ctx context.Context, id, msg string, maxRetries int) (int, bool, error)
	ListRetryableWebhooks(ctx context.Context, maxRetries, limit int) ([]shipments.WebhookEvent, error)
	ListFailedWebhooks(ctx context.Context, limit int) ([]shipments.WebhookEvent, error)
	GetShipment(ctx context.Context, id string) (*shipments.Shipment, error)
	GetShipmentByCarrierTracking(ctx context.Context, trackingNumber string) (*shipments.Shipment, error)
	AppendStatus(ctx context.Context, ev shipments.StatusEvent, status shipments.ShipmentStatus) error
}

type Checkout interface {
	Confirm(ctx context.Context, shipmentID, paymentID string) (*checkout.Result, error)
	FailPayment(ctx context.Context, shipmentID, reason string) error
}

// Invalidator drops cached read views of a shipment the webhook changed.
type Invalidator interface {
	Invalidate(ctx context.Context, shipmentID string)
}

// Receipt is what the HTTP layer acknowledges with 202.
type Receipt struct {
	EventID string  `json:"eventId"`
	Outcome Outcome `json:"outcome"`
	Error   string  `json:"error,omitempty"`
}

type Reconciler struct {
	Store    Store
	Checkout Checkout
	Events   checkout.Publisher
	Dedup    *redisx.Deduper
	Cache    Invalidator
	Log      *zap.Logger
	Producer string
	// AllowUnsigned accepts sources without a secret. Only set in development.
	AllowUnsigned bool
	Now           func() time.Time

	sources map[string]Source
}

func (r *Reconciler) Register(src Source) {
	if r.sources == nil {
		r.sources = map[string]Source{}
	}
	r.sources[src.Name] = src
}

// Source returns the registered source, e.g. to read its signature header.
func (r *Reconciler) Source(name string) (Source, bool) {
	s, ok := r.sources[name]
	return s, ok
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func (r *Reconciler) log() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}

func (r *Reconciler) invalidate(ctx context.Context, shipmentID string) {
	if r.Cache != nil && shipmentID != "" {
		r.Cache.Invalidate(ctx, shipmentID)
	}
}

func dedupKey(source, deliveryID string) string { return source + ":" + deliveryID }

// Receive verifies, persists and processes one delivery. Processing errors
// are recorded on the event and do not fail the call.
func (r *Reconciler) Receive(ctx context.Context, source, signature string, body []byte) (*Receipt, error) {
	src, ok := r.sources[source]
	if !ok {
		return nil, fmt.Errorf("%w: webhook source %q", shipments.ErrNotFound, source)
	}
	log := r.log().With(zap.String("source", source))

	if src.Signed() {
		if signature == "" || !src.Verifier.ValidateWebhookSignature(body, signature) {
			outcomes.WithLabelValues(source, "rejected").Inc()
			log.Warn("webhook signature rejected", zap.Int("bytes", len(body)))
			return nil, shipments.ErrSignatureInvalid
		}
	} else {
		if !r.AllowUnsigned {
			outcomes.WithLabelValues(source, "rejected").Inc()
			log.Warn("webhook secret not configured, delivery rejected")
			return nil, shipments.ErrSignatureInvalid
		}
		log.Warn("accepting unsigned webhook (development)")
	}

	ev, err := src.Parse(body)
	if err != nil {
		return nil, err
	}

	rec, inserted, err := r.Store.InsertWebhookEvent(ctx, &shipments.WebhookEvent{
		ID:             uuid.NewString(),
		Source:         source,
		DeliveryID:     ev.DeliveryID,
		EventType:      ev.Type,
		Payload:        body,
		Signature:      signature,
		SignatureValid: src.Signed(),
		CreatedAt:      r.now(),
	})
	if err != nil {
		return nil, err
	}
	if (!inserted && (rec.Processed || rec.Failed)) || r.Dedup.Seen(ctx, dedupKey(source, ev.DeliveryID)) {
		outcomes.WithLabelValues(source, string(OutcomeDuplicate)).Inc()
		log.Info("duplicate webhook", zap.String("delivery_id", ev.DeliveryID))
		return &Receipt{EventID: rec.ID, Outcome: OutcomeDuplicate}, nil
	}
	return r.process(ctx, rec, ev), nil
}

// RetryPending reprocesses stored events that have not succeeded yet and
// still have attempts left. Returns how many were processed.
func (r *Reconciler) RetryPending(ctx context.Context, limit int) (int, error) {
	evs, err := r.Store.ListRetryableWebhooks(ctx, MaxWebhookRetries, limit)
	if err != nil {
		return 0, err
	}
	done := 0
	for i := range evs {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		rec := &evs[i]
		src, ok := r.sources[rec.Source]
		if !ok {
			r.recordFailure(ctx, rec, fmt.Errorf("webhook source %q not registered", rec.Source))
			continue
		}
		ev, err := src.Parse(rec.Payload)
		if err != nil {
			r.recordFailure(ctx, rec, err)
			continue
		}
		if rc := r.process(ctx, rec, ev); rc.Outcome == OutcomeProcessed || rc.Outcome == OutcomeIgnored {
			done++
		}
	}
	return done, nil
}

func (r *Reconciler) ListFailed(ctx context.Context, limit int) ([]shipments.WebhookEvent, error) {
	return r.Store.ListFailedWebhooks(ctx, limit)
}

func (r *Reconciler) process(ctx context.Context, rec *shipments.WebhookEvent, ev *Event) *Receipt {
	log := r.log().With(zap.String("source", rec.Source), zap.String("delivery_id", rec.DeliveryID), zap.String("event_type", ev.Type))

	outcome, err := r.dispatch(ctx, rec.Source, ev)
	if err != nil {
		return r.recordFailure(ctx, rec, err)
	}
	if err := r.Store.MarkWebhookProcessed(ctx, rec.ID, r.now()); err != nil {
		log.Error("mark webhook processed", zap.Error(err))
		return &Receipt{EventID: rec.ID, Outcome: OutcomeRetry, Error: "internal"}
	}
	r.Dedup.Mark(ctx, dedupKey(rec.Source, rec.DeliveryID))
	outcomes.WithLabelValues(rec.Source, string(outcome)).Inc()
	log.Info("webhook handled", zap.String("outcome", string(outcome)))
	return &Receipt{EventID: rec.ID, Outcome: outcome}
}

func (r *Reconciler) recordFailure(ctx context.Context, rec *shipments.WebhookEvent, cause error) *Receipt {
	log := r.log().With(zap.String("source", rec.Source), zap.String("delivery_id", rec.DeliveryID))
	count, failed, err := r.Store.MarkWebhookFailure(ctx, rec.ID, cause.Error(), MaxWebhookRetries)
	if err != nil {
		log.Error("record webhook failure", zap.Error(err), zap.NamedError("cause", cause))
		return &Receipt{EventID: rec.ID, Outcome: OutcomeRetry, Error: cause.Error()}
	}
	if failed {
		outcomes.WithLabelValues(rec.Source, string(OutcomeFailed)).Inc()
		log.Error("webhook moved to manual review", zap.Int("retry_count", count), zap.Error(cause))
		return &Receipt{EventID: rec.ID, Outcome: OutcomeFailed, Error: cause.Error()}
	}
	outcomes.WithLabelValues(rec.Source, string(OutcomeRetry)).Inc()
	log.Warn("webhook processing failed", zap.Int("retry_count", count), zap.Error(cause))
	return &Receipt{EventID: rec.ID, Outcome: OutcomeRetry, Error: cause.Error()}
}

func (r *Reconciler) dispatch(ctx context.Context, source string, ev *Event) (Outcome, error) {
	switch ev.Type {
	case TypePaymentCaptured:
		if ev.ShipmentRef == "" {
			return "", shipments.Invalid("shipmentId", "payment event without shipment reference")
		}
		// replayed confirm juga dihitung sukses
		if _, err := r.Checkout.Confirm(ctx, ev.ShipmentRef, ev.PaymentID); err != nil {
			return "", err
		}
		r.invalidate(ctx, ev.ShipmentRef)
		return OutcomeProcessed, nil

	case TypePaymentFailed:
		if ev.ShipmentRef == "" {
			return "", shipments.Invalid("shipmentId", "payment event without shipment reference")
		}
		reason := ev.Description
		if reason == "" {
			reason = "payment failed"
		}
		if err := r.Checkout.FailPayment(ctx, ev.ShipmentRef, reason); err != nil {
			return "", err
		}
		r.invalidate(ctx, ev.ShipmentRef)
		return OutcomeProcessed, nil

	case TypeTrackingUpdated:
		return r.applyTracking(ctx, source, ev)
	}
	return OutcomeIgnored, nil
}

func (r *Reconciler) trackedShipment(ctx context.Context, ev *Event) (*shipments.Shipment, error) {
	if ev.ShipmentRef != "" {
		return r.Store.GetShipment(ctx, ev.ShipmentRef)
	}
	sh, err := r.Store.GetShipmentByCarrierTracking(ctx, ev.TrackingNumber)
	if errors.Is(err, shipments.ErrNotFound) {
		return nil, fmt.Errorf("no shipment for tracking number %s: %w", ev.TrackingNumber, err)
	}
	return sh, err
}

// applyTracking records a carrier scan. Shipments never booked with the
// carrier are left alone; final ones only get the history entry.
func (r *Reconciler) applyTracking(ctx context.Context, source string, ev *Event) (Outcome, error) {
	sh, err := r.trackedShipment(ctx, ev)
	if err != nil {
		return "", err
	}
	if sh.CarrierTrackingNumber == "" || sh.Status == shipments.ShipmentFailed {
		r.log().Warn("tracking update for unbooked shipment ignored",
			zap.String("shipment_id", sh.ID), zap.String("status", string(sh.Status)), zap.String("scan", ev.Status))
		return OutcomeIgnored, nil
	}
	final := sh.Status.Final()
	next := shipments.NormalizeTrackingStatus(ev.Status)
	if final {
		next = ""
	}
	shipmentID := sh.ID
	at := ev.OccurredAt
	if at.IsZero() {
		at = r.now()
	}
	se := shipments.StatusEvent{
		ShipmentID:  shipmentID,
		Status:      ev.Status,
		Description: ev.Description,
		Location:    ev.Location,
		Source:      "webhook:" + source,
		OccurredAt:  at,
	}
	if err := r.Store.AppendStatus(ctx, se, next); err != nil {
		return "", err
	}
	r.invalidate(ctx, shipmentID)
	if !final {
		r.publishTracking(shipmentID, se)
	}
	return OutcomeProcessed, nil
}

func (r *Reconciler) publishTracking(shipmentID string, se shipments.StatusEvent) {
	if r.Events == nil {
		return
	}
	env, err := shipments.NewEnvelope(shipments.EventTrackingUpdated, r.Producer, shipmentID, shipments.TrackingUpdatedPayload{
		ShipmentID: shipmentID,
		Status:     se.Status,
		Location:   se.Location,
		Source:     se.Source,
	})
	if err != nil {
		r.log().Error("build tracking envelope", zap.Error(err))
		return
	}
	b, err := json.Marshal(env)
	if err != nil {
		r.log().Error("marshal tracking envelope", zap.Error(err))
		return
	}
	r.Events.Publish(shipments.TopicTrackingUpdated, shipments.PartitionKey(shipmentID), b)
}
