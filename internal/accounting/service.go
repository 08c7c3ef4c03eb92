package accounting

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-shipment-booking/internal/kafka"
	"github.com/ariefcatur/go-shipment-booking/internal/redisx"
	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
)

type Service struct {
	Forwarder Forwarder
	Dedup     *redisx.Deduper
	Log       *zap.Logger
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// HandleInvoiceFinalized: dipasang sebagai handler consumer billing.invoice.finalized.
// Returning an error leaves the offset uncommitted.
func (s *Service) HandleInvoiceFinalized(ctx context.Context, m kafkago.Message) error {
	// 1) decode envelope; pesan rusak di-skip supaya partition tidak macet
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		s.log().Error("drop malformed message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != shipments.EventInvoiceFinalized {
		return nil
	}

	// 2) dedup via Redis (pakai event_id)
	if s.Dedup.Seen(ctx, env.EventID) {
		return nil
	}

	// 3) decode payload
	inv, err := kafkax.UnwrapPayload[shipments.InvoiceFinalizedPayload](env.Payload)
	if err != nil {
		s.log().Error("drop malformed invoice payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	// 4) forward
	log := s.log().With(zap.String("event_id", env.EventID), zap.String("invoice_id", inv.InvoiceID),
		zap.String("shipment_id", inv.ShipmentID))
	if err := s.Forwarder.Forward(ctx, inv); err != nil {
		log.Error("accounting sync failed", zap.Error(err))
		return err
	}
	s.Dedup.Mark(ctx, env.EventID)
	log.Info("invoice synced", zap.Int64("amount_minor", inv.AmountMinor), zap.String("currency", inv.Currency))
	return nil
}
