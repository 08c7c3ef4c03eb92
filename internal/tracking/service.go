// Package tracking pulls carrier tracking and folds it into shipment history.
package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-shipment-booking/internal/carrier"
	"github.com/ariefcatur/go-shipment-booking/internal/checkout"
	"github.com/ariefcatur/go-shipment-booking/internal/redisx"
	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
)

type Store interface {
	GetShipment(ctx context.Context, id string) (*shipments.Shipment, error)
	AppendStatus(ctx context.Context, ev shipments.StatusEvent, status shipments.ShipmentStatus) error
	ListActiveShipments(ctx context.Context, limit int) ([]shipments.Shipment, error)
}

type Service struct {
	Store    Store
	Carriers checkout.Carriers
	Events   checkout.Publisher
	Cache    *redisx.ShipmentCache
	Log      *zap.Logger
	Producer string
	Now      func() time.Time
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// Track returns the carrier view of a booked shipment and appends a history
// entry when the carrier status moved. source names the caller for history.
func (s *Service) Track(ctx context.Context, shipmentID, source string) (*carrier.TrackingResult, error) {
	sh, err := s.Store.GetShipment(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	return s.refresh(ctx, sh, source)
}

func (s *Service) refresh(ctx context.Context, sh *shipments.Shipment, source string) (*carrier.TrackingResult, error) {
	if sh.CarrierTrackingNumber == "" {
		return nil, shipments.Invalid("shipment", "not booked with a carrier yet")
	}
	adapter, err := s.Carriers.Get(sh.Carrier)
	if err != nil {
		return nil, err
	}
	tr, err := adapter.TrackShipment(ctx, sh.CarrierTrackingNumber)
	if err != nil {
		return nil, err
	}

	next := shipments.NormalizeTrackingStatus(tr.Status)
	if next == "" || next == sh.Status || sh.Status.Final() {
		return tr, nil
	}
	ev := shipments.StatusEvent{
		ShipmentID: sh.ID,
		Status:     tr.Status,
		Source:     source,
		OccurredAt: time.Now().UTC(),
	}
	if s.Now != nil {
		ev.OccurredAt = s.Now().UTC()
	}
	if n := len(tr.Events); n > 0 {
		last := tr.Events[n-1]
		ev.Description = last.Description
		ev.Location = last.Location
		if !last.OccurredAt.IsZero() {
			ev.OccurredAt = last.OccurredAt
		}
	}
	if err := s.Store.AppendStatus(ctx, ev, next); err != nil {
		return nil, err
	}
	s.Cache.Invalidate(ctx, sh.ID)
	s.publish(sh.ID, ev)
	s.log().Info("tracking status changed",
		zap.String("shipment_id", sh.ID), zap.String("from", string(sh.Status)), zap.String("to", string(next)))
	return tr, nil
}

// RefreshActive walks booked and in-transit shipments. Per-shipment errors
// are logged and counted, they never stop the batch.
func (s *Service) RefreshActive(ctx context.Context, limit int) (updated, failed int, err error) {
	list, err := s.Store.ListActiveShipments(ctx, limit)
	if err != nil {
		return 0, 0, err
	}
	for i := range list {
		if ctx.Err() != nil {
			return updated, failed, ctx.Err()
		}
		sh := &list[i]
		before := sh.Status
		tr, err := s.refresh(ctx, sh, "tracking-refresh")
		if err != nil {
			failed++
			lvl := s.log().Warn
			if errors.Is(err, shipments.ErrProviderUnavailable) {
				lvl = s.log().Info
			}
			lvl("tracking refresh failed", zap.String("shipment_id", sh.ID), zap.Error(err))
			continue
		}
		if n := shipments.NormalizeTrackingStatus(tr.Status); n != "" && n != before {
			updated++
		}
	}
	return updated, failed, nil
}

func (s *Service) publish(shipmentID string, ev shipments.StatusEvent) {
	if s.Events == nil {
		return
	}
	env, err := shipments.NewEnvelope(shipments.EventTrackingUpdated, s.Producer, shipmentID, shipments.TrackingUpdatedPayload{
		ShipmentID: shipmentID, Status: ev.Status, Location: ev.Location, Source: ev.Source,
	})
	if err != nil {
		s.log().Error("build tracking envelope", zap.Error(err))
		return
	}
	b, err := json.Marshal(env)
	if err != nil {
		s.log().Error("marshal tracking envelope", zap.Error(err))
		return
	}
	s.Events.Publish(shipments.TopicTrackingUpdated, shipments.PartitionKey(shipmentID), b)
}
