package tracking

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
)

// Cancel voids a booked shipment with its carrier. Only shipments that have
// not started moving can be cancelled.
func (s *Service) Cancel(ctx context.Context, shipmentID string) (*shipments.Shipment, error) {
	sh, err := s.Store.GetShipment(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	if sh.Status == shipments.ShipmentCancelled {
		return sh, nil
	}
	if sh.Status != shipments.ShipmentBooked || sh.CarrierTrackingNumber == "" {
		return nil, shipments.ErrInvalidTransition
	}
	adapter, err := s.Carriers.Get(sh.Carrier)
	if err != nil {
		return nil, err
	}
	ok, err := adapter.CancelShipment(ctx, sh.CarrierTrackingNumber)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &shipments.ProviderError{Service: sh.Carrier, Code: "cancel_rejected", Message: "carrier refused cancellation"}
	}

	at := time.Now().UTC()
	if s.Now != nil {
		at = s.Now().UTC()
	}
	ev := shipments.StatusEvent{
		ShipmentID:  sh.ID,
		Status:      string(shipments.ShipmentCancelled),
		Description: "cancelled by client",
		Source:      "api",
		OccurredAt:  at,
	}
	if err := s.Store.AppendStatus(ctx, ev, shipments.ShipmentCancelled); err != nil {
		return nil, err
	}
	s.publish(sh.ID, ev)
	s.log().Info("shipment cancelled", zap.String("shipment_id", sh.ID), zap.String("carrier", sh.Carrier))
	sh.Status = shipments.ShipmentCancelled
	return sh, nil
}
