package checkout

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
)

// DiscardPublisher drops every event. Dipakai saat Kafka tidak dikonfigurasi.
type DiscardPublisher struct{}

func (DiscardPublisher) Publish(string, []byte, []byte) {}

func (s *Service) emit(topic, eventType, shipmentID string, payload any) {
	if s.Events == nil {
		return
	}
	env, err := shipments.NewEnvelope(eventType, s.Producer, shipmentID, payload)
	if err != nil {
		s.log().Error("build envelope", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	b, err := json.Marshal(env)
	if err != nil {
		s.log().Error("marshal envelope", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	s.Events.Publish(topic, shipments.PartitionKey(shipmentID), b)
}

func (s *Service) publishConfirmed(sh *shipments.Shipment, paymentID string) {
	s.emit(shipments.TopicShipmentConfirmed, shipments.EventShipmentConfirmed, sh.ID, shipments.ShipmentConfirmedPayload{
		ShipmentID:            sh.ID,
		TrackingNumber:        sh.TrackingNumber,
		Carrier:               sh.Carrier,
		ServiceType:           sh.ServiceType,
		CarrierTrackingNumber: sh.CarrierTrackingNumber,
		EstimatedDelivery:     sh.EstimatedDelivery,
	})

	inv, err := s.Store.GetInvoiceByShipment(context.Background(), sh.ID)
	if err != nil {
		s.log().Warn("load invoice for event", zap.String("shipment_id", sh.ID), zap.Error(err))
		return
	}
	if inv.PaymentID == "" {
		inv.PaymentID = paymentID
	}
	s.emit(shipments.TopicInvoiceFinalized, shipments.EventInvoiceFinalized, sh.ID, shipments.InvoiceFinalizedPayload{
		InvoiceID:     inv.ID,
		ShipmentID:    sh.ID,
		ClientProfile: sh.ClientProfile,
		Customer:      sh.Shipper,
		AmountMinor:   inv.AmountMinor,
		Currency:      inv.Currency,
		Status:        inv.Status,
		PaymentID:     inv.PaymentID,
		Description:   "Shipment " + sh.TrackingNumber + " (" + sh.Carrier + " " + sh.ServiceName + ")",
	})
}

func (s *Service) publishFailed(shipmentID, paymentID, reason string) {
	s.emit(shipments.TopicCheckoutFailed, shipments.EventCheckoutFailed, shipmentID, shipments.CheckoutFailedPayload{
		ShipmentID: shipmentID,
		PaymentID:  paymentID,
		Reason:     reason,
	})
}
