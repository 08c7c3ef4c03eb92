package shipments

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventShipmentConfirmed = "ShipmentConfirmed"
	EventCheckoutFailed    = "CheckoutFailed"
	EventInvoiceFinalized  = "InvoiceFinalized"
	EventTrackingUpdated   = "TrackingUpdated"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "shipment-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // biasanya shipment_id
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope membungkus payload dengan metadata event versi 1.
func NewEnvelope(eventType, producer, correlationID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       b,
	}, nil
}

// ---- Payload tipe per event ----

type ShipmentConfirmedPayload struct {
	ShipmentID            string     `json:"shipment_id"`
	TrackingNumber        string     `json:"tracking_number"`
	Carrier               string     `json:"carrier"`
	ServiceType           string     `json:"service_type"`
	CarrierTrackingNumber string     `json:"carrier_tracking_number"`
	EstimatedDelivery     *time.Time `json:"estimated_delivery,omitempty"`
}

type CheckoutFailedPayload struct {
	ShipmentID string `json:"shipment_id"`
	PaymentID  string `json:"payment_id,omitempty"` // disimpan untuk rekonsiliasi manual
	Reason     string `json:"reason"`
}

type InvoiceFinalizedPayload struct {
	InvoiceID     string          `json:"invoice_id"`
	ShipmentID    string          `json:"shipment_id"`
	ClientProfile string          `json:"client_profile"`
	Customer      ShippingAddress `json:"customer"`
	AmountMinor   int64           `json:"amount_minor"`
	Currency      string          `json:"currency"`
	Status        InvoiceStatus   `json:"status"`
	PaymentID     string          `json:"payment_id,omitempty"`
	Description   string          `json:"description"`
}

type TrackingUpdatedPayload struct {
	ShipmentID string `json:"shipment_id"`
	Status     string `json:"status"`
	Location   string `json:"location,omitempty"`
	Source     string `json:"source"`
}
