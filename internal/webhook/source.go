// Package webhook ingests provider callbacks: verify, persist, dedup, dispatch.
package webhook

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"

	"github.com/ariefcatur/go-shipment-booking/internal/payment"
	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
)

// Normalized event types. Anything else is recorded and ignored.
const (
	TypePaymentCaptured = "payment.captured"
	TypePaymentFailed   = "payment.failed"
	TypeTrackingUpdated = "tracking.updated"
)

// Event is a provider payload reduced to what the reconciler acts on.
type Event struct {
	DeliveryID     string    `json:"deliveryId"`
	Type           string    `json:"type"`
	ShipmentRef    string    `json:"shipmentId,omitempty"`
	PaymentID      string    `json:"paymentId,omitempty"`
	TrackingNumber string    `json:"trackingNumber,omitempty"`
	Status         string    `json:"status,omitempty"`
	Location       string    `json:"location,omitempty"`
	Description    string    `json:"description,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// Verifier is satisfied by payment.Gateway and carrier.Adapter.
type Verifier interface {
	ValidateWebhookSignature(payload []byte, signature string) bool
}

type Parser func(payload []byte) (*Event, error)

// Source is one webhook sender. Secret kosong = unsigned (hanya boleh di development).
type Source struct {
	Name     string
	Header   string
	Secret   string
	Verifier Verifier
	Parse    Parser
}

func (s Source) Signed() bool { return s.Secret != "" && s.Verifier != nil }

// fallbackDeliveryID is used when a provider omits an event id.
func fallbackDeliveryID(payload []byte) string {
	sum := sha256.Sum256(payload)
	return "sha256:" + hex.EncodeToString(sum[:16])
}

func StripeSource(secret string, v Verifier) Source {
	return Source{Name: "stripe", Header: "Stripe-Signature", Secret: secret, Verifier: v, Parse: ParseStripe}
}

func HostedSource(secret string, v Verifier) Source {
	return Source{Name: "hosted", Header: "X-Signature", Secret: secret, Verifier: v, Parse: ParseHosted}
}

func FedExSource(secret string, v Verifier) Source {
	return Source{Name: "fedex", Header: "X-FedEx-Signature", Secret: secret, Verifier: v, Parse: ParseFedEx}
}

func MockSource(secret string, v Verifier) Source {
	return Source{Name: "mock", Header: "X-Webhook-Signature", Secret: secret, Verifier: v, Parse: ParseMock}
}

func ParseStripe(payload []byte) (*Event, error) {
	var se stripe.Event
	if err := json.Unmarshal(payload, &se); err != nil {
		return nil, shipments.Invalid("body", "malformed stripe event")
	}
	if se.ID == "" {
		return nil, shipments.Invalid("id", "required")
	}
	ev := &Event{DeliveryID: se.ID, Type: string(se.Type), OccurredAt: time.Unix(se.Created, 0).UTC()}

	switch string(se.Type) {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
	default:
		return ev, nil
	}
	if se.Data == nil || len(se.Data.Raw) == 0 {
		return nil, shipments.Invalid("data.object", "required")
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(se.Data.Raw, &pi); err != nil {
		return nil, shipments.Invalid("data.object", "malformed payment intent")
	}
	ev.PaymentID = pi.ID
	ev.ShipmentRef = pi.Metadata["shipment_id"]
	ev.Status = string(pi.Status)
	if string(se.Type) == "payment_intent.succeeded" {
		ev.Type = TypePaymentCaptured
		return ev, nil
	}
	ev.Type = TypePaymentFailed
	ev.Description = string(se.Type)
	if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
		ev.Description = pi.LastPaymentError.Msg
	}
	return ev, nil
}

type hostedEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
	Data      struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		Reference     string `json:"reference"`
		FailureReason string `json:"failureReason"`
	} `json:"data"`
}

func ParseHosted(payload []byte) (*Event, error) {
	var he hostedEvent
	if err := json.Unmarshal(payload, &he); err != nil {
		return nil, shipments.Invalid("body", "malformed event")
	}
	ev := &Event{
		DeliveryID:  he.ID,
		Type:        he.Type,
		ShipmentRef: he.Data.Reference,
		PaymentID:   he.Data.ID,
		Status:      he.Data.Status,
		Description: he.Data.FailureReason,
		OccurredAt:  he.CreatedAt,
	}
	if ev.DeliveryID == "" {
		ev.DeliveryID = fallbackDeliveryID(payload)
	}
	switch st := payment.NormalizeStatus(he.Data.Status); {
	case he.Data.Status == "":
	case st.Settled():
		ev.Type = TypePaymentCaptured
	case st == payment.StatusFailed || st == payment.StatusCanceled:
		ev.Type = TypePaymentFailed
		if ev.Description == "" {
			ev.Description = "payment " + string(st)
		}
	}
	return ev, nil
}

type fedexEvent struct {
	EventID        string `json:"eventId"`
	EventType      string `json:"eventType"`
	TrackingNumber string `json:"trackingNumber"`
	ScanEvent      struct {
		DerivedStatusCode string    `json:"derivedStatusCode"`
		EventDescription  string    `json:"eventDescription"`
		Date              time.Time `json:"date"`
		ScanLocation      struct {
			City        string `json:"city"`
			CountryCode string `json:"countryCode"`
		} `json:"scanLocation"`
	} `json:"scanEvent"`
}

func ParseFedEx(payload []byte) (*Event, error) {
	var fe fedexEvent
	if err := json.Unmarshal(payload, &fe); err != nil {
		return nil, shipments.Invalid("body", "malformed fedex event")
	}
	if fe.TrackingNumber == "" {
		return nil, shipments.Invalid("trackingNumber", "required")
	}
	ev := &Event{
		DeliveryID:     fe.EventID,
		Type:           TypeTrackingUpdated,
		TrackingNumber: fe.TrackingNumber,
		Status:         fe.ScanEvent.DerivedStatusCode,
		Description:    fe.ScanEvent.EventDescription,
		OccurredAt:     fe.ScanEvent.Date,
	}
	loc := strings.Trim(fe.ScanEvent.ScanLocation.City+", "+fe.ScanEvent.ScanLocation.CountryCode, ", ")
	ev.Location = loc
	if ev.DeliveryID == "" {
		ev.DeliveryID = fallbackDeliveryID(payload)
	}
	return ev, nil
}

// ParseMock reads the normalized shape as is; dipakai untuk demo dan test.
func ParseMock(payload []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, shipments.Invalid("body", fmt.Sprintf("malformed event: %v", err))
	}
	if ev.Type == "" {
		return nil, shipments.Invalid("type", "required")
	}
	if ev.DeliveryID == "" {
		ev.DeliveryID = fallbackDeliveryID(payload)
	}
	return &ev, nil
}
