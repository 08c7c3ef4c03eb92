package carrier

import (
	"context"
	"time"

	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
)

type AddressValidation struct {
	Valid             bool                        `json:"valid"`
	ResolvedAddresses []shipments.ShippingAddress `json:"resolvedAddresses"`
	Messages          []string                    `json:"messages"`
}

type PostalCodeResult struct {
	Valid               bool   `json:"valid"`
	LocationDescription string `json:"locationDescription,omitempty"`
	State               string `json:"state,omitempty"`
}

type ServiceAvailability struct {
	ServiceType string `json:"serviceType"`
	ServiceName string `json:"serviceName"`
	Available   bool   `json:"available"`
	TransitDays int    `json:"transitDays,omitempty"`
}

type ShipmentOrder struct {
	Shipper     shipments.ShippingAddress
	Recipient   shipments.ShippingAddress
	Packages    []shipments.PackageDetails
	ServiceType string
	LabelFormat string // PDF | ZPL | PNG
	// Reference = shipment id lokal; dipakai carrier sebagai customer reference.
	Reference string
}

type ShipmentResult struct {
	TrackingNumber        string     `json:"trackingNumber"`
	CarrierTrackingNumber string     `json:"carrierTrackingNumber"`
	LabelData             []byte     `json:"-"`
	LabelURL              string     `json:"labelUrl,omitempty"`
	EstimatedDelivery     *time.Time `json:"estimatedDelivery,omitempty"`
}

type TrackingEvent struct {
	Status      string    `json:"status"`
	Description string    `json:"description"`
	Location    string    `json:"location,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

type TrackingResult struct {
	Status            string          `json:"status"`
	Events            []TrackingEvent `json:"events"`
	EstimatedDelivery *time.Time      `json:"estimatedDelivery,omitempty"`
	ActualDelivery    *time.Time      `json:"actualDelivery,omitempty"`
}

// Adapter is the uniform contract over one shipping carrier.
type Adapter interface {
	Code() string
	IsConfigured() bool
	ValidateAddress(ctx context.Context, addr shipments.ShippingAddress) (*AddressValidation, error)
	ValidatePostalCode(ctx context.Context, postalCode, countryCode, state string) (*PostalCodeResult, error)
	CheckServiceAvailability(ctx context.Context, origin, destination shipments.ShippingAddress, shipDate time.Time) ([]ServiceAvailability, error)
	GetRates(ctx context.Context, shipper, recipient shipments.ShippingAddress, pkgs []shipments.PackageDetails, serviceType string) ([]shipments.RateQuoteOption, error)
	CreateShipment(ctx context.Context, order ShipmentOrder) (*ShipmentResult, error)
	TrackShipment(ctx context.Context, trackingNumber string) (*TrackingResult, error)
	CancelShipment(ctx context.Context, trackingNumber string) (bool, error)
	ValidateWebhookSignature(payload []byte, signature string) bool
}
