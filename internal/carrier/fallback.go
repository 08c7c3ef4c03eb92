package carrier

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
)

// Fallback puts a real carrier in front of the deterministic mock.
//
// Read operations (address, postal code, availability, rates, tracking) drop to
// the mock when the real carrier is unconfigured or unavailable. Operations that
// create or void a shipment never silently switch once credentials exist; they
// only use the mock when the carrier is unconfigured and AllowMock is set.
type Fallback struct {
	Real      Adapter
	Mock      *Mock
	AllowMock bool
	Log       *zap.Logger
}

func NewFallback(primary Adapter, mock *Mock, allowMock bool, log *zap.Logger) *Fallback {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fallback{Real: primary, Mock: mock, AllowMock: allowMock, Log: log.Named("carrier")}
}

func (f *Fallback) Code() string { return f.Real.Code() }

// IsConfigured reports the real carrier's state; the decorator itself is always usable.
func (f *Fallback) IsConfigured() bool { return f.Real.IsConfigured() }

func (f *Fallback) readFallback(op string, err error) bool {
	if !f.Real.IsConfigured() {
		return true
	}
	if errors.Is(err, shipments.ErrProviderUnavailable) {
		f.Log.Warn("carrier unavailable, serving mock",
			zap.String("carrier", f.Code()), zap.String("operation", op), zap.Error(err))
		return true
	}
	return false
}

func (f *Fallback) ValidateAddress(ctx context.Context, addr shipments.ShippingAddress) (*AddressValidation, error) {
	if f.Real.IsConfigured() {
		res, err := f.Real.ValidateAddress(ctx, addr)
		if err == nil || !f.readFallback("validate_address", err) {
			return res, err
		}
	}
	return f.Mock.ValidateAddress(ctx, addr)
}

func (f *Fallback) ValidatePostalCode(ctx context.Context, postalCode, countryCode, state string) (*PostalCodeResult, error) {
	if f.Real.IsConfigured() {
		res, err := f.Real.ValidatePostalCode(ctx, postalCode, countryCode, state)
		if err == nil || !f.readFallback("validate_postal_code", err) {
			return res, err
		}
	}
	return f.Mock.ValidatePostalCode(ctx, postalCode, countryCode, state)
}

func (f *Fallback) CheckServiceAvailability(ctx context.Context, origin, destination shipments.ShippingAddress, shipDate time.Time) ([]ServiceAvailability, error) {
	if f.Real.IsConfigured() {
		res, err := f.Real.CheckServiceAvailability(ctx, origin, destination, shipDate)
		if err == nil || !f.readFallback("service_availability", err) {
			return res, err
		}
	}
	return f.Mock.CheckServiceAvailability(ctx, origin, destination, shipDate)
}

func (f *Fallback) GetRates(ctx context.Context, shipper, recipient shipments.ShippingAddress, pkgs []shipments.PackageDetails, serviceType string) ([]shipments.RateQuoteOption, error) {
	if f.Real.IsConfigured() {
		res, err := f.Real.GetRates(ctx, shipper, recipient, pkgs, serviceType)
		if err == nil || !f.readFallback("rates", err) {
			return res, err
		}
	}
	return f.Mock.GetRates(ctx, shipper, recipient, pkgs, serviceType)
}

func (f *Fallback) TrackShipment(ctx context.Context, trackingNumber string) (*TrackingResult, error) {
	if f.Real.IsConfigured() {
		res, err := f.Real.TrackShipment(ctx, trackingNumber)
		if err == nil || !f.readFallback("track", err) {
			return res, err
		}
	}
	return f.Mock.TrackShipment(ctx, trackingNumber)
}

func (f *Fallback) CreateShipment(ctx context.Context, order ShipmentOrder) (*ShipmentResult, error) {
	if f.Real.IsConfigured() {
		return f.Real.CreateShipment(ctx, order)
	}
	if !f.AllowMock {
		return nil, shipments.ErrMockFallbackDisabled
	}
	f.Log.Warn("booking with mock carrier", zap.String("carrier", f.Code()), zap.String("reference", order.Reference))
	return f.Mock.CreateShipment(ctx, order)
}

func (f *Fallback) CancelShipment(ctx context.Context, trackingNumber string) (bool, error) {
	if f.Real.IsConfigured() {
		return f.Real.CancelShipment(ctx, trackingNumber)
	}
	if !f.AllowMock {
		return false, shipments.ErrMockFallbackDisabled
	}
	return f.Mock.CancelShipment(ctx, trackingNumber)
}

func (f *Fallback) ValidateWebhookSignature(payload []byte, signature string) bool {
	if f.Real.IsConfigured() {
		return f.Real.ValidateWebhookSignature(payload, signature)
	}
	return f.Mock.ValidateWebhookSignature(payload, signature)
}
