package quote

import (
	"context"
	"time"

	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
)

type Shopper interface {
	Shop(ctx context.Context, req shipments.ShipmentRequest) ([]shipments.RateQuoteOption, error)
}

type Pricer interface {
	Apply(ctx context.Context, profile string, opt *shipments.RateQuoteOption) error
}

// Rater turns a shipment request into priced, reserved quotes.
type Rater struct {
	Carriers Shopper
	Pricing  Pricer
	Quotes   *Service
}

// GetRates validates req, shops the carriers, applies the client's margin and
// reserves one quote per option. All quotes share one expiry.
func (r *Rater) GetRates(ctx context.Context, req shipments.ShipmentRequest) ([]shipments.RateQuoteOption, time.Time, error) {
	if err := req.Validate(); err != nil {
		return nil, time.Time{}, err
	}
	opts, err := r.Carriers.Shop(ctx, req)
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(opts) == 0 {
		return nil, time.Time{}, shipments.Invalid("serviceType", "no service available for this route")
	}
	for i := range opts {
		if err := r.Pricing.Apply(ctx, req.ClientProfile, &opts[i]); err != nil {
			return nil, time.Time{}, err
		}
	}
	rs, exp, err := r.Quotes.Reserve(ctx, opts, req)
	if err != nil {
		return nil, time.Time{}, err
	}
	out := make([]shipments.RateQuoteOption, len(rs))
	for i := range rs {
		out[i] = rs[i].Option
	}
	return out, exp, nil
}
