package carrier

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ariefcatur/go-shipment-booking/internal/hmacsig"
	"github.com/ariefcatur/go-shipment-booking/internal/pricing"
	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
)

// InternationalMultiplier is applied to mock rates when origin and destination countries differ.
const InternationalMultiplier = 2.5

// dimDivisor: cm3 per kg untuk dimensional weight.
const dimDivisor = 5000.0

type mockService struct {
	typ, name      string
	base, perKg    float64
	domestic, intl int
}

var mockServices = []mockService{
	{"FEDEX_GROUND", "Ground", 7.50, 1.10, 5, 7},
	{"FEDEX_EXPRESS_SAVER", "Express Saver", 12.00, 1.85, 3, 5},
	{"PRIORITY_OVERNIGHT", "Priority Overnight", 25.00, 3.20, 1, 3},
}

// Mock is the offline carrier. Output depends only on the input and Now, so the
// rest of the pipeline can run without credentials.
type Mock struct {
	CarrierCode   string
	CarrierName   string
	Currency      string
	WebhookSecret string
	Now           func() time.Time
}

func NewMock(code, name, currency string) *Mock {
	return &Mock{CarrierCode: code, CarrierName: name, Currency: currency}
}

func (m *Mock) Code() string       { return m.CarrierCode }
func (m *Mock) IsConfigured() bool { return true }

func (m *Mock) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func (m *Mock) ValidateAddress(_ context.Context, addr shipments.ShippingAddress) (*AddressValidation, error) {
	if err := addr.Validate("address"); err != nil {
		return &AddressValidation{Valid: false, Messages: []string{err.Error()}}, nil
	}
	resolved := addr
	resolved.City = strings.ToUpper(strings.TrimSpace(addr.City))
	resolved.State = strings.ToUpper(strings.TrimSpace(addr.State))
	resolved.CountryCode = strings.ToUpper(addr.CountryCode)
	resolved.PostalCode = strings.ToUpper(strings.TrimSpace(addr.PostalCode))
	return &AddressValidation{Valid: true, ResolvedAddresses: []shipments.ShippingAddress{resolved}}, nil
}

var postalPatterns = map[string]*regexp.Regexp{
	"US": regexp.MustCompile(`^\d{5}(-\d{4})?$`),
	"CA": regexp.MustCompile(`^[A-Za-z]\d[A-Za-z] ?\d[A-Za-z]\d$`),
	"GB": regexp.MustCompile(`^[A-Za-z]{1,2}\d[A-Za-z\d]? ?\d[A-Za-z]{2}$`),
	"ID": regexp.MustCompile(`^\d{5}$`),
}

var genericPostal = regexp.MustCompile(`^[A-Za-z0-9 \-]{3,10}$`)

func (m *Mock) ValidatePostalCode(_ context.Context, postalCode, countryCode, state string) (*PostalCodeResult, error) {
	cc := strings.ToUpper(countryCode)
	re, ok := postalPatterns[cc]
	if !ok {
		re = genericPostal
	}
	pc := strings.TrimSpace(postalCode)
	if !re.MatchString(pc) {
		return &PostalCodeResult{Valid: false}, nil
	}
	return &PostalCodeResult{
		Valid:               true,
		LocationDescription: fmt.Sprintf("%s %s", cc, strings.ToUpper(pc)),
		State:               strings.ToUpper(state),
	}, nil
}

func (m *Mock) CheckServiceAvailability(_ context.Context, origin, destination shipments.ShippingAddress, _ time.Time) ([]ServiceAvailability, error) {
	intl := origin.CountryCode != destination.CountryCode
	out := make([]ServiceAvailability, 0, len(mockServices))
	for _, s := range mockServices {
		out = append(out, ServiceAvailability{
			ServiceType: s.typ,
			ServiceName: m.CarrierName + " " + s.name,
			Available:   true,
			TransitDays: s.transit(intl),
		})
	}
	return out, nil
}

func (s mockService) transit(intl bool) int {
	if intl {
		return s.intl
	}
	return s.domestic
}

// BillableWeightKg = sum over pieces of max(actual, L*W*H/5000).
func BillableWeightKg(pkgs []shipments.PackageDetails) float64 {
	var total float64
	for _, p := range pkgs {
		w := p.WeightKg()
		if l, wd, h := p.DimensionsCm(); l > 0 {
			if dim := l * wd * h / dimDivisor; dim > w {
				w = dim
			}
		}
		total += w * float64(p.Pieces())
	}
	return total
}

func (m *Mock) GetRates(_ context.Context, shipper, recipient shipments.ShippingAddress, pkgs []shipments.PackageDetails, serviceType string) ([]shipments.RateQuoteOption, error) {
	if len(pkgs) == 0 {
		return nil, shipments.Invalid("packages", "at least one package required")
	}
	intl := shipper.CountryCode != recipient.CountryCode
	mult := 1.0
	if intl {
		mult = InternationalMultiplier
	}
	weight := BillableWeightKg(pkgs)
	now := m.now()

	var out []shipments.RateQuoteOption
	for _, s := range mockServices {
		if serviceType != "" && serviceType != s.typ {
			continue
		}
		days := s.transit(intl)
		eta := addBusinessDays(now, days)
		out = append(out, shipments.RateQuoteOption{
			Carrier:           m.CarrierCode,
			CarrierName:       m.CarrierName,
			ServiceType:       s.typ,
			ServiceName:       m.CarrierName + " " + s.name,
			Currency:          m.Currency,
			BaseRate:          pricing.RoundHalfUp((s.base+s.perKg*weight)*mult, 2),
			TransitDays:       days,
			EstimatedDelivery: &eta,
			Mock:              true,
		})
	}
	return out, nil
}

func (m *Mock) CreateShipment(_ context.Context, order ShipmentOrder) (*ShipmentResult, error) {
	if order.Reference == "" {
		return nil, shipments.Invalid("reference", "required")
	}
	tn := MockTrackingNumber(order.Reference)
	intl := order.Shipper.CountryCode != order.Recipient.CountryCode
	days := 3
	for _, s := range mockServices {
		if s.typ == order.ServiceType {
			days = s.transit(intl)
		}
	}
	eta := addBusinessDays(m.now(), days)
	return &ShipmentResult{
		TrackingNumber:        tn,
		CarrierTrackingNumber: tn,
		LabelData:             []byte("%PDF-1.4\n% mock label " + tn + "\n"),
		EstimatedDelivery:     &eta,
	}, nil
}

// MockTrackingNumber derives a stable 12-digit number from ref.
func MockTrackingNumber(ref string) string {
	sum := sha256.Sum256([]byte(ref))
	n := binary.BigEndian.Uint64(sum[:8]) % 1_000_000_000_000
	return fmt.Sprintf("MOCK%012d", n)
}

func (m *Mock) TrackShipment(_ context.Context, trackingNumber string) (*TrackingResult, error) {
	if trackingNumber == "" {
		return nil, shipments.Invalid("trackingNumber", "required")
	}
	now := m.now()
	eta := addBusinessDays(now, 2)
	return &TrackingResult{
		Status: "IN_TRANSIT",
		Events: []TrackingEvent{
			{Status: "LABEL_CREATED", Description: "Shipment information sent", OccurredAt: now.Add(-24 * time.Hour)},
			{Status: "IN_TRANSIT", Description: "In transit", Location: "MEMPHIS, TN", OccurredAt: now.Add(-6 * time.Hour)},
		},
		EstimatedDelivery: &eta,
	}, nil
}

func (m *Mock) CancelShipment(_ context.Context, trackingNumber string) (bool, error) {
	return strings.HasPrefix(trackingNumber, "MOCK"), nil
}

func (m *Mock) ValidateWebhookSignature(payload []byte, signature string) bool {
	return hmacsig.Verify(m.WebhookSecret, payload, signature)
}

func addBusinessDays(t time.Time, days int) time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 18, 0, 0, 0, time.UTC)
	for days > 0 {
		d = d.AddDate(0, 0, 1)
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days--
		}
	}
	return d
}
