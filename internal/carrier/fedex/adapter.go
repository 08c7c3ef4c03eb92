// Package fedex talks to the FedEx REST API (OAuth, address, rates, ship, track).
package fedex

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ariefcatur/go-shipment-booking/internal/carrier"
	"github.com/ariefcatur/go-shipment-booking/internal/hmacsig"
	"github.com/ariefcatur/go-shipment-booking/internal/outbound"
	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
)

const Code = "fedex"

type Config struct {
	ClientID      string
	ClientSecret  string
	AccountNumber string
	WebhookSecret string
	Currency      string
}

type Adapter struct {
	cfg    Config
	http   *outbound.Client
	tokens *tokenSource
	now    func() time.Time
}

// New wires the adapter over client. now may be nil.
func New(cfg Config, client *outbound.Client, now func() time.Time) *Adapter {
	if now == nil {
		now = time.Now
	}
	return &Adapter{
		cfg:  cfg,
		http: client,
		now:  now,
		tokens: &tokenSource{
			http:         client,
			clientID:     cfg.ClientID,
			clientSecret: cfg.ClientSecret,
			now:          now,
		},
	}
}

func (a *Adapter) Code() string { return Code }

func (a *Adapter) IsConfigured() bool {
	return a.cfg.ClientID != "" && a.cfg.ClientSecret != "" && a.cfg.AccountNumber != ""
}

// call sends an authorized request. A 401 drops the cached token and retries once.
func (a *Adapter) call(ctx context.Context, method, path string, body, out any) error {
	if !a.IsConfigured() {
		return fmt.Errorf("%s: %w", Code, shipments.ErrProviderUnavailable)
	}
	for try := 0; try < 2; try++ {
		tok, err := a.tokens.Token(ctx)
		if err != nil {
			return err
		}
		h := http.Header{}
		h.Set("Authorization", "Bearer "+tok)
		h.Set("X-locale", "en_US")
		_, err = a.http.Do(ctx, outbound.Request{Method: method, Path: path, Header: h, JSON: body}, out)
		var pe *shipments.ProviderError
		if try == 0 && errors.As(err, &pe) && pe.StatusCode == http.StatusUnauthorized {
			a.tokens.Invalidate()
			continue
		}
		return err
	}
	return nil
}

func toAPIAddress(a shipments.ShippingAddress) apiAddress {
	return apiAddress{
		StreetLines:         a.StreetLines,
		City:                a.City,
		StateOrProvinceCode: a.State,
		PostalCode:          a.PostalCode,
		CountryCode:         strings.ToUpper(a.CountryCode),
	}
}

func toParty(a shipments.ShippingAddress) apiParty {
	return apiParty{
		Contact: &apiContact{PersonName: a.Name, CompanyName: a.Company, PhoneNumber: a.Phone},
		Address: toAPIAddress(a),
	}
}

func toPackages(pkgs []shipments.PackageDetails) []apiPackage {
	out := make([]apiPackage, 0, len(pkgs))
	for _, p := range pkgs {
		units := strings.ToUpper(p.WeightUnit)
		if units == "" {
			units = "KG"
		}
		ap := apiPackage{GroupPackageCount: p.Pieces(), Weight: apiWeight{Units: units, Value: p.Weight}}
		if d := p.Dimensions; d != nil {
			du := strings.ToUpper(d.Unit)
			if du == "" {
				du = "CM"
			}
			ap.Dimensions = &apiDimensions{
				Length: int(math.Ceil(d.Length)),
				Width:  int(math.Ceil(d.Width)),
				Height: int(math.Ceil(d.Height)),
				Units:  du,
			}
		}
		out = append(out, ap)
	}
	return out
}

func (a *Adapter) ValidateAddress(ctx context.Context, addr shipments.ShippingAddress) (*carrier.AddressValidation, error) {
	req := resolveRequest{AddressesToValidate: []addressToValidate{{Address: toAPIAddress(addr)}}}
	var resp resolveResponse
	if err := a.call(ctx, "POST", "/address/v1/addresses/resolve", req, &resp); err != nil {
		return nil, err
	}
	res := &carrier.AddressValidation{}
	for _, r := range resp.Output.ResolvedAddresses {
		res.ResolvedAddresses = append(res.ResolvedAddresses, shipments.ShippingAddress{
			Name:        addr.Name,
			Company:     addr.Company,
			Phone:       addr.Phone,
			StreetLines: r.StreetLinesToken,
			City:        r.City,
			State:       r.StateOrProvinceCode,
			PostalCode:  r.PostalCode,
			CountryCode: r.CountryCode,
		})
		if strings.EqualFold(r.Attributes.Resolved, "true") {
			res.Valid = true
		}
	}
	for _, al := range resp.Output.Alerts {
		res.Messages = append(res.Messages, al.Message)
	}
	return res, nil
}

func (a *Adapter) ValidatePostalCode(ctx context.Context, postalCode, countryCode, state string) (*carrier.PostalCodeResult, error) {
	req := postalRequest{
		CarrierCode:         "FDXG",
		CountryCode:         strings.ToUpper(countryCode),
		StateOrProvinceCode: state,
		PostalCode:          postalCode,
		ShipDate:            a.now().Format("2006-01-02"),
	}
	var resp postalResponse
	if err := a.call(ctx, "POST", "/country/v1/postal/validate", req, &resp); err != nil {
		var pe *shipments.ProviderError
		if errors.As(err, &pe) && pe.StatusCode == http.StatusBadRequest {
			// FedEx menolak kode pos tidak valid dengan 400
			return &carrier.PostalCodeResult{Valid: false}, nil
		}
		return nil, err
	}
	res := &carrier.PostalCodeResult{
		Valid: resp.Output.CleanedPostalCode != "",
		State: resp.Output.StateOrProvinceCode,
	}
	if len(resp.Output.LocationDescription) > 0 {
		res.LocationDescription = resp.Output.LocationDescription[0].LocationID
	}
	return res, nil
}

func (a *Adapter) CheckServiceAvailability(ctx context.Context, origin, destination shipments.ShippingAddress, shipDate time.Time) ([]carrier.ServiceAvailability, error) {
	var req availabilityRequest
	req.RequestedShipment.Shipper = apiParty{Address: toAPIAddress(origin)}
	req.RequestedShipment.Recipients = []apiParty{{Address: toAPIAddress(destination)}}
	req.RequestedShipment.ShipDateStamp = shipDate.Format("2006-01-02")
	req.RequestedShipment.RequestedPackageLineItems = []apiPackage{{Weight: apiWeight{Units: "KG", Value: 1}}}
	req.CarrierCodes = []string{"FDXE", "FDXG"}

	var resp availabilityResponse
	if err := a.call(ctx, "POST", "/availability/v1/packageandserviceoptions", req, &resp); err != nil {
		return nil, err
	}
	out := make([]carrier.ServiceAvailability, 0, len(resp.Output.PackageOptions))
	for _, o := range resp.Output.PackageOptions {
		out = append(out, carrier.ServiceAvailability{
			ServiceType: o.ServiceType.Key,
			ServiceName: o.ServiceType.DisplayText,
			Available:   true,
		})
	}
	return out, nil
}

var transitWords = map[string]int{
	"ONE_DAY": 1, "TWO_DAYS": 2, "THREE_DAYS": 3, "FOUR_DAYS": 4, "FIVE_DAYS": 5,
	"SIX_DAYS": 6, "SEVEN_DAYS": 7, "EIGHT_DAYS": 8, "NINE_DAYS": 9, "TEN_DAYS": 10,
}

func (a *Adapter) GetRates(ctx context.Context, shipper, recipient shipments.ShippingAddress, pkgs []shipments.PackageDetails, serviceType string) ([]shipments.RateQuoteOption, error) {
	req := rateRequest{
		AccountNumber: accountNumber{Value: a.cfg.AccountNumber},
		RequestedShipment: rateShipment{
			Shipper:                   apiParty{Address: toAPIAddress(shipper)},
			Recipient:                 apiParty{Address: toAPIAddress(recipient)},
			PickupType:                "DROPOFF_AT_FEDEX_LOCATION",
			ServiceType:               serviceType,
			RateRequestType:           []string{"ACCOUNT", "LIST"},
			RequestedPackageLineItems: toPackages(pkgs),
		},
	}
	var resp rateResponse
	if err := a.call(ctx, "POST", "/rate/v1/rates/quotes", req, &resp); err != nil {
		return nil, err
	}

	var out []shipments.RateQuoteOption
	for _, d := range resp.Output.RateReplyDetails {
		if len(d.RatedShipmentDetails) == 0 {
			continue
		}
		// ACCOUNT rate diutamakan, fallback ke entry pertama
		rated := d.RatedShipmentDetails[0]
		for _, r := range d.RatedShipmentDetails {
			if r.RateType == "ACCOUNT" {
				rated = r
				break
			}
		}
		cur := rated.Currency
		if cur == "" {
			cur = a.cfg.Currency
		}
		opt := shipments.RateQuoteOption{
			Carrier:     Code,
			CarrierName: "FedEx",
			ServiceType: d.ServiceType,
			ServiceName: d.ServiceName,
			Currency:    cur,
			BaseRate:    rated.TotalNetCharge,
			TransitDays: parseTransitDays(d.Commit.TransitDays.MinimumTransitTime),
		}
		if t, err := time.Parse("2006-01-02T15:04:05", d.Commit.DateDetail.DayFormat); err == nil {
			opt.EstimatedDelivery = &t
		}
		out = append(out, opt)
	}
	return out, nil
}

func (a *Adapter) CreateShipment(ctx context.Context, order carrier.ShipmentOrder) (*carrier.ShipmentResult, error) {
	format := strings.ToUpper(order.LabelFormat)
	if format == "" {
		format = "PDF"
	}
	req := shipRequest{
		LabelResponseOptions: "LABEL",
		AccountNumber:        accountNumber{Value: a.cfg.AccountNumber},
		RequestedShipment: shipRequestedShipment{
			Shipper:                   toParty(order.Shipper),
			Recipients:                []apiParty{toParty(order.Recipient)},
			ServiceType:               order.ServiceType,
			PackagingType:             "YOUR_PACKAGING",
			PickupType:                "DROPOFF_AT_FEDEX_LOCATION",
			ShippingChargesPayment:    map[string]string{"paymentType": "SENDER"},
			LabelSpecification:        labelSpecification{ImageType: format, LabelStockType: "PAPER_85X11_TOP_HALF"},
			RequestedPackageLineItems: toPackages(order.Packages),
		},
	}
	var resp shipResponse
	if err := a.call(ctx, "POST", "/ship/v1/shipments", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Output.TransactionShipments) == 0 {
		return nil, &shipments.ProviderError{Service: Code, StatusCode: 200, Code: "empty_shipment", Message: "no transaction shipment returned"}
	}
	ts := resp.Output.TransactionShipments[0]
	res := &carrier.ShipmentResult{
		TrackingNumber:        ts.MasterTrackingNumber,
		CarrierTrackingNumber: ts.MasterTrackingNumber,
	}
	for _, p := range ts.PieceResponses {
		if res.CarrierTrackingNumber == "" {
			res.CarrierTrackingNumber = p.TrackingNumber
			res.TrackingNumber = p.TrackingNumber
		}
		for _, doc := range p.PackageDocuments {
			if res.LabelURL == "" && doc.URL != "" {
				res.LabelURL = doc.URL
			}
			if len(res.LabelData) == 0 && doc.EncodedLabel != "" {
				if b, err := base64.StdEncoding.DecodeString(doc.EncodedLabel); err == nil {
					res.LabelData = b
				}
			}
		}
	}
	if t, err := time.Parse("2006-01-02", ts.CompletedShipmentDetail.OperationalDetail.DeliveryDate); err == nil {
		res.EstimatedDelivery = &t
	}
	return res, nil
}

func (a *Adapter) TrackShipment(ctx context.Context, trackingNumber string) (*carrier.TrackingResult, error) {
	req := trackRequest{
		IncludeDetailedScans: true,
		TrackingInfo:         []trackingInfo{{TrackingNumberInfo: trackingNumberInfo{TrackingNumber: trackingNumber}}},
	}
	var resp trackResponse
	if err := a.call(ctx, "POST", "/track/v1/trackingnumbers", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Output.CompleteTrackResults) == 0 || len(resp.Output.CompleteTrackResults[0].TrackResults) == 0 {
		return nil, shipments.ErrNotFound
	}
	tr := resp.Output.CompleteTrackResults[0].TrackResults[0]
	res := &carrier.TrackingResult{Status: tr.LatestStatusDetail.Code}
	for _, ev := range tr.ScanEvents {
		at, _ := time.Parse(time.RFC3339, ev.Date)
		loc := strings.Trim(strings.Join([]string{ev.ScanLocation.City, ev.ScanLocation.StateOrProvinceCode}, ", "), ", ")
		res.Events = append(res.Events, carrier.TrackingEvent{
			Status:      ev.EventType,
			Description: ev.EventDescription,
			Location:    loc,
			OccurredAt:  at,
		})
	}
	for _, dt := range tr.DateAndTimes {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			continue
		}
		switch dt.Type {
		case "ESTIMATED_DELIVERY":
			res.EstimatedDelivery = &t
		case "ACTUAL_DELIVERY":
			res.ActualDelivery = &t
		}
	}
	return res, nil
}

func (a *Adapter) CancelShipment(ctx context.Context, trackingNumber string) (bool, error) {
	req := cancelRequest{
		AccountNumber:   accountNumber{Value: a.cfg.AccountNumber},
		TrackingNumber:  trackingNumber,
		DeletionControl: "DELETE_ALL_PACKAGES",
	}
	var resp cancelResponse
	if err := a.call(ctx, "PUT", "/ship/v1/shipments/cancel", req, &resp); err != nil {
		return false, err
	}
	return resp.Output.CancelledShipment, nil
}

// ValidateWebhookSignature checks the hex HMAC-SHA256 of the raw body.
func (a *Adapter) ValidateWebhookSignature(payload []byte, signature string) bool {
	return hmacsig.Verify(a.cfg.WebhookSecret, payload, signature)
}

// parseTransitDays accepts "3" or "THREE_DAYS".
func parseTransitDays(s string) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return transitWords[s]
}
