package shipments

import "time"

type ShippingAddress struct {
	Name        string   `json:"name"`
	Company     string   `json:"company,omitempty"`
	StreetLines []string `json:"streetLines"`
	City        string   `json:"city"`
	State       string   `json:"state,omitempty"` // state / province code
	PostalCode  string   `json:"postalCode"`
	CountryCode string   `json:"countryCode"` // ISO 3166-1 alpha-2
	Phone       string   `json:"phone,omitempty"`
}

type Dimensions struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Unit   string  `json:"unit"` // CM | IN
}

type PackageDetails struct {
	Weight      float64     `json:"weight"`
	WeightUnit  string      `json:"weightUnit"` // KG | LB
	Dimensions  *Dimensions `json:"dimensions,omitempty"`
	PackageType string      `json:"packageType,omitempty"`
	Count       int         `json:"count"`
}

// ShipmentRequest adalah input lengkap rate shopping; disimpan di quote supaya booking
// pakai data yang sama persis dengan saat harga dihitung.
type ShipmentRequest struct {
	Shipper       ShippingAddress  `json:"shipper"`
	Recipient     ShippingAddress  `json:"recipient"`
	Packages      []PackageDetails `json:"packages"`
	ShipmentType  string           `json:"shipmentType"` // DOMESTIC | INTERNATIONAL (informational)
	ServiceType   string           `json:"serviceType,omitempty"`
	ClientProfile string           `json:"clientProfile,omitempty"`
}

func (r ShipmentRequest) International() bool {
	return r.Shipper.CountryCode != r.Recipient.CountryCode
}

type RateQuoteOption struct {
	QuoteID           string     `json:"quoteId,omitempty"`
	Carrier           string     `json:"carrier"`
	CarrierName       string     `json:"carrierName"`
	ServiceType       string     `json:"serviceType"`
	ServiceName       string     `json:"serviceName"`
	Currency          string     `json:"currency"`
	BaseRate          float64    `json:"baseRate"`
	MarginPercentage  float64    `json:"marginPercentage"`
	MarginAmount      float64    `json:"marginAmount"`
	FinalPrice        float64    `json:"finalPrice"`
	TransitDays       int        `json:"transitDays,omitempty"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery,omitempty"`
	Mock              bool       `json:"mock,omitempty"`
}

type QuoteReservation struct {
	QuoteID   string          `json:"quoteId"`
	Option    RateQuoteOption `json:"option"`
	Request   ShipmentRequest `json:"request"`
	Status    QuoteStatus     `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

type Shipment struct {
	ID                    string           `json:"id"`
	TrackingNumber        string           `json:"trackingNumber"`
	QuoteID               string           `json:"quoteId"`
	ClientProfile         string           `json:"clientProfile"`
	Carrier               string           `json:"carrier"`
	ServiceType           string           `json:"serviceType"`
	ServiceName           string           `json:"serviceName"`
	Shipper               ShippingAddress  `json:"shipper"`
	Recipient             ShippingAddress  `json:"recipient"`
	Packages              []PackageDetails `json:"packages"`
	BaseRate              float64          `json:"baseRate"`
	MarginPercentage      float64          `json:"marginPercentage"`
	MarginAmount          float64          `json:"marginAmount"`
	FinalPrice            float64          `json:"finalPrice"`
	Currency              string           `json:"currency"`
	Status                ShipmentStatus   `json:"status"` // lihat status.go
	CarrierTrackingNumber string           `json:"carrierTrackingNumber,omitempty"`
	LabelURL              string           `json:"labelUrl,omitempty"`
	LabelData             []byte           `json:"-"`
	EstimatedDelivery     *time.Time       `json:"estimatedDelivery,omitempty"`
	CreatedAt             time.Time        `json:"createdAt"`
	UpdatedAt             time.Time        `json:"updatedAt"`
}

type Invoice struct {
	ID          string        `json:"id"`
	ShipmentID  string        `json:"shipmentId"`
	AmountMinor int64         `json:"amountMinor"`
	Currency    string        `json:"currency"`
	Status      InvoiceStatus `json:"status"`
	PaymentID   string        `json:"paymentId,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	PaidAt      *time.Time    `json:"paidAt,omitempty"`
}

type CheckoutSession struct {
	ShipmentID     string         `json:"shipmentId"`
	QuoteID        string         `json:"quoteId"`
	PaymentID      string         `json:"paymentId,omitempty"`
	TransactionURL string         `json:"transactionUrl,omitempty"`
	ClientSecret   string         `json:"clientSecret,omitempty"`
	AmountMinor    int64          `json:"amount"`
	Currency       string         `json:"currency"`
	Status         CheckoutStatus `json:"status"`
	FailureReason  string         `json:"failureReason,omitempty"`
	ClaimedUntil   *time.Time     `json:"-"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// PaymentRef is what the gateway returned for a session's payment.
type PaymentRef struct {
	ID             string
	TransactionURL string
	ClientSecret   string
}

// Booking = hasil carrier createShipment yang sudah dipersist ke shipment.
type Booking struct {
	CarrierTrackingNumber string     `json:"carrierTrackingNumber"`
	LabelURL              string     `json:"labelUrl,omitempty"`
	LabelData             []byte     `json:"-"`
	EstimatedDelivery     *time.Time `json:"estimatedDelivery,omitempty"`
}

type StatusEvent struct {
	ShipmentID  string    `json:"shipmentId"`
	Status      string    `json:"status"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Source      string    `json:"source"`
	OccurredAt  time.Time `json:"occurredAt"`
}

type WebhookEvent struct {
	ID             string     `json:"id"`
	Source         string     `json:"source"`
	DeliveryID     string     `json:"deliveryId"`
	EventType      string     `json:"eventType"`
	Payload        []byte     `json:"-"`
	Signature      string     `json:"-"`
	SignatureValid bool       `json:"signatureValid"`
	Processed      bool       `json:"processed"`
	Failed         bool       `json:"failed"`
	Error          string     `json:"error,omitempty"`
	RetryCount     int        `json:"retryCount"`
	CreatedAt      time.Time  `json:"createdAt"`
	ProcessedAt    *time.Time `json:"processedAt,omitempty"`
}
