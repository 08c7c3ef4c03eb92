package payment

import (
	"context"
	"strings"
)

type Status string

const (
	StatusInitiated  Status = "initiated"
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPaid       Status = "paid"
	StatusCaptured   Status = "captured"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
	StatusRefunded   Status = "refunded"
)

// Settled: uang sudah pasti masuk.
func (s Status) Settled() bool { return s == StatusPaid || s == StatusCaptured }

// InFlight means the provider is still working on it; a later webhook decides.
func (s Status) InFlight() bool {
	return s == StatusPending || s == StatusProcessing || s == StatusInitiated
}

// NormalizeStatus maps the loose status strings gateways send back.
func NormalizeStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "paid", "succeeded", "success", "settled", "settlement", "completed":
		return StatusPaid
	case "captured", "capture":
		return StatusCaptured
	case "pending", "requires_payment_method", "requires_confirmation", "requires_action", "requires_capture", "authorize":
		return StatusPending
	case "processing":
		return StatusProcessing
	case "initiated", "created", "new":
		return StatusInitiated
	case "canceled", "cancelled", "cancel", "expired", "expire":
		return StatusCanceled
	case "refunded", "refund":
		return StatusRefunded
	}
	return StatusFailed
}

type CreateRequest struct {
	AmountMinor    int64
	Currency       string
	Description    string
	CallbackURL    string
	Metadata       map[string]string
	IdempotencyKey string
}

type Payment struct {
	ID             string `json:"paymentId"`
	Status         Status `json:"status"`
	AmountMinor    int64  `json:"amount,omitempty"`
	Currency       string `json:"currency,omitempty"`
	TransactionURL string `json:"transactionUrl,omitempty"`
	// ClientSecret lets a browser confirm the payment (Stripe PaymentIntents).
	ClientSecret string `json:"clientSecret,omitempty"`
}

// Gateway is one external payment processor.
type Gateway interface {
	Name() string
	IsConfigured() bool
	CreatePayment(ctx context.Context, req CreateRequest) (*Payment, error)
	// GetPayment returns nil, nil when the provider does not know the id.
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
	// VerifyPayment re-reads the status from the provider. Callback parameters
	// are never a substitute for this.
	VerifyPayment(ctx context.Context, paymentID string) (Status, error)
	// RefundPayment refunds amountMinor, or everything when amountMinor is 0.
	RefundPayment(ctx context.Context, paymentID string, amountMinor int64) (bool, error)
	ValidateWebhookSignature(payload []byte, signature string) bool
}
