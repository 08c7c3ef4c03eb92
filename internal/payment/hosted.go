package payment

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/ariefcatur/go-shipment-booking/internal/hmacsig"
	"github.com/ariefcatur/go-shipment-booking/internal/outbound"
	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
)

// HostedGateway is a redirect-style gateway: the customer pays on the
// provider's page (transactionUrl) and the provider posts a signed webhook.
type HostedGateway struct {
	apiKey        string
	webhookSecret string
	http          *outbound.Client
}

func NewHostedGateway(apiKey, webhookSecret string, client *outbound.Client) *HostedGateway {
	return &HostedGateway{apiKey: apiKey, webhookSecret: webhookSecret, http: client}
}

func (g *HostedGateway) Name() string { return "hosted" }

func (g *HostedGateway) IsConfigured() bool {
	return g.apiKey != "" && g.http != nil && g.http.BaseURL != ""
}

type hostedPayment struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	TransactionURL string `json:"transactionUrl"`
}

func (p hostedPayment) toPayment() *Payment {
	return &Payment{
		ID:             p.ID,
		Status:         NormalizeStatus(p.Status),
		AmountMinor:    p.Amount,
		Currency:       strings.ToUpper(p.Currency),
		TransactionURL: p.TransactionURL,
	}
}

func (g *HostedGateway) header(idempotencyKey string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+g.apiKey)
	if idempotencyKey != "" {
		h.Set("Idempotency-Key", idempotencyKey)
	}
	return h
}

func (g *HostedGateway) CreatePayment(ctx context.Context, req CreateRequest) (*Payment, error) {
	if req.AmountMinor <= 0 {
		return nil, shipments.Invalid("amount", "must be positive")
	}
	body := map[string]any{
		"amount":      req.AmountMinor,
		"currency":    strings.ToUpper(req.Currency),
		"description": req.Description,
		"callbackUrl": req.CallbackURL,
		"metadata":    req.Metadata,
	}
	var out hostedPayment
	if _, err := g.http.Do(ctx, outbound.Request{Method: "POST", Path: "/payments", Header: g.header(req.IdempotencyKey), JSON: body}, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, &shipments.ProviderError{Service: g.http.Service, StatusCode: 200, Code: "empty_payment", Message: "payment id missing"}
	}
	return out.toPayment(), nil
}

func (g *HostedGateway) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var out hostedPayment
	_, err := g.http.Do(ctx, outbound.Request{Method: "GET", Path: "/payments/" + url.PathEscape(paymentID), Header: g.header("")}, &out)
	var pe *shipments.ProviderError
	if errors.As(err, &pe) && pe.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return out.toPayment(), nil
}

func (g *HostedGateway) VerifyPayment(ctx context.Context, paymentID string) (Status, error) {
	p, err := g.GetPayment(ctx, paymentID)
	if err != nil {
		return "", err
	}
	if p == nil {
		return StatusFailed, nil
	}
	return p.Status, nil
}

func (g *HostedGateway) RefundPayment(ctx context.Context, paymentID string, amountMinor int64) (bool, error) {
	body := map[string]any{}
	if amountMinor > 0 {
		body["amount"] = amountMinor
	}
	var out struct {
		Status string `json:"status"`
	}
	path := "/payments/" + url.PathEscape(paymentID) + "/refunds"
	if _, err := g.http.Do(ctx, outbound.Request{Method: "POST", Path: path, Header: g.header("refund:" + paymentID), JSON: body}, &out); err != nil {
		return false, err
	}
	s := NormalizeStatus(out.Status)
	return s == StatusRefunded || s == StatusPending || s == StatusPaid, nil
}

// ValidateWebhookSignature: hex(HMAC-SHA256(secret, body)), constant-time.
func (g *HostedGateway) ValidateWebhookSignature(payload []byte, signature string) bool {
	return hmacsig.Verify(g.webhookSecret, payload, signature)
}
