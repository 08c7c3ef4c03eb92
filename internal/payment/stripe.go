package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/ariefcatur/go-shipment-booking/internal/integlog"
	"github.com/ariefcatur/go-shipment-booking/internal/retry"
	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
)

const stripeService = "stripe"

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// BaseURL overrides api.stripe.com (tests).
	BaseURL string
	Timeout time.Duration
}

// StripeGateway drives PaymentIntents. stripe-go's own retries are off; every
// attempt goes through retry.Policy and is written to the integration log.
type StripeGateway struct {
	cfg   StripeConfig
	api   *client.API
	retry retry.Policy
	log   *integlog.Logger
}

func NewStripeGateway(cfg StripeConfig, policy retry.Policy, log *integlog.Logger) *StripeGateway {
	bc := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.BaseURL != "" {
		bc.URL = stripe.String(cfg.BaseURL)
	}
	sc := &client.API{}
	sc.Init(cfg.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, bc),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, bc),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, bc),
	})
	return &StripeGateway{cfg: cfg, api: sc, retry: policy, log: log}
}

func (g *StripeGateway) Name() string       { return stripeService }
func (g *StripeGateway) IsConfigured() bool { return g.cfg.SecretKey != "" }

// do runs one Stripe call per attempt and records it.
func (g *StripeGateway) do(ctx context.Context, op string, reqPayload any, call func(ctx context.Context) (*stripe.APIResponse, error)) error {
	reqBody, _ := json.Marshal(reqPayload)
	return g.retry.Do(ctx, stripeService, func(ctx context.Context, attempt int) error {
		actx := ctx
		if g.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			actx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
			defer cancel()
		}
		start := time.Now()
		resp, err := call(actx)
		entry := integlog.Entry{
			Service:        stripeService,
			Operation:      op,
			Attempt:        attempt,
			RequestPayload: string(reqBody),
			Duration:       time.Since(start),
		}
		if resp != nil {
			entry.StatusCode = resp.StatusCode
			entry.ResponsePayload = string(resp.RawJSON)
		}
		if err != nil {
			var se *stripe.Error
			if errors.As(err, &se) && se.LastResponse != nil {
				entry.ResponsePayload = string(se.LastResponse.RawJSON)
			}
			err = classifyStripe(err)
			entry.Error = err.Error()
			var pe *shipments.ProviderError
			var te *shipments.TransientProviderError
			switch {
			case errors.As(err, &pe):
				entry.StatusCode = pe.StatusCode
			case errors.As(err, &te) && te.StatusCode > 0:
				entry.StatusCode = te.StatusCode
			}
		} else {
			entry.Success = true
		}
		g.log.Record(ctx, entry)
		return err
	})
}

// classifyStripe: 5xx/429/lock_timeout -> transient, 4xx lain -> ProviderError.
func classifyStripe(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return &shipments.TransientProviderError{Service: stripeService, Err: err}
	}
	if se.HTTPStatusCode >= 500 || se.HTTPStatusCode == http.StatusTooManyRequests ||
		se.Code == stripe.ErrorCodeRateLimit || se.Code == stripe.ErrorCodeLockTimeout {
		return &shipments.TransientProviderError{Service: stripeService, StatusCode: se.HTTPStatusCode, Err: err}
	}
	code := string(se.Code)
	if code == "" {
		code = string(se.Type)
	}
	return &shipments.ProviderError{
		Service:    stripeService,
		StatusCode: se.HTTPStatusCode,
		Code:       code,
		Message:    se.Msg,
	}
}

func (g *StripeGateway) CreatePayment(ctx context.Context, req CreateRequest) (*Payment, error) {
	if req.AmountMinor <= 0 {
		return nil, shipments.Invalid("amount", "must be positive")
	}
	summary := map[string]any{
		"amount":      req.AmountMinor,
		"currency":    strings.ToLower(req.Currency),
		"description": req.Description,
		"metadata":    req.Metadata,
	}
	var pi *stripe.PaymentIntent
	err := g.do(ctx, "POST /v1/payment_intents", summary, func(ctx context.Context) (*stripe.APIResponse, error) {
		params := &stripe.PaymentIntentParams{
			Amount:      stripe.Int64(req.AmountMinor),
			Currency:    stripe.String(strings.ToLower(req.Currency)),
			Description: stripe.String(req.Description),
			AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
				Enabled: stripe.Bool(true),
			},
		}
		params.Context = ctx
		if req.IdempotencyKey != "" {
			// key yang sama di setiap attempt, jadi retry tidak membuat intent baru
			params.SetIdempotencyKey(req.IdempotencyKey)
		}
		for k, v := range req.Metadata {
			params.AddMetadata(k, v)
		}
		var err error
		pi, err = g.api.PaymentIntents.New(params)
		if err != nil {
			return nil, err
		}
		return pi.LastResponse, nil
	})
	if err != nil {
		return nil, err
	}
	return intentToPayment(pi), nil
}

func intentToPayment(pi *stripe.PaymentIntent) *Payment {
	p := &Payment{
		ID:           pi.ID,
		Status:       NormalizeStatus(string(pi.Status)),
		AmountMinor:  pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
		ClientSecret: pi.ClientSecret,
	}
	if pi.NextAction != nil && pi.NextAction.RedirectToURL != nil {
		p.TransactionURL = pi.NextAction.RedirectToURL.URL
	}
	return p
}

func (g *StripeGateway) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var pi *stripe.PaymentIntent
	err := g.do(ctx, "GET /v1/payment_intents/{id}", map[string]string{"id": paymentID}, func(ctx context.Context) (*stripe.APIResponse, error) {
		params := &stripe.PaymentIntentParams{}
		params.Context = ctx
		var err error
		pi, err = g.api.PaymentIntents.Get(paymentID, params)
		if err != nil {
			return nil, err
		}
		return pi.LastResponse, nil
	})
	var pe *shipments.ProviderError
	if errors.As(err, &pe) && pe.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return intentToPayment(pi), nil
}

func (g *StripeGateway) VerifyPayment(ctx context.Context, paymentID string) (Status, error) {
	p, err := g.GetPayment(ctx, paymentID)
	if err != nil {
		return "", err
	}
	if p == nil {
		return StatusFailed, nil
	}
	return p.Status, nil
}

func (g *StripeGateway) RefundPayment(ctx context.Context, paymentID string, amountMinor int64) (bool, error) {
	var rf *stripe.Refund
	err := g.do(ctx, "POST /v1/refunds", map[string]any{"payment_intent": paymentID, "amount": amountMinor}, func(ctx context.Context) (*stripe.APIResponse, error) {
		params := &stripe.RefundParams{PaymentIntent: stripe.String(paymentID)}
		if amountMinor > 0 {
			params.Amount = stripe.Int64(amountMinor)
		}
		params.Context = ctx
		var err error
		rf, err = g.api.Refunds.New(params)
		if err != nil {
			return nil, err
		}
		return rf.LastResponse, nil
	})
	if err != nil {
		return false, err
	}
	return rf.Status == stripe.RefundStatusSucceeded || rf.Status == stripe.RefundStatusPending, nil
}

// ValidateWebhookSignature checks a Stripe-Signature header (t=...,v1=...).
func (g *StripeGateway) ValidateWebhookSignature(payload []byte, signature string) bool {
	if g.cfg.WebhookSecret == "" || signature == "" {
		return false
	}
	return webhook.ValidatePayload(payload, signature, g.cfg.WebhookSecret) == nil
}
