package payment

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-shipment-booking/internal/hmacsig"
	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
)

const mockPrefix = "mock_pay_"

// MockGateway settles every payment it created. Repeating an idempotency key
// returns the first payment.
type MockGateway struct {
	WebhookSecret string

	mu       sync.Mutex
	payments map[string]*Payment
	byKey    map[string]string
	refunded map[string]bool
}

func NewMockGateway(webhookSecret string) *MockGateway {
	return &MockGateway{
		WebhookSecret: webhookSecret,
		payments:      map[string]*Payment{},
		byKey:         map[string]string{},
		refunded:      map[string]bool{},
	}
}

func (m *MockGateway) Name() string       { return "mock" }
func (m *MockGateway) IsConfigured() bool { return true }

func (m *MockGateway) CreatePayment(_ context.Context, req CreateRequest) (*Payment, error) {
	if req.AmountMinor <= 0 {
		return nil, shipments.Invalid("amount", "must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		p := *m.payments[id]
		return &p, nil
	}
	p := &Payment{
		ID:          mockPrefix + uuid.NewString(),
		Status:      StatusInitiated,
		AmountMinor: req.AmountMinor,
		Currency:    strings.ToUpper(req.Currency),
	}
	m.payments[p.ID] = p
	if req.IdempotencyKey != "" {
		m.byKey[req.IdempotencyKey] = p.ID
	}
	out := *p
	return &out, nil
}

func (m *MockGateway) GetPayment(_ context.Context, paymentID string) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentID]
	if !ok {
		return nil, nil
	}
	out := *p
	return &out, nil
}

func (m *MockGateway) VerifyPayment(_ context.Context, paymentID string) (Status, error) {
	if !strings.HasPrefix(paymentID, mockPrefix) {
		return StatusFailed, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refunded[paymentID] {
		return StatusRefunded, nil
	}
	if p, ok := m.payments[paymentID]; ok {
		p.Status = StatusPaid
	}
	return StatusPaid, nil
}

func (m *MockGateway) RefundPayment(_ context.Context, paymentID string, _ int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[paymentID]; !ok {
		return false, nil
	}
	m.refunded[paymentID] = true
	m.payments[paymentID].Status = StatusRefunded
	return true, nil
}

func (m *MockGateway) ValidateWebhookSignature(payload []byte, signature string) bool {
	return hmacsig.Verify(m.WebhookSecret, payload, signature)
}
