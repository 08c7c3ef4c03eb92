package payment

import (
	"context"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
)

// Select picks the gateway checkout will use. A configured provider always
// wins; an unconfigured one is replaced by mock only when allowMock is set.
func Select(primary Gateway, mock Gateway, allowMock bool, log *zap.Logger) Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	if primary != nil && primary.IsConfigured() {
		return primary
	}
	name := "payment"
	if primary != nil {
		name = primary.Name()
	}
	if allowMock && mock != nil {
		log.Warn("payment provider not configured, using mock gateway", zap.String("provider", name))
		return mock
	}
	log.Warn("payment provider not configured and mock fallback disabled", zap.String("provider", name))
	return Unconfigured{Provider: name}
}

// Unconfigured refuses every money-moving call.
type Unconfigured struct{ Provider string }

func (u Unconfigured) Name() string       { return u.Provider }
func (u Unconfigured) IsConfigured() bool { return false }

func (u Unconfigured) CreatePayment(context.Context, CreateRequest) (*Payment, error) {
	return nil, shipments.ErrMockFallbackDisabled
}

func (u Unconfigured) GetPayment(context.Context, string) (*Payment, error) {
	return nil, shipments.ErrMockFallbackDisabled
}

func (u Unconfigured) VerifyPayment(context.Context, string) (Status, error) {
	return "", shipments.ErrMockFallbackDisabled
}

func (u Unconfigured) RefundPayment(context.Context, string, int64) (bool, error) {
	return false, shipments.ErrMockFallbackDisabled
}

func (u Unconfigured) ValidateWebhookSignature([]byte, string) bool { return false }
