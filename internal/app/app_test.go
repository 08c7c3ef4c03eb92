package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-shipment-booking/internal/config"
	"github.com/ariefcatur/go-shipment-booking/internal/hmacsig"
)

func memoryConfig() config.Config {
	return config.Config{
		Env:             "production",
		StorageDriver:   "memory",
		ServiceName:     "shipment-api",
		PublicBaseURL:   "http://localhost:8081",
		PaymentProvider: "stripe",
		DefaultCurrency: "USD",
		FedEx:           config.FedEx{BaseURL: "http://127.0.0.1:1"},
	}
}

func TestMemoryGraphFailsClosedWithoutCredentials(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.True(t, a.Memory())
	assert.Nil(t, a.Producer)
	assert.False(t, a.Payments.IsConfigured())

	_, ok := a.Webhooks.Source("stripe")
	assert.True(t, ok)
	_, ok = a.Webhooks.Source("fedex")
	assert.True(t, ok)
	_, ok = a.Webhooks.Source("mock")
	assert.False(t, ok, "mock webhooks only with fallback or in development")
}

func TestMemoryGraphWithMockFallback(t *testing.T) {
	cfg := memoryConfig()
	cfg.AllowMockFallback = true
	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "mock", a.Payments.Name())
	_, ok := a.Webhooks.Source("mock")
	assert.True(t, ok)

	rr := httptest.NewRecorder()
	a.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	a.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/pricing/rules/vip", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestFallbackCarrierVerifiesFedExSignature(t *testing.T) {
	cfg := memoryConfig()
	cfg.AllowMockFallback = true
	cfg.FedEx.WebhookSecret = "fx_whsec"
	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	fx, err := a.Carriers.Get("fedex")
	require.NoError(t, err)
	require.False(t, fx.IsConfigured())

	body := []byte(`{"trackingNumber":"MOCK123","eventType":"IT"}`)
	assert.True(t, fx.ValidateWebhookSignature(body, hmacsig.Sign("fx_whsec", body)))
	assert.False(t, fx.ValidateWebhookSignature(body, hmacsig.Sign("other", body)))
}

func TestUnknownStorageDriver(t *testing.T) {
	cfg := memoryConfig()
	cfg.StorageDriver = "sqlite"
	_, err := New(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}
