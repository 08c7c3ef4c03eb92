// Package app builds the object graph shared by cmd/api and cmd/worker.
package app

import (
	"context"
	"fmt"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-shipment-booking/internal/carrier"
	"github.com/ariefcatur/go-shipment-booking/internal/carrier/fedex"
	"github.com/ariefcatur/go-shipment-booking/internal/checkout"
	"github.com/ariefcatur/go-shipment-booking/internal/config"
	"github.com/ariefcatur/go-shipment-booking/internal/httpx"
	"github.com/ariefcatur/go-shipment-booking/internal/integlog"
	kafkax "github.com/ariefcatur/go-shipment-booking/internal/kafka"
	"github.com/ariefcatur/go-shipment-booking/internal/outbound"
	"github.com/ariefcatur/go-shipment-booking/internal/payment"
	"github.com/ariefcatur/go-shipment-booking/internal/postgres"
	"github.com/ariefcatur/go-shipment-booking/internal/pricing"
	"github.com/ariefcatur/go-shipment-booking/internal/quote"
	"github.com/ariefcatur/go-shipment-booking/internal/redisx"
	"github.com/ariefcatur/go-shipment-booking/internal/retry"
	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
	"github.com/ariefcatur/go-shipment-booking/internal/tracking"
	"github.com/ariefcatur/go-shipment-booking/internal/webhook"
	"github.com/ariefcatur/go-shipment-booking/migrations"
)

// Store is everything the services need from persistence. shipments.Repo and
// shipments.MemoryStore both satisfy it.
type Store interface {
	checkout.Store
	webhook.Store
	tracking.Store
	httpx.ShipmentReader
}

type App struct {
	Cfg config.Config
	Log *zap.Logger

	DB       *pgxpool.Pool    // nil di mode memory
	Redis    *redis.Client    // nil di mode memory
	Producer *kafkax.Producer // nil kalau Kafka tidak dipakai

	Store    Store
	Rules    httpx.RuleStore
	Carriers *carrier.Registry
	Payments payment.Gateway
	Quotes   *quote.Service
	Rater    *quote.Rater
	Checkout *checkout.Service
	Tracker  *tracking.Service
	Webhooks *webhook.Reconciler
}

// Memory reports demo mode: no Postgres, Redis or Kafka, all state in process.
func (a *App) Memory() bool { return a.Cfg.StorageDriver == "memory" }

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	a := &App{Cfg: cfg, Log: log}

	var sink integlog.Sink
	var dedup *redisx.Deduper
	var quoteStore quote.Store
	switch cfg.StorageDriver {
	case "memory":
		log.Warn("storage driver memory: state is lost on restart")
		a.Store = shipments.NewMemoryStore()
		a.Rules = pricing.NewStaticSource(pricing.DefaultRules()...)
		sink = &integlog.MemorySink{}
		quoteStore = quote.NewMemoryStore()
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		a.DB = db
		if cfg.AutoMigrate {
			if err := postgres.Migrate(ctx, db, migrations.FS, log); err != nil {
				db.Close()
				return nil, err
			}
		}
		a.Redis = redisx.New(cfg.RedisAddr)
		a.Store = &shipments.Repo{DB: db}
		a.Rules = &pricing.Repo{DB: db}
		sink = &integlog.Repo{DB: db}
		quoteStore = &quote.RedisStore{R: a.Redis}
		dedup = &redisx.Deduper{R: a.Redis, Service: cfg.ServiceName}
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	var events checkout.Publisher = checkout.DiscardPublisher{}
	if !a.Memory() && len(cfg.KafkaBrokers) > 0 {
		a.Producer = kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
		events = a.Producer
	}

	ilog := integlog.New(sink, log.Named("integration"))
	policy := retry.Default(cfg.RetryBaseDelay)

	mockCarrier := carrier.NewMock(fedex.Code, "FedEx", cfg.DefaultCurrency)
	// scan dari fallback tetap ditandatangani dengan secret FedEx
	mockCarrier.WebhookSecret = cfg.FedEx.WebhookSecret
	fx := fedex.New(fedex.Config{
		ClientID:      cfg.FedEx.ClientID,
		ClientSecret:  cfg.FedEx.ClientSecret,
		AccountNumber: cfg.FedEx.AccountNumber,
		WebhookSecret: cfg.FedEx.WebhookSecret,
		Currency:      cfg.DefaultCurrency,
	}, outbound.New(fedex.Code, cfg.FedEx.BaseURL, cfg.OutboundTimeout, policy, ilog), nil)
	fedexAdapter := carrier.NewFallback(fx, mockCarrier, cfg.AllowMockFallback, log)
	a.Carriers = carrier.NewRegistry(log, fedexAdapter)

	mockPay := payment.NewMockGateway(cfg.MockWebhookSecret)
	var primary payment.Gateway
	switch cfg.PaymentProvider {
	case "hosted":
		primary = payment.NewHostedGateway(cfg.Hosted.APIKey, cfg.Hosted.WebhookSecret,
			outbound.New("hosted", cfg.Hosted.BaseURL, cfg.OutboundTimeout, policy, ilog))
	case "mock":
		primary = mockPay
	default:
		primary = payment.NewStripeGateway(payment.StripeConfig{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			Timeout:       cfg.OutboundTimeout,
		}, policy, ilog)
	}
	a.Payments = payment.Select(primary, mockPay, cfg.AllowMockFallback, log)

	a.Quotes = &quote.Service{Store: quoteStore, TTL: cfg.QuoteTTL}
	a.Rater = &quote.Rater{
		Carriers: a.Carriers,
		Pricing:  &pricing.Engine{Rules: a.Rules, DefaultProfile: "regular"},
		Quotes:   a.Quotes,
	}
	a.Checkout = &checkout.Service{
		Store:         a.Store,
		Quotes:        a.Quotes,
		Carriers:      a.Carriers,
		Payments:      a.Payments,
		Events:        events,
		Log:           log.Named("checkout"),
		PublicBaseURL: cfg.PublicBaseURL,
		Producer:      cfg.ServiceName,
	}
	a.Tracker = &tracking.Service{
		Store:    a.Store,
		Carriers: a.Carriers,
		Events:   events,
		Cache:    &redisx.ShipmentCache{R: a.Redis},
		Log:      log.Named("tracking"),
		Producer: cfg.ServiceName,
	}
	a.Webhooks = &webhook.Reconciler{
		Store:         a.Store,
		Checkout:      a.Checkout,
		Events:        events,
		Dedup:         dedup,
		Cache:         &redisx.ShipmentCache{R: a.Redis},
		Log:           log.Named("webhook"),
		Producer:      cfg.ServiceName,
		AllowUnsigned: cfg.Development(),
	}
	a.registerSources(primary, mockPay, fedexAdapter)
	return a, nil
}

// registerSources wires one webhook source per provider that can call us.
func (a *App) registerSources(primary, mockPay payment.Gateway, fx carrier.Adapter) {
	cfg := a.Cfg
	switch primary.Name() {
	case "stripe":
		a.Webhooks.Register(webhook.StripeSource(cfg.Stripe.WebhookSecret, primary))
	case "hosted":
		a.Webhooks.Register(webhook.HostedSource(cfg.Hosted.WebhookSecret, primary))
	}
	a.Webhooks.Register(webhook.FedExSource(cfg.FedEx.WebhookSecret, fx))
	if cfg.AllowMockFallback || cfg.Development() || primary.Name() == "mock" {
		a.Webhooks.Register(webhook.MockSource(cfg.MockWebhookSecret, mockPay))
	}
}

// Start runs background pieces owned by the graph (the Kafka producer loop).
func (a *App) Start(ctx context.Context) {
	if a.Producer != nil {
		a.Producer.Start(ctx)
	}
}

// Close flushes the producer then releases connections. Call after the
// context passed to Start is cancelled.
func (a *App) Close() {
	if a.Producer != nil {
		a.Producer.Close()
		a.Producer.WaitClosed()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

// Router mounts every HTTP handler on the base router.
func (a *App) Router() *chi.Mux {
	r := httpx.NewRouter(a.Log.Named("http"))
	(&httpx.ShipmentsHandler{
		Rates:    a.Rater,
		Checkout: a.Checkout,
		Tracker:  a.Tracker,
		Store:    a.Store,
		Redis:    a.Redis,
		Log:      a.Log,
	}).Register(r)
	(&httpx.CarrierHandler{Carriers: a.Carriers, Log: a.Log}).Register(r)
	(&httpx.PricingHandler{Rules: a.Rules, Log: a.Log}).Register(r)
	(&httpx.WebhooksHandler{Reconciler: a.Webhooks, Log: a.Log}).Register(r)
	return r
}
