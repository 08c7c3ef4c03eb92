package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-shipment-booking/internal/accounting"
	"github.com/ariefcatur/go-shipment-booking/internal/config"
	"github.com/ariefcatur/go-shipment-booking/internal/integlog"
	kafkax "github.com/ariefcatur/go-shipment-booking/internal/kafka"
	"github.com/ariefcatur/go-shipment-booking/internal/logging"
	"github.com/ariefcatur/go-shipment-booking/internal/outbound"
	"github.com/ariefcatur/go-shipment-booking/internal/postgres"
	"github.com/ariefcatur/go-shipment-booking/internal/redisx"
	"github.com/ariefcatur/go-shipment-booking/internal/retry"
	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	service := cfg.ServiceName + "-accounting"
	log, err := logging.New(service, cfg.LogLevel, cfg.LogDir)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB: cuma untuk integration log
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis: dedup event_id
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	ilog := integlog.New(&integlog.Repo{DB: db}, log.Named("integration"))
	fwd, err := newForwarder(cfg, ilog, log)
	if err != nil {
		log.Fatal("accounting forwarder", zap.Error(err))
	}
	defer func() { _ = fwd.Close() }()

	svc := &accounting.Service{
		Forwarder: fwd,
		Dedup:     &redisx.Deduper{R: rdb, Service: service},
		Log:       log.Named("accounting"),
	}

	// Consumer
	acc := cfg.Accounting
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, acc.Group, shipments.TopicInvoiceFinalized, acc.Workers, log)
	go func() {
		log.Info("accounting consumer started", zap.String("group", acc.Group),
			zap.String("topic", shipments.TopicInvoiceFinalized), zap.Int("workers", acc.Workers),
			zap.String("transport", acc.Transport))
		if err := cons.Start(ctx, svc.HandleInvoiceFinalized); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down consumer...")
	cancel()
}

func newForwarder(cfg config.Config, ilog *integlog.Logger, log *zap.Logger) (accounting.Forwarder, error) {
	acc := cfg.Accounting
	policy := retry.Default(cfg.RetryBaseDelay)
	switch acc.Transport {
	case "kafka-http", "http":
		if acc.URL == "" {
			return nil, fmt.Errorf("ACCOUNTING_URL required for transport %s", acc.Transport)
		}
		return &accounting.HTTPForwarder{
			Client: outbound.New("accounting", acc.URL, cfg.OutboundTimeout, policy, ilog),
			APIKey: acc.APIKey,
		}, nil
	case "amqp":
		return accounting.NewAMQPForwarder(acc.AMQPURL, acc.Queue, policy, ilog)
	case "log", "":
		return &accounting.LogForwarder{Log: log.Named("accounting")}, nil
	}
	return nil, fmt.Errorf("unknown ACCOUNTING_TRANSPORT %q", acc.Transport)
}
