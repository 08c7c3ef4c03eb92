package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-shipment-booking/internal/app"
	"github.com/ariefcatur/go-shipment-booking/internal/config"
	"github.com/ariefcatur/go-shipment-booking/internal/logging"
	"github.com/ariefcatur/go-shipment-booking/internal/worker"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log, err := logging.New(cfg.ServiceName+"-worker", cfg.LogLevel, cfg.LogDir)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if cfg.StorageDriver == "memory" {
		// memory store tidak di-share antar proses; cmd/api sudah menjalankan job-nya sendiri
		log.Fatal("worker needs STORAGE_DRIVER=postgres")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("init", zap.Error(err))
	}
	a.Start(ctx)

	sched := worker.NewScheduler(log,
		&worker.WebhookRetryJob{Reconciler: a.Webhooks, Spec: cfg.WebhookSweepCron, Log: log},
		&worker.TrackingRefreshJob{Tracker: a.Tracker, Spec: cfg.TrackingCron, Log: log},
	)
	if err := sched.Start(ctx); err != nil {
		log.Fatal("scheduler", zap.Error(err))
	}
	log.Info("worker started", zap.String("webhook_sweep", cfg.WebhookSweepCron), zap.String("tracking_refresh", cfg.TrackingCron))

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down worker...")
	cancel()
	sched.Stop() // tunggu job yang sedang jalan
	a.Close()
}
