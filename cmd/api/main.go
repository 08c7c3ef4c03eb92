package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

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
	log, err := logging.New(cfg.ServiceName, cfg.LogLevel, cfg.LogDir)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("init", zap.Error(err))
	}
	a.Start(ctx)

	// mode memory: state cuma ada di proses ini, jadi job cron ikut jalan di sini
	var sched *worker.Scheduler
	if a.Memory() {
		sched = worker.NewScheduler(log,
			&worker.WebhookRetryJob{Reconciler: a.Webhooks, Spec: cfg.WebhookSweepCron, Log: log},
			&worker.TrackingRefreshJob{Tracker: a.Tracker, Spec: cfg.TrackingCron, Log: log},
		)
		if err := sched.Start(ctx); err != nil {
			log.Fatal("scheduler", zap.Error(err))
		}
	}

	// HTTP server
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// graceful shutdown
	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr), zap.String("storage", cfg.StorageDriver),
			zap.String("payment", a.Payments.Name()), zap.Bool("mock_fallback", cfg.AllowMockFallback))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	if sched != nil {
		sched.Stop()
	}
	cancel()  // stop producer loop
	a.Close() // flush outbox, tutup db & redis
}
