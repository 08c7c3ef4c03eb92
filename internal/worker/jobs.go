package worker

import (
	"context"

	"go.uber.org/zap"
)

type webhookRetrier interface {
	RetryPending(ctx context.Context, limit int) (int, error)
}

// WebhookRetryJob re-drives stored webhooks that have not been processed yet.
type WebhookRetryJob struct {
	Reconciler webhookRetrier
	Spec       string
	Limit      int
	Log        *zap.Logger
}

func (j *WebhookRetryJob) Name() string     { return "webhook-retry" }
func (j *WebhookRetryJob) Schedule() string { return j.Spec }

func (j *WebhookRetryJob) Run(ctx context.Context) error {
	limit := j.Limit
	if limit <= 0 {
		limit = 100
	}
	n, err := j.Reconciler.RetryPending(ctx, limit)
	if err != nil {
		return err
	}
	if n > 0 && j.Log != nil {
		j.Log.Info("webhooks reprocessed", zap.Int("count", n))
	}
	return nil
}

type trackingRefresher interface {
	RefreshActive(ctx context.Context, limit int) (updated, failed int, err error)
}

// TrackingRefreshJob polls the carrier for shipments that are still moving.
type TrackingRefreshJob struct {
	Tracker trackingRefresher
	Spec    string
	Limit   int
	Log     *zap.Logger
}

func (j *TrackingRefreshJob) Name() string     { return "tracking-refresh" }
func (j *TrackingRefreshJob) Schedule() string { return j.Spec }

func (j *TrackingRefreshJob) Run(ctx context.Context) error {
	limit := j.Limit
	if limit <= 0 {
		limit = 200
	}
	updated, failed, err := j.Tracker.RefreshActive(ctx, limit)
	if err != nil {
		return err
	}
	if j.Log != nil {
		j.Log.Info("tracking refreshed", zap.Int("updated", updated), zap.Int("failed", failed))
	}
	return nil
}
