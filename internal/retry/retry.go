package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
)

// MaxRetries is the attempt budget for every outbound call.
const MaxRetries = 3

type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Sleep diganti di test supaya tidak benar-benar menunggu.
	Sleep func(ctx context.Context, d time.Duration) error
}

func Default(base time.Duration) Policy {
	return Policy{MaxAttempts: MaxRetries, BaseDelay: base}
}

// Do runs fn up to MaxAttempts times with linear backoff (attempt * BaseDelay).
// Only retryable errors are retried; once the budget is spent the last error is
// wrapped with shipments.ErrProviderUnavailable.
func (p Policy) Do(ctx context.Context, service string, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = MaxRetries
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if !IsRetryable(ctx, err) {
			return err
		}
		last = err
		if attempt == attempts {
			break
		}
		if serr := sleep(ctx, time.Duration(attempt)*p.BaseDelay); serr != nil {
			return fmt.Errorf("%s: %w: %w", service, shipments.ErrProviderUnavailable, serr)
		}
	}
	return fmt.Errorf("%s: %w after %d attempts: %w", service, shipments.ErrProviderUnavailable, attempts, last)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsRetryable: 5xx/429 (TransientProviderError), timeout jaringan, ECONNRESET/ECONNREFUSED.
// Client error (4xx) dan validation tidak pernah di-retry. Kalau ctx induk sudah selesai,
// tidak ada gunanya retry.
func IsRetryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	var transient *shipments.TransientProviderError
	if errors.As(err, &transient) {
		return true
	}
	if shipments.IsValidation(err) || shipments.IsProviderRejection(err) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		// timeout per-attempt (ctx induk masih hidup)
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED)
}
