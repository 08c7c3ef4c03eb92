package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRetrier struct {
	calls atomic.Int32
	limit atomic.Int32
}

func (f *fakeRetrier) RetryPending(_ context.Context, limit int) (int, error) {
	f.calls.Add(1)
	f.limit.Store(int32(limit))
	return 2, nil
}

type fakeRefresher struct{ err error }

func (f *fakeRefresher) RefreshActive(context.Context, int) (int, int, error) { return 1, 0, f.err }

type slowJob struct {
	runs    atomic.Int32
	release chan struct{}
}

func (j *slowJob) Name() string     { return "slow" }
func (j *slowJob) Schedule() string { return "@every 1s" }
func (j *slowJob) Run(context.Context) error {
	j.runs.Add(1)
	<-j.release
	return nil
}

func TestWebhookRetryJobDefaults(t *testing.T) {
	r := &fakeRetrier{}
	j := &WebhookRetryJob{Reconciler: r, Spec: "@every 1m"}

	require.NoError(t, j.Run(context.Background()))
	assert.Equal(t, int32(1), r.calls.Load())
	assert.Equal(t, int32(100), r.limit.Load())
	assert.Equal(t, "@every 1m", j.Schedule())
}

func TestTrackingRefreshJobPropagatesError(t *testing.T) {
	j := &TrackingRefreshJob{Tracker: &fakeRefresher{err: errors.New("db down")}, Spec: "@every 30m"}
	assert.Error(t, j.Run(context.Background()))
}

func TestGuardSkipsOverlappingRuns(t *testing.T) {
	s := NewScheduler(nil)
	j := &slowJob{release: make(chan struct{})}
	run := s.guard(context.Background(), j)

	done := make(chan struct{})
	go func() {
		run()
		close(done)
	}()
	require.Eventually(t, func() bool { return j.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	run() // masih sibuk: di-skip
	assert.Equal(t, int32(1), j.runs.Load())

	close(j.release)
	<-done
	go run()
	require.Eventually(t, func() bool { return j.runs.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(nil, &WebhookRetryJob{Reconciler: &fakeRetrier{}, Spec: "not a cron"})
	assert.Error(t, s.Start(context.Background()))
}
