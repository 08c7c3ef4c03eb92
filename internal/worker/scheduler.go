// Package worker runs the periodic background jobs on a cron schedule.
package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Job interface {
	Name() string
	Schedule() string
	Run(ctx context.Context) error
}

type Scheduler struct {
	log  *zap.Logger
	cron *cron.Cron
	jobs []Job
}

func NewScheduler(log *zap.Logger, jobs ...Job) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{log: log.Named("worker"), cron: cron.New(), jobs: jobs}
}

// Start registers every job and starts the cron loop. A job still running
// when its next tick fires is skipped for that tick.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, j := range s.jobs {
		run := s.guard(ctx, j)
		if _, err := s.cron.AddFunc(j.Schedule(), run); err != nil {
			s.log.Error("invalid schedule", zap.String("job", j.Name()), zap.String("schedule", j.Schedule()), zap.Error(err))
			return err
		}
		s.log.Info("job scheduled", zap.String("job", j.Name()), zap.String("schedule", j.Schedule()))
	}
	s.cron.Start()
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) guard(ctx context.Context, j Job) func() {
	var busy atomic.Bool
	return func() {
		if !busy.CompareAndSwap(false, true) {
			s.log.Info("job still running, tick skipped", zap.String("job", j.Name()))
			return
		}
		defer busy.Store(false)
		if ctx.Err() != nil {
			return
		}
		started := time.Now()
		if err := j.Run(ctx); err != nil {
			s.log.Error("job failed", zap.String("job", j.Name()), zap.Duration("took", time.Since(started)), zap.Error(err))
			return
		}
		s.log.Debug("job done", zap.String("job", j.Name()), zap.Duration("took", time.Since(started)))
	}
}
