// Package cron runs maintenance jobs for the ledger on a fixed cadence.
// A KV lock keeps cycles exclusive across worker instances.
package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
	"github.com/angelmondragon/commercepilot-backend/pkg/metrics"
)

const defaultInterval = time.Hour

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service executes registered jobs on a fixed cadence.
type Service struct {
	logg     *logger.Logger
	jobs     []Job
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Lock == nil:
		return nil, fmt.Errorf("lock required")
	}
	svc := &Service{
		logg:     params.Logger,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: params.Interval,
		now:      time.Now,
	}
	if params.Registry != nil {
		svc.jobs = params.Registry.Jobs()
	}
	if svc.interval <= 0 {
		svc.interval = defaultInterval
	}
	return svc, nil
}

// Run executes a cycle immediately and then once per interval until ctx is
// canceled.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.logg.Error(ctx, "cron cycle failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron worker stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce runs every registered job once if the lock can be taken. Job
// failures are logged and counted, never returned.
func (s *Service) RunOnce(ctx context.Context) error {
	held, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !held {
		s.metrics.CycleSkipped()
		s.logg.Info(ctx, "cron lock held elsewhere, cycle skipped")
		return nil
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logg.Error(ctx, "cron lock release failed", err)
		}
	}()

	failed := 0
	for _, job := range s.jobs {
		if !s.execute(ctx, job) {
			failed++
		}
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs":   len(s.jobs),
		"failed": failed,
	}), "cron cycle finished")
	return nil
}

func (s *Service) execute(ctx context.Context, job Job) bool {
	name := job.Name()
	ctx = s.logg.WithJob(ctx, name)

	started := s.now()
	err := safeRun(ctx, job)
	elapsed := s.now().Sub(started)
	s.metrics.RecordRun(name, err, elapsed)

	ctx = s.logg.WithField(ctx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "cron job failed", err)
		return false
	}
	s.logg.Info(ctx, "cron job succeeded")
	return true
}

func safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), r)
		}
	}()
	return job.Run(ctx)
}
