package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/loomline/erp-backend/pkg/logger"
	"github.com/loomline/erp-backend/pkg/metrics"
	"github.com/loomline/erp-backend/pkg/outbox"
)

const defaultInterval = time.Hour

// ServiceParams configure the cron service. JobTimeout bounds a single job;
// zero means the job may use the whole interval.
type ServiceParams struct {
	Logger     *logger.Logger
	Registry   *Registry
	Lock       Lock
	Metrics    *metrics.CronJobMetrics
	Interval   time.Duration
	JobTimeout time.Duration
}

// CycleReport describes one locked pass over the registry.
type CycleReport struct {
	Skipped bool
	Ran     []string
	Failed  []string
	Err     error
}

// Service runs the registry once per interval under a shared lock.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Lock == nil:
		return nil, fmt.Errorf("lock required")
	}
	svc := &Service{
		logg:       params.Logger,
		registry:   params.Registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   params.Interval,
		jobTimeout: params.JobTimeout,
	}
	if svc.registry == nil {
		svc.registry = &Registry{}
	}
	if svc.interval <= 0 {
		svc.interval = defaultInterval
	}
	if svc.jobTimeout <= 0 || svc.jobTimeout > svc.interval {
		svc.jobTimeout = svc.interval
	}
	return svc, nil
}

// Run cycles immediately and then on every tick until ctx is canceled.
// Job failures are logged and do not stop the loop.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		report := s.Cycle(ctx)
		if report.Err != nil {
			s.logg.Error(ctx, "cron.cycle_failed", report.Err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron.stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce performs one cycle and returns the combined job errors.
func (s *Service) RunOnce(ctx context.Context) error {
	return s.Cycle(ctx).Err
}

// Cycle takes the lock, runs every job in registration order and releases
// the lock. The lock is extended between jobs; losing it ends the cycle. Jobs run with the cron actor so emitted events are attributed.
func (s *Service) Cycle(ctx context.Context) CycleReport {
	ctx = outbox.WithActor(ctx, outbox.ActorRef{Source: "cron"})

	var report CycleReport
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		report.Err = fmt.Errorf("lock acquire: %w", err)
		return report
	}
	if !locked {
		s.logg.Info(ctx, "cron.lock_held")
		report.Skipped = true
		return report
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "cron.lock_release_failed")
		}
	}()

	for i, job := range s.registry.Jobs() {
		if i > 0 {
			if err := s.lock.Extend(ctx); err != nil {
				s.logg.Error(ctx, "cron.lock_lost", err)
				report.Err = multierr.Append(report.Err, fmt.Errorf("before %s: %w", job.Name(), err))
				break
			}
		}
		report.Ran = append(report.Ran, job.Name())
		if err := s.runJob(ctx, job); err != nil {
			report.Failed = append(report.Failed, job.Name())
			report.Err = multierr.Append(report.Err, fmt.Errorf("%s: %w", job.Name(), err))
		}
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs":   len(report.Ran),
		"failed": len(report.Failed),
	}), "cron.cycle_complete")
	return report
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	name := job.Name()
	jobCtx, cancel := context.WithTimeout(s.logg.WithField(ctx, "job", name), s.jobTimeout)
	defer cancel()

	started := time.Now()
	err := job.Run(jobCtx)
	elapsed := time.Since(started)

	s.metrics.ObserveDuration(name, elapsed)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.metrics.IncFailure(name)
		s.logg.Error(jobCtx, "cron.job_failed", err)
		return err
	}
	s.metrics.IncSuccess(name)
	s.logg.Info(jobCtx, "cron.job_complete")
	return nil
}
