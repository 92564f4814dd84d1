package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/multierr"

	"github.com/angelmondragon/furnishly-backend/pkg/logger"
	"github.com/angelmondragon/furnishly-backend/pkg/metrics"
	"github.com/angelmondragon/furnishly-backend/pkg/tracing"
)

const defaultInterval = time.Hour

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service runs the registered jobs every Interval. A cycle only runs on the
// replica holding the lock, and a failing job never stops the ones after it.
type Service struct {
	ServiceParams
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("cron: logger required")
	case params.Lock == nil:
		return nil, errors.New("cron: lock required")
	}
	if params.Registry == nil {
		params.Registry = NewRegistry()
	}
	if params.Interval <= 0 {
		params.Interval = defaultInterval
	}
	return &Service{ServiceParams: params}, nil
}

// Run starts with an immediate cycle and returns ctx.Err() once ctx ends.
// Cycle errors are logged, never returned.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.Logger.Error(ctx, "cron.cycle_failed", err)
		}
		select {
		case <-ctx.Done():
			s.Logger.Info(ctx, "cron.stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce runs one cycle. It returns nil without running anything when
// another replica owns the lock, and the combined job errors otherwise.
func (s *Service) RunOnce(ctx context.Context) (err error) {
	owned, err := s.Lock.Acquire(ctx)
	switch {
	case err != nil:
		return fmt.Errorf("acquire cron lock: %w", err)
	case !owned:
		s.Metrics.CycleSkipped()
		s.Logger.Info(ctx, "cron.cycle_skipped")
		return nil
	}
	defer func() {
		if releaseErr := s.Lock.Release(ctx); releaseErr != nil {
			s.Logger.Error(ctx, "cron.lock_release_failed", releaseErr)
		}
	}()

	jobs := s.Registry.Jobs()
	started := time.Now()
	for _, job := range jobs {
		err = multierr.Append(err, s.runJob(ctx, job))
	}
	s.Logger.Info(s.Logger.WithFields(ctx, map[string]any{
		"jobs":        len(jobs),
		"failed_jobs": len(multierr.Errors(err)),
		"duration_ms": time.Since(started).Milliseconds(),
	}), "cron.cycle_complete")
	return err
}

func (s *Service) runJob(ctx context.Context, job Job) (err error) {
	name := job.Name()
	ctx, span := tracing.Start(s.Logger.WithField(ctx, "job", name), "cron."+name)
	started := time.Now()

	defer func() {
		took := time.Since(started)
		s.Metrics.ObserveJob(name, took, err)
		span.SetAttributes(attribute.String("cron.job", name), attribute.Int64("cron.duration_ms", took.Milliseconds()))

		ctx := s.Logger.WithField(ctx, "duration_ms", took.Milliseconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "job failed")
			s.Logger.Error(ctx, "cron.job_failed", err)
			err = fmt.Errorf("%s: %w", name, err)
		} else {
			s.Logger.Info(ctx, "cron.job_complete")
		}
		span.End()
	}()

	return job.Run(ctx)
}
