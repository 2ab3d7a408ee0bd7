package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campuspush/fanout-engine/internal/domain"
	"github.com/campuspush/fanout-engine/internal/gateway"
	"github.com/campuspush/fanout-engine/internal/observability"
	"github.com/campuspush/fanout-engine/internal/repository"
)

// FanoutService owns the job lifecycle: scheduling delayed sends,
// immediate sends, cancellation, and status lookup. One job key has at most
// one live (pending or queued) job; scheduling again under the same key
// supersedes the previous one.
type FanoutService struct {
	jobs       repository.JobRepository
	dispatcher *Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics

	immediateBatchSize int
	now                func() time.Time
}

func NewFanoutService(
	jobs repository.JobRepository,
	dispatcher *Dispatcher,
	immediateBatchSize int,
	logger *zap.Logger,
) (*FanoutService, error) {
	if jobs == nil {
		return nil, fmt.Errorf("job repository is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if immediateBatchSize < 1 {
		immediateBatchSize = gateway.ProviderBatchLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &FanoutService{
		jobs:               jobs,
		dispatcher:         dispatcher,
		logger:             logger,
		immediateBatchSize: immediateBatchSize,
		now:                time.Now,
	}, nil
}

func (s *FanoutService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// ScheduleDelayed registers a send that fires once the delay elapses. Any
// live job under the same key is canceled first, so callers can re-schedule
// freely and only the latest payload wins.
func (s *FanoutService) ScheduleDelayed(
	ctx context.Context,
	jobKey string,
	payload domain.Payload,
	selector domain.TargetSelector,
	delay time.Duration,
) (*domain.Job, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	jobKey = strings.TrimSpace(jobKey)
	job := &domain.Job{
		ID:        uuid.NewString(),
		JobKey:    jobKey,
		Payload:   payload,
		Selector:  selector,
		NotBefore: s.now().Add(clampDelay(delay)).UTC(),
		State:     domain.JobStatePending,
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}

	logger := observability.WithContextLogger(s.logger, ctx).With(
		zap.String("jobKey", jobKey),
	)

	superseded, err := s.jobs.CancelLive(ctx, jobKey)
	if err != nil {
		return nil, fmt.Errorf("failed to supersede previous job: %w", err)
	}
	if superseded {
		logger.Info("superseded previously scheduled job")
		if s.metrics != nil {
			s.metrics.IncJob("superseded")
		}
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist scheduled job: %w", err)
	}

	logger.Info("scheduled delayed send",
		zap.Time("notBefore", job.NotBefore),
		zap.String("selector", string(selector)),
	)
	if s.metrics != nil {
		s.metrics.IncJob("scheduled")
	}

	return job, nil
}

// CancelScheduled cancels the live job under the key, if one exists. A job
// that already fired cannot be recalled, so a missing live job is a no-op
// rather than an error.
func (s *FanoutService) CancelScheduled(ctx context.Context, jobKey string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	jobKey = strings.TrimSpace(jobKey)
	if jobKey == "" {
		return fmt.Errorf("%w: job key is required", domain.ErrValidation)
	}

	logger := observability.WithContextLogger(s.logger, ctx).With(
		zap.String("jobKey", jobKey),
	)

	canceled, err := s.jobs.CancelLive(ctx, jobKey)
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}

	if !canceled {
		logger.Debug("cancel had no live job to act on")
		return nil
	}

	logger.Info("canceled scheduled send")
	if s.metrics != nil {
		s.metrics.IncJob("canceled")
	}
	return nil
}

// SendNow fires a notification immediately. A live job under the same key is
// superseded first. The firing itself happens past the fire-and-forget
// boundary: once the job row is recorded as fired, delivery problems are
// logged and counted but never returned to the caller.
func (s *FanoutService) SendNow(
	ctx context.Context,
	jobKey string,
	payload domain.Payload,
	selector domain.TargetSelector,
) (*domain.Job, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	jobKey = strings.TrimSpace(jobKey)
	job := &domain.Job{
		ID:        uuid.NewString(),
		JobKey:    jobKey,
		Payload:   payload,
		Selector:  selector,
		NotBefore: s.now().UTC(),
		State:     domain.JobStateFired,
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}

	logger := observability.WithContextLogger(s.logger, ctx).With(
		zap.String("jobKey", jobKey),
	)

	superseded, err := s.jobs.CancelLive(ctx, jobKey)
	if err != nil {
		return nil, fmt.Errorf("failed to supersede previous job: %w", err)
	}
	if superseded {
		logger.Info("superseded previously scheduled job")
		if s.metrics != nil {
			s.metrics.IncJob("superseded")
		}
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist immediate job: %w", err)
	}
	if s.metrics != nil {
		s.metrics.IncJob("fired")
	}

	fireCtx := observability.WithCorrelationID(ctx, jobKey)
	if err := s.dispatcher.Fire(fireCtx, FireRequest{
		JobKey:    jobKey,
		Payload:   payload,
		Selector:  selector,
		BatchSize: s.immediateBatchSize,
	}); err != nil {
		logger.Error("immediate dispatch failed", zap.Error(err))
	}

	return job, nil
}

// JobStatus returns the most recent job recorded under the key.
func (s *FanoutService) JobStatus(ctx context.Context, jobKey string) (*domain.Job, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	jobKey = strings.TrimSpace(jobKey)
	if jobKey == "" {
		return nil, fmt.Errorf("%w: job key is required", domain.ErrValidation)
	}

	return s.jobs.LatestByKey(ctx, jobKey)
}

func clampDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	return delay
}
