package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/campuspush/fanout-engine/internal/domain"
	"github.com/campuspush/fanout-engine/internal/observability"
	"github.com/campuspush/fanout-engine/internal/queue"
	"github.com/campuspush/fanout-engine/internal/repository"
)

const defaultWorkerConcurrency = 8

// Worker consumes queued job messages and fires them. Claiming the job row
// is what makes firing at-most-once: the broker may redeliver, but only the
// first claim flips the row to FIRED and every later delivery is skipped.
type Worker struct {
	jobs       repository.JobRepository
	consumer   queue.Consumer
	dispatcher *Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics

	concurrency        int
	scheduledBatchSize int
}

func NewWorker(
	jobs repository.JobRepository,
	consumer queue.Consumer,
	dispatcher *Dispatcher,
	concurrency int,
	scheduledBatchSize int,
	logger *zap.Logger,
) (*Worker, error) {
	if jobs == nil {
		return nil, fmt.Errorf("job repository is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if concurrency < 1 {
		concurrency = defaultWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Worker{
		jobs:               jobs,
		consumer:           consumer,
		dispatcher:         dispatcher,
		logger:             logger,
		concurrency:        concurrency,
		scheduledBatchSize: scheduledBatchSize,
	}, nil
}

func (w *Worker) SetMetrics(metrics *observability.Metrics) {
	if w == nil {
		return
	}
	w.metrics = metrics
}

// Start runs the consumer loops until the context is canceled.
func (w *Worker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	w.logger.Info("worker started", zap.Int("concurrency", w.concurrency))

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			return w.consumer.Consume(groupCtx, queue.JobQueueName, w.processMessage)
		})
	}

	return g.Wait()
}

// processMessage claims and fires one queued job. A non-nil error requeues
// the message; claimed jobs always return nil because the state transition
// already happened and a redelivery could not repeat it.
func (w *Worker) processMessage(ctx context.Context, msg queue.JobMessage) error {
	logger := w.logger.With(
		zap.String("jobId", msg.JobID),
		zap.String("jobKey", msg.JobKey),
	)

	job, err := w.jobs.ClaimForFiring(ctx, msg.JobID)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Warn("queued job no longer exists, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to claim job for firing: %w", err)
	}
	if job == nil {
		logger.Info("job was canceled or already fired, skipping")
		return nil
	}

	if w.metrics != nil {
		w.metrics.IncJob("fired")
	}
	logger.Info("claimed job for firing")

	fireCtx := observability.WithCorrelationID(ctx, job.JobKey)
	if err := w.dispatcher.Fire(fireCtx, FireRequest{
		JobKey:    job.JobKey,
		Payload:   job.Payload,
		Selector:  job.Selector,
		BatchSize: w.scheduledBatchSize,
	}); err != nil {
		// The job is FIRED; requeueing would risk a duplicate send.
		logger.Error("firing failed after claim", zap.Error(err))
	}

	return nil
}
