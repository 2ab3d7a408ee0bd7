package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campuspush/fanout-engine/internal/queue"
	"github.com/campuspush/fanout-engine/internal/repository"
)

const (
	defaultScanInterval = 5 * time.Second
	defaultScanLimit    = 100
)

// Scheduler periodically scans for due pending jobs and hands them to the
// work queue. A job stays PENDING until the broker accepts it, so a failed
// publish is retried on the next scan and nothing is lost.
type Scheduler struct {
	jobs      repository.JobRepository
	publisher queue.Publisher
	logger    *zap.Logger

	scanInterval time.Duration
	scanLimit    int
	now          func() time.Time
}

func NewScheduler(
	jobs repository.JobRepository,
	publisher queue.Publisher,
	scanInterval time.Duration,
	scanLimit int,
	logger *zap.Logger,
) (*Scheduler, error) {
	if jobs == nil {
		return nil, fmt.Errorf("job repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if scanInterval <= 0 {
		scanInterval = defaultScanInterval
	}
	if scanLimit < 1 {
		scanLimit = defaultScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		jobs:         jobs,
		publisher:    publisher,
		logger:       logger,
		scanInterval: scanInterval,
		scanLimit:    scanLimit,
		now:          time.Now,
	}, nil
}

// Start runs the scan loop until the context is canceled.
func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.logger.Info("scheduler started",
		zap.Duration("scanInterval", s.scanInterval),
		zap.Int("scanLimit", s.scanLimit),
	)

	s.scanDue(ctx)

	ticker := time.NewTicker(s.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.scanDue(ctx)
		}
	}
}

func (s *Scheduler) scanDue(ctx context.Context) {
	due, err := s.jobs.GetDuePending(ctx, s.now().UTC(), s.scanLimit)
	if err != nil {
		s.logger.Error("failed to scan for due jobs", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}

	s.logger.Info("found due jobs", zap.Int("count", len(due)))

	for i := range due {
		job := due[i]
		logger := s.logger.With(
			zap.String("jobId", job.ID),
			zap.String("jobKey", job.JobKey),
		)

		msg := queue.JobMessage{JobID: job.ID, JobKey: job.JobKey}
		if err := s.publisher.Publish(ctx, queue.JobQueueName, msg); err != nil {
			// Leave the job PENDING; the next scan picks it up again.
			logger.Error("failed to publish due job", zap.Error(err))
			continue
		}

		marked, err := s.jobs.MarkQueuedIfPending(ctx, job.ID)
		if err != nil {
			logger.Error("failed to mark job queued", zap.Error(err))
			continue
		}
		if !marked {
			// Canceled or superseded between scan and publish; the consumer's
			// claim will skip it.
			logger.Info("job state changed before queue mark")
			continue
		}

		logger.Info("queued due job")
	}
}
