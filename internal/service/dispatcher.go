package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/campuspush/fanout-engine/internal/batch"
	"github.com/campuspush/fanout-engine/internal/domain"
	"github.com/campuspush/fanout-engine/internal/gateway"
	"github.com/campuspush/fanout-engine/internal/observability"
	"github.com/campuspush/fanout-engine/internal/ratelimit"
	"github.com/campuspush/fanout-engine/internal/repository"
)

const (
	defaultGatewayTimeout = 15 * time.Second
	defaultRetryBackoff   = 2 * time.Second
	gatewayLimiterScope   = "gateway"
)

// FireRequest describes one firing handed to the Dispatcher. BatchSize comes
// from the call site: immediate sends and queued firings carry different
// provider caps.
type FireRequest struct {
	JobKey    string
	Payload   domain.Payload
	Selector  domain.TargetSelector
	BatchSize int
}

// Dispatcher performs one fan-out firing: resolve the eligible token
// snapshot, split it into gateway-sized batches, send them concurrently,
// evict permanently invalid tokens, retry transient failures once after a
// fixed backoff, and record counters plus an audit log entry per batch.
//
// Once a firing starts nothing inside it propagates to the caller except a
// failure to resolve the token snapshot; delivery is the success criterion
// and bookkeeping is best-effort.
type Dispatcher struct {
	tokens  repository.TokenRepository
	logs    repository.DeliveryLogRepository
	gateway gateway.Gateway
	limiter ratelimit.RateLimiter
	logger  *zap.Logger
	metrics *observability.Metrics

	gatewayTimeout time.Duration
	retryBackoff   time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(
	tokens repository.TokenRepository,
	logs repository.DeliveryLogRepository,
	gw gateway.Gateway,
	limiter ratelimit.RateLimiter,
	gatewayTimeout time.Duration,
	retryBackoff time.Duration,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token repository is required")
	}
	if logs == nil {
		return nil, fmt.Errorf("delivery log repository is required")
	}
	if gw == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if gatewayTimeout <= 0 {
		gatewayTimeout = defaultGatewayTimeout
	}
	if retryBackoff <= 0 {
		retryBackoff = defaultRetryBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		tokens:         tokens,
		logs:           logs,
		gateway:        gw,
		limiter:        limiter,
		logger:         logger,
		gatewayTimeout: gatewayTimeout,
		retryBackoff:   retryBackoff,
		now:            time.Now,
		sleep:          sleepWithContext,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// Fire executes one firing to completion. The returned error covers only the
// resolution phase; per-batch delivery failures are isolated and logged.
func (d *Dispatcher) Fire(ctx context.Context, req FireRequest) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := observability.WithContextLogger(d.logger, ctx)

	if err := req.Payload.Validate(); err != nil {
		return err
	}
	if !req.Selector.IsValid() {
		return fmt.Errorf("%w: invalid target selector %q", domain.ErrValidation, req.Selector)
	}

	size := req.BatchSize
	if size < 1 || size > gateway.ProviderBatchLimit {
		size = gateway.ProviderBatchLimit
	}

	tokens, err := d.tokens.ListEligible(ctx, req.Selector)
	if err != nil {
		return fmt.Errorf("failed to resolve eligible tokens: %w", err)
	}
	if len(tokens) == 0 {
		logger.Info("no eligible tokens, nothing to deliver",
			zap.String("jobKey", req.JobKey),
		)
		return nil
	}

	batches := batch.Split(tokens, size)
	logger.Info("dispatching notification",
		zap.String("jobKey", req.JobKey),
		zap.Int("tokenCount", len(tokens)),
		zap.Int("batchCount", len(batches)),
		zap.Int("batchSize", size),
	)

	g, groupCtx := errgroup.WithContext(ctx)
	for i := range batches {
		batchIndex := i + 1
		batchTokens := batches[i]

		g.Go(func() error {
			// Batch failures never abort sibling batches.
			d.deliverBatch(groupCtx, req, batchIndex, batchTokens, logger)
			return nil
		})
	}

	return g.Wait()
}

func (d *Dispatcher) deliverBatch(
	ctx context.Context,
	req FireRequest,
	batchIndex int,
	tokens []string,
	logger *zap.Logger,
) {
	if d.metrics != nil {
		d.metrics.IncBatchInflight()
		defer d.metrics.DecBatchInflight()
	}

	succeeded, retryable := d.sendAttempt(ctx, req.Payload, tokens, 1, logger)
	delivered := succeeded

	if len(retryable) > 0 {
		if d.metrics != nil {
			d.metrics.IncBatchRetry()
		}

		if err := d.sleep(ctx, d.retryBackoff); err != nil {
			logger.Warn("retry backoff interrupted, giving up on batch remainder",
				zap.String("jobKey", req.JobKey),
				zap.Int("batch", batchIndex),
				zap.Int("remaining", len(retryable)),
				zap.Error(err),
			)
			d.recordFinalFailures(ctx, req, batchIndex, retryable, logger)
			d.appendDeliveryLog(ctx, req, delivered, logger)
			return
		}

		retried, stillFailing := d.sendAttempt(ctx, req.Payload, retryable, 2, logger)
		delivered = append(delivered, retried...)

		if len(stillFailing) > 0 {
			d.recordFinalFailures(ctx, req, batchIndex, stillFailing, logger)
		}
	}

	d.appendDeliveryLog(ctx, req, delivered, logger)
}

// sendAttempt performs one gateway call for a batch and partitions the
// outcome. Permanently invalid tokens are evicted here and drop out of the
// firing; success counters are recorded as successes happen. Failure
// counters are deferred to the end of the batch so a token failing both
// attempts is counted once.
func (d *Dispatcher) sendAttempt(
	ctx context.Context,
	payload domain.Payload,
	tokens []string,
	attempt int,
	logger *zap.Logger,
) (succeeded []string, retryable []string) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, gatewayLimiterScope); err != nil {
			logger.Warn("rate limiter wait failed, deferring batch",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return nil, tokens
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.gatewayTimeout)
	defer cancel()

	sendStart := d.now()
	result, err := d.gateway.SendBatch(sendCtx, tokens, payload)
	if d.metrics != nil {
		d.metrics.ObserveBatchSendDuration(attempt, d.now().Sub(sendStart))
	}

	if err != nil {
		// Transport failure: no per-token verdict exists, so the whole
		// batch is retryable and no counters move for this attempt.
		logger.Warn("batch send failed in transit",
			zap.Int("attempt", attempt),
			zap.Int("tokenCount", len(tokens)),
			zap.Error(err),
		)
		return nil, tokens
	}

	for _, res := range result.Results {
		switch {
		case res.Success:
			succeeded = append(succeeded, res.Token)
		case res.Reason.Permanent():
			d.evictToken(ctx, res.Token, res.Reason, logger)
		default:
			retryable = append(retryable, res.Token)
		}
	}

	if len(succeeded) > 0 {
		if err := d.tokens.RecordSuccess(ctx, succeeded); err != nil {
			logger.Warn("failed to record success counters",
				zap.Int("tokenCount", len(succeeded)),
				zap.Error(err),
			)
		}
		if d.metrics != nil {
			d.metrics.AddTokensDelivered(len(succeeded))
		}
	}

	return succeeded, retryable
}

func (d *Dispatcher) evictToken(ctx context.Context, token string, reason gateway.ReasonCode, logger *zap.Logger) {
	if err := d.tokens.Evict(ctx, token); err != nil {
		logger.Warn("failed to evict invalid token",
			zap.String("reason", reason.String()),
			zap.Error(err),
		)
		return
	}

	if d.metrics != nil {
		d.metrics.IncTokenEvicted(reason.String())
	}
	logger.Info("evicted permanently invalid token",
		zap.String("reason", reason.String()),
	)
}

func (d *Dispatcher) recordFinalFailures(
	ctx context.Context,
	req FireRequest,
	batchIndex int,
	tokens []string,
	logger *zap.Logger,
) {
	logger.Warn("tokens undeliverable after final attempt",
		zap.String("jobKey", req.JobKey),
		zap.Int("batch", batchIndex),
		zap.Int("tokenCount", len(tokens)),
	)

	if err := d.tokens.RecordFailure(ctx, tokens); err != nil {
		logger.Warn("failed to record failure counters",
			zap.Int("tokenCount", len(tokens)),
			zap.Error(err),
		)
	}
	if d.metrics != nil {
		d.metrics.AddTokensFailed("retry-exhausted", len(tokens))
	}
}

func (d *Dispatcher) appendDeliveryLog(ctx context.Context, req FireRequest, delivered []string, logger *zap.Logger) {
	if len(delivered) == 0 {
		return
	}

	entry := &domain.DeliveryLog{
		ID:        uuid.NewString(),
		JobKey:    req.JobKey,
		Title:     req.Payload.Title,
		Body:      req.Payload.Body,
		ImageURL:  req.Payload.ImageURL,
		Delivered: delivered,
		CreatedAt: d.now().UTC(),
	}

	// Delivery already happened and cannot be rolled back; a failed audit
	// write is reported, not surfaced.
	if err := d.logs.Append(ctx, entry); err != nil {
		logger.Warn("failed to append delivery log",
			zap.String("jobKey", req.JobKey),
			zap.Int("delivered", len(delivered)),
			zap.Error(err),
		)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
