package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/campuspush/fanout-engine/internal/domain"
	"github.com/campuspush/fanout-engine/internal/queue"
)

func newTestWorker(t *testing.T, jobs *fakeJobRepo, gw *fakeGateway, tokens *fakeTokenRepo) *Worker {
	t.Helper()

	d, _ := newTestDispatcher(t, tokens, &fakeDeliveryLogRepo{}, gw, &fakeRateLimiter{})

	w, err := NewWorker(jobs, noopConsumer{}, d, 1, 100, zap.NewNop())
	if err != nil {
		t.Fatalf("NewWorker() error = %v", err)
	}
	return w
}

type noopConsumer struct{}

func (noopConsumer) Consume(ctx context.Context, _ string, _ queue.MessageHandler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (noopConsumer) Close() error { return nil }

func TestWorkerProcessMessageClaimsAndFires(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	jobs := &fakeJobRepo{}
	job := pendingJob("job-1", "key-1", now)
	job.State = domain.JobStateQueued
	_ = jobs.Create(context.Background(), job)

	eligible := make([]string, 0, 250)
	for i := 0; i < 250; i++ {
		eligible = append(eligible, fmt.Sprintf("tok-%03d", i))
	}
	gw := &fakeGateway{}
	w := newTestWorker(t, jobs, gw, newFakeTokenRepo(eligible))

	err := w.processMessage(context.Background(), queue.JobMessage{JobID: "job-1", JobKey: "key-1"})
	if err != nil {
		t.Fatalf("processMessage() error = %v", err)
	}

	if got := jobs.byID("job-1").State; got != domain.JobStateFired {
		t.Fatalf("state = %s, want FIRED", got)
	}

	// 250 tokens at the queued-firing batch size of 100 makes three calls.
	if got := gw.callCount(); got != 3 {
		t.Fatalf("gateway calls = %d, want 3", got)
	}
	for _, call := range gw.callTokens() {
		if len(call) > 100 {
			t.Fatalf("batch size = %d, want at most 100", len(call))
		}
	}
}

func TestWorkerProcessMessageSkipsCanceledJob(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	jobs := &fakeJobRepo{}
	job := pendingJob("job-1", "key-1", now)
	job.State = domain.JobStateCanceled
	_ = jobs.Create(context.Background(), job)

	gw := &fakeGateway{}
	w := newTestWorker(t, jobs, gw, newFakeTokenRepo([]string{"tok-a"}))

	err := w.processMessage(context.Background(), queue.JobMessage{JobID: "job-1", JobKey: "key-1"})
	if err != nil {
		t.Fatalf("processMessage() error = %v, want nil so the message is acked", err)
	}
	if gw.callCount() != 0 {
		t.Fatalf("gateway calls = %d, want 0 for a canceled job", gw.callCount())
	}
}

func TestWorkerProcessMessageRedeliveryFiresOnce(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	jobs := &fakeJobRepo{}
	job := pendingJob("job-1", "key-1", now)
	job.State = domain.JobStateQueued
	_ = jobs.Create(context.Background(), job)

	gw := &fakeGateway{}
	w := newTestWorker(t, jobs, gw, newFakeTokenRepo([]string{"tok-a"}))

	msg := queue.JobMessage{JobID: "job-1", JobKey: "key-1"}
	if err := w.processMessage(context.Background(), msg); err != nil {
		t.Fatalf("first processMessage() error = %v", err)
	}
	if err := w.processMessage(context.Background(), msg); err != nil {
		t.Fatalf("redelivered processMessage() error = %v", err)
	}

	if gw.callCount() != 1 {
		t.Fatalf("gateway calls = %d, want 1 across redeliveries", gw.callCount())
	}
}

func TestWorkerProcessMessageMissingJob(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	w := newTestWorker(t, &fakeJobRepo{}, gw, newFakeTokenRepo(nil))

	err := w.processMessage(context.Background(), queue.JobMessage{JobID: "ghost", JobKey: "key-1"})
	if err != nil {
		t.Fatalf("processMessage() error = %v, want nil so the poison message is dropped", err)
	}
	if gw.callCount() != 0 {
		t.Fatalf("gateway calls = %d, want 0", gw.callCount())
	}
}

func TestWorkerProcessMessageClaimFailureRequeues(t *testing.T) {
	t.Parallel()

	jobs := &fakeJobRepo{claimErr: errors.New("database down")}
	w := newTestWorker(t, jobs, &fakeGateway{}, newFakeTokenRepo(nil))

	err := w.processMessage(context.Background(), queue.JobMessage{JobID: "job-1", JobKey: "key-1"})
	if err == nil {
		t.Fatal("processMessage() should fail so the broker requeues the message")
	}
}

func TestWorkerStartStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	w := newTestWorker(t, &fakeJobRepo{}, &fakeGateway{}, newFakeTokenRepo(nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Start(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Start() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not stop after context cancellation")
	}
}
