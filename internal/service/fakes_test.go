package service

import (
	"context"
	"sync"
	"time"

	"github.com/campuspush/fanout-engine/internal/domain"
	"github.com/campuspush/fanout-engine/internal/gateway"
	"github.com/campuspush/fanout-engine/internal/queue"
)

type gatewayCall struct {
	tokens  []string
	payload domain.Payload
}

// fakeGateway scripts per-token outcomes. Each token consumes one queued
// reason per call it appears in; an empty or exhausted queue means success.
// A non-nil transport error fails whole calls instead.
type fakeGateway struct {
	mu       sync.Mutex
	calls    []gatewayCall
	outcomes map[string][]gateway.ReasonCode
	transErr error
	failOnce bool
}

func (f *fakeGateway) SendBatch(_ context.Context, tokens []string, payload domain.Payload) (*gateway.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, gatewayCall{
		tokens:  append([]string(nil), tokens...),
		payload: payload,
	})

	if f.transErr != nil {
		err := f.transErr
		if f.failOnce {
			f.transErr = nil
		}
		return nil, err
	}

	result := &gateway.BatchResult{}
	for _, token := range tokens {
		var reason gateway.ReasonCode
		if pending := f.outcomes[token]; len(pending) > 0 {
			reason = pending[0]
			f.outcomes[token] = pending[1:]
		}

		if reason == "" {
			result.Results = append(result.Results, gateway.TokenResult{Token: token, Success: true})
			result.SuccessCount++
			continue
		}
		result.Results = append(result.Results, gateway.TokenResult{Token: token, Reason: reason})
		result.FailureCount++
	}
	return result, nil
}

func (f *fakeGateway) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeGateway) callTokens() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([][]string, 0, len(f.calls))
	for _, call := range f.calls {
		out = append(out, call.tokens)
	}
	return out
}

type fakeTokenRepo struct {
	mu        sync.Mutex
	eligible  []string
	listErr   error
	successes map[string]int
	failures  map[string]int
	evicted   []string
}

func newFakeTokenRepo(eligible []string) *fakeTokenRepo {
	return &fakeTokenRepo{
		eligible:  eligible,
		successes: make(map[string]int),
		failures:  make(map[string]int),
	}
}

func (f *fakeTokenRepo) Upsert(_ context.Context, _ *domain.DeviceToken) error { return nil }

func (f *fakeTokenRepo) GetByToken(_ context.Context, _ string) (*domain.DeviceToken, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeTokenRepo) ListEligible(_ context.Context, _ domain.TargetSelector) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]string(nil), f.eligible...), nil
}

func (f *fakeTokenRepo) RecordSuccess(_ context.Context, tokens []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, token := range tokens {
		f.successes[token]++
	}
	return nil
}

func (f *fakeTokenRepo) RecordFailure(_ context.Context, tokens []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, token := range tokens {
		f.failures[token]++
	}
	return nil
}

func (f *fakeTokenRepo) Evict(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evicted = append(f.evicted, token)
	return nil
}

func (f *fakeTokenRepo) successTotal() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	total := 0
	for _, n := range f.successes {
		total += n
	}
	return total
}

type fakeDeliveryLogRepo struct {
	mu      sync.Mutex
	entries []domain.DeliveryLog
}

func (f *fakeDeliveryLogRepo) Append(_ context.Context, log *domain.DeliveryLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *log)
	return nil
}

func (f *fakeDeliveryLogRepo) deliveredUnion() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()

	union := make(map[string]int)
	for _, entry := range f.entries {
		for _, token := range entry.Delivered {
			union[token]++
		}
	}
	return union
}

type fakeRateLimiter struct {
	mu    sync.Mutex
	waits int
}

func (f *fakeRateLimiter) Allow(_ context.Context, _ string) (bool, error) { return true, nil }

func (f *fakeRateLimiter) Wait(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits++
	return nil
}

// fakeJobRepo keeps jobs in insertion order so LatestByKey can mirror the
// created_at ordering of the real repository.
type fakeJobRepo struct {
	mu        sync.Mutex
	jobs      []*domain.Job
	createErr error
	cancelErr error
	claimErr  error
	markErr   error
}

func (f *fakeJobRepo) Create(_ context.Context, job *domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}

	stored := *job
	f.jobs = append(f.jobs, &stored)
	return nil
}

func (f *fakeJobRepo) CancelLive(_ context.Context, jobKey string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return false, f.cancelErr
	}

	flipped := false
	for _, job := range f.jobs {
		if job.JobKey == jobKey && job.State.IsLive() {
			job.State = domain.JobStateCanceled
			flipped = true
		}
	}
	return flipped, nil
}

func (f *fakeJobRepo) GetDuePending(_ context.Context, now time.Time, limit int) ([]domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var due []domain.Job
	for _, job := range f.jobs {
		if job.State == domain.JobStatePending && !job.NotBefore.After(now) {
			due = append(due, *job)
			if len(due) == limit {
				break
			}
		}
	}
	return due, nil
}

func (f *fakeJobRepo) MarkQueuedIfPending(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return false, f.markErr
	}

	for _, job := range f.jobs {
		if job.ID == id && job.State == domain.JobStatePending {
			job.State = domain.JobStateQueued
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeJobRepo) ClaimForFiring(_ context.Context, id string) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return nil, f.claimErr
	}

	for _, job := range f.jobs {
		if job.ID != id {
			continue
		}
		if !job.State.IsLive() {
			return nil, nil
		}
		job.State = domain.JobStateFired
		claimed := *job
		return &claimed, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeJobRepo) LatestByKey(_ context.Context, jobKey string) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := len(f.jobs) - 1; i >= 0; i-- {
		if f.jobs[i].JobKey == jobKey {
			latest := *f.jobs[i]
			return &latest, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeJobRepo) byID(id string) *domain.Job {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, job := range f.jobs {
		if job.ID == id {
			copied := *job
			return &copied
		}
	}
	return nil
}

func (f *fakeJobRepo) statesByKey(jobKey string) []domain.JobState {
	f.mu.Lock()
	defer f.mu.Unlock()

	var states []domain.JobState
	for _, job := range f.jobs {
		if job.JobKey == jobKey {
			states = append(states, job.State)
		}
	}
	return states
}

type fakePublisher struct {
	mu         sync.Mutex
	published  []queue.JobMessage
	publishErr error
}

func (f *fakePublisher) Publish(_ context.Context, _ string, msg queue.JobMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) messages() []queue.JobMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]queue.JobMessage(nil), f.published...)
}
