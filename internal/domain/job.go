package domain

import (
	"fmt"
	"strings"
	"time"
)

// JobState represents the lifecycle state of a notification job.
//
// PENDING and QUEUED are live states (QUEUED means published to the broker
// but not yet claimed by a worker); FIRED and CANCELED are terminal. The
// first transition out of a live state wins, the loser is a no-op.
type JobState string

const (
	JobStatePending  JobState = "PENDING"
	JobStateQueued   JobState = "QUEUED"
	JobStateFired    JobState = "FIRED"
	JobStateCanceled JobState = "CANCELED"
)

func (s JobState) String() string { return string(s) }

func (s JobState) IsValid() bool {
	switch s {
	case JobStatePending, JobStateQueued, JobStateFired, JobStateCanceled:
		return true
	}
	return false
}

// IsLive reports whether the job can still be canceled or claimed.
func (s JobState) IsLive() bool {
	return s == JobStatePending || s == JobStateQueued
}

func ParseJobStateFromString(s string) (JobState, error) {
	st := JobState(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid job state %q", ErrValidation, s)
	}
	return st, nil
}

// Job is one logical notification scheduled for fan-out. JobKey is chosen by
// the caller and carries the supersede semantics: at most one live job may
// exist per key, and scheduling a new job under the same key cancels the old
// one first.
type Job struct {
	ID        string
	JobKey    string
	Payload   Payload
	Selector  TargetSelector
	NotBefore time.Time
	State     JobState
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (j *Job) Validate() error {
	if j == nil {
		return fmt.Errorf("%w: job is required", ErrValidation)
	}
	if strings.TrimSpace(j.JobKey) == "" {
		return fmt.Errorf("%w: job key is required", ErrValidation)
	}
	if !j.Selector.IsValid() {
		return fmt.Errorf("%w: invalid target selector %q", ErrValidation, j.Selector)
	}
	if !j.State.IsValid() {
		return fmt.Errorf("%w: invalid job state %q", ErrValidation, j.State)
	}
	return j.Payload.Validate()
}
