package queue

import (
	"fmt"
	"strings"
)

// JobMessage is the broker payload for a due notification job. It carries
// only identifiers; the worker reloads and claims the job row before firing,
// so a broker redelivery cannot fire the same job twice.
type JobMessage struct {
	JobID  string `json:"jobId"`
	JobKey string `json:"jobKey"`
}

func (m JobMessage) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return fmt.Errorf("jobId is required")
	}
	if strings.TrimSpace(m.JobKey) == "" {
		return fmt.Errorf("jobKey is required")
	}
	return nil
}
