// Package gateway is the outbound push-delivery port.
package gateway

import (
	"context"

	"github.com/campuspush/fanout-engine/internal/domain"
)

// ProviderBatchLimit is the hard per-call token cap imposed by FCM multicast.
const ProviderBatchLimit = 500

// ReasonCode is the machine-readable failure classification for one token.
type ReasonCode string

const (
	// Permanent: the token can never again receive messages. Evict it.
	ReasonUnregistered      ReasonCode = "unregistered"
	ReasonInvalidToken      ReasonCode = "invalid-token"
	ReasonThirdPartyAuthErr ReasonCode = "third-party-auth-error"

	// Transient: eligible for one in-firing retry.
	ReasonUnavailable   ReasonCode = "unavailable"
	ReasonInternal      ReasonCode = "internal"
	ReasonQuotaExceeded ReasonCode = "quota-exceeded"
	ReasonUnknown       ReasonCode = "unknown"
)

func (r ReasonCode) String() string { return string(r) }

// Permanent reports whether the token should be evicted from the registry.
func (r ReasonCode) Permanent() bool {
	switch r {
	case ReasonUnregistered, ReasonInvalidToken, ReasonThirdPartyAuthErr:
		return true
	}
	return false
}

// TokenResult is the outcome of one token within a batch send.
type TokenResult struct {
	Token   string
	Success bool
	Reason  ReasonCode
	Err     error
}

// BatchResult holds per-token outcomes for one gateway call. Results are in
// the same order as the submitted tokens.
type BatchResult struct {
	Results      []TokenResult
	SuccessCount int
	FailureCount int
}

// Gateway sends one batch of at most ProviderBatchLimit tokens. Individual
// token failures never surface as an error; a non-nil error means the whole
// call failed in transit and every token in the batch is retryable.
type Gateway interface {
	SendBatch(ctx context.Context, tokens []string, payload domain.Payload) (*BatchResult, error)
}
