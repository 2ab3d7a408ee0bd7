package domain

import "time"

// DeviceToken maps a gateway-issued push token to an optional owning user
// with monotonic delivery counters. The token string itself is the identity.
type DeviceToken struct {
	Token        string
	UserID       *string
	SuccessCount int64
	FailCount    int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
