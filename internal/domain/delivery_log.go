package domain

import "time"

// DeliveryLog is an append-only audit record: the payload actually handed to
// the gateway and the tokens it confirmed. Written once per batch, never read
// back by the engine.
type DeliveryLog struct {
	ID        string
	JobKey    string
	Title     string
	Body      string
	ImageURL  string
	Delivered []string
	CreatedAt time.Time
}
