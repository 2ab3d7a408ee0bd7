package queue

import "context"

const (
	// JobQueueName is the durable work queue carrying due notification jobs.
	JobQueueName = "fanout.jobs"
	// JobDLQName receives poison messages rejected by the consumer.
	JobDLQName = "dlq.fanout.jobs"
)

// Publisher publishes job messages to a queue. Publish errors surface
// scheduling-infrastructure failure to the caller; there is no silent drop.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg JobMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg JobMessage) error

// Consumer consumes job messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}
