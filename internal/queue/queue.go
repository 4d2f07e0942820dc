package queue

import "context"

const (
	// AdvanceQueue carries batch-advance jobs for rollouts.
	AdvanceQueue = "rollout.advance"
	// AdvanceDLQ receives advance messages rejected as unprocessable.
	AdvanceDLQ = "dlq.rollout.advance"
)

// Publisher publishes rollout advance messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg AdvanceMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg AdvanceMessage) error

// Consumer consumes rollout advance messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}
