package queue

import "context"

// Job handles every message of one type.
type Job interface {
	// Type returns the message type the job consumes.
	Type() string

	// Handle processes the raw JSON payload of one message.
	Handle(ctx context.Context, payload []byte) error
}
