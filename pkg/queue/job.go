package queue

import (
	"context"
	"encoding/json"
)

// Job handles one message type.
type Job interface {
	// Type is the message type the job consumes.
	Type() string
	Handle(ctx context.Context, payload json.RawMessage) error
}

// Publisher enqueues work for a registered job type.
type Publisher interface {
	Enqueue(ctx context.Context, msgType string, payload any) (string, error)
}
