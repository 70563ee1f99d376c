package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config contains the configuration for the queue.
type Config struct {
	Workers    int           // concurrent handlers
	RetryLimit int           // retries after the first failed attempt
	RetryDelay time.Duration // delay before a failed message is requeued
	JobTimeout time.Duration // deadline of a single Handle call; 0 disables
	PollEvery  time.Duration // retry set polling interval
}

// Message is the envelope stored in Redis.
type Message struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	LastError  string          `json:"last_error,omitempty"`
}

// Decode unmarshals a job payload into T.
func Decode[T any](payload json.RawMessage) (*T, error) {
	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &out, nil
}
