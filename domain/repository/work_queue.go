package repository

import (
	"context"
	"encoding/json"
)

// JobMessage is the envelope every queue transport carries.
type JobMessage struct {
	JobID   string          `json:"jobId"`
	Attempt int             `json:"attempt"`
	Payload json.RawMessage `json:"payload"`
}

// JobHandler processes one delivery. A returned error asks for redelivery.
type JobHandler func(ctx context.Context, msg JobMessage) error

// IWorkQueue delivers each message to one consumer at least once.
type IWorkQueue interface {
	Enqueue(ctx context.Context, msg JobMessage) error
	// Consume blocks until ctx is done or the transport fails.
	Consume(ctx context.Context, handler JobHandler) error
	Close() error
}
