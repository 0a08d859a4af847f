package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StatusEvent describes a task status or progress change. Emitted on every
// lifecycle transition and progress update so external UIs can follow
// tasks without polling.
type StatusEvent struct {
	TaskID             uuid.UUID `json:"task_id"`
	Status             string    `json:"status"`
	Progress           float64   `json:"progress"`
	Stage              string    `json:"stage"`
	EstimatedRemaining *float64  `json:"estimated_remaining,omitempty"`
	ErrorMessage       string    `json:"error_message,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// ConsoleEvent carries one console line produced by a task.
type ConsoleEvent struct {
	TaskID    uuid.UUID `json:"task_id"`
	Message   string    `json:"message"`
	Level     string    `json:"level"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers task events to an external channel. Publishers are
// best-effort observers: failures are logged by the emitter and never
// propagate to task processing.
type Publisher interface {
	// PublishStatus delivers a status event.
	PublishStatus(ctx context.Context, event StatusEvent) error

	// PublishConsole delivers a console event.
	PublishConsole(ctx context.Context, event ConsoleEvent) error

	// Close releases the publisher's resources.
	Close() error
}
