package events

import (
	"context"
	"log/slog"
	"sync"
)

// Emitter fans task events out to registered publishers. A failing
// publisher is logged and skipped; it never blocks other publishers or
// the producer.
type Emitter struct {
	mu         sync.RWMutex
	publishers []Publisher
	logger     *slog.Logger
}

// NewEmitter creates an emitter with no publishers registered.
func NewEmitter(logger *slog.Logger) *Emitter {
	return &Emitter{
		logger: logger.With("component", "event_emitter"),
	}
}

// Register adds a publisher to receive events.
func (e *Emitter) Register(p Publisher) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.publishers = append(e.publishers, p)
	e.logger.Debug("registered event publisher", "publisher_count", len(e.publishers))
}

// EmitStatus delivers a status event to all publishers, best-effort.
func (e *Emitter) EmitStatus(ctx context.Context, event StatusEvent) {
	for _, p := range e.snapshot() {
		if err := p.PublishStatus(ctx, event); err != nil {
			e.logger.Warn("status event publish failed",
				"task_id", event.TaskID,
				"status", event.Status,
				"error", err)
		}
	}
}

// EmitConsole delivers a console event to all publishers, best-effort.
func (e *Emitter) EmitConsole(ctx context.Context, event ConsoleEvent) {
	for _, p := range e.snapshot() {
		if err := p.PublishConsole(ctx, event); err != nil {
			e.logger.Warn("console event publish failed",
				"task_id", event.TaskID,
				"error", err)
		}
	}
}

// Close closes all registered publishers.
func (e *Emitter) Close() {
	for _, p := range e.snapshot() {
		if err := p.Close(); err != nil {
			e.logger.Warn("event publisher close failed", "error", err)
		}
	}
}

func (e *Emitter) snapshot() []Publisher {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Publisher, len(e.publishers))
	copy(out, e.publishers)
	return out
}
