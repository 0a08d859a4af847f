package task

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Common errors returned by the Queue
var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
)

// Queue is a bounded FIFO of task ids awaiting a worker. Enqueue never
// blocks; workers consume through Chan with a bounded wait so shutdown can
// be polled.
type Queue struct {
	tasks  chan uuid.UUID
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewQueue creates a queue with the specified capacity.
func NewQueue(capacity int, logger *slog.Logger) *Queue {
	return &Queue{
		tasks:  make(chan uuid.UUID, capacity),
		logger: logger.With("component", "task_queue"),
	}
}

// Enqueue adds a task id without blocking. Returns ErrQueueFull when the
// queue is at capacity and ErrQueueClosed after Close.
func (q *Queue) Enqueue(taskID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- taskID:
		q.logger.Debug("task enqueued",
			"task_id", taskID,
			"queue_len", len(q.tasks),
			"queue_cap", cap(q.tasks))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.tasks))
	}
}

// Chan returns a read-only channel for consuming queued task ids.
func (q *Queue) Chan() <-chan uuid.UUID {
	return q.tasks
}

// Len returns the number of queued task ids.
func (q *Queue) Len() int {
	return len(q.tasks)
}

// Close stops further submissions. Already-queued ids remain readable.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
		q.logger.Info("task queue closed")
	}
}
