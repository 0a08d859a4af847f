// Package console fans task console output out to subscribers and keeps a
// bounded per-task history so output stays inspectable after completion.
package console

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxHistoryPerTask caps retained console entries per task.
const maxHistoryPerTask = 100

// Entry is one console line for a task.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Level     string    `json:"level"`
}

// Subscriber receives console entries for all registered tasks. A failing
// subscriber must not block or fail other subscribers or the producer.
type Subscriber interface {
	ConsoleLine(taskID uuid.UUID, entry Entry) error
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(taskID uuid.UUID, entry Entry) error

// ConsoleLine calls the underlying function.
func (f SubscriberFunc) ConsoleLine(taskID uuid.UUID, entry Entry) error {
	return f(taskID, entry)
}

// Manager owns per-task console history and subscriber fan-out.
type Manager struct {
	mu          sync.Mutex
	active      map[uuid.UUID]bool
	history     map[uuid.UUID][]Entry
	subscribers []Subscriber
	logger      *slog.Logger
}

// NewManager creates a console output manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		active:  make(map[uuid.UUID]bool),
		history: make(map[uuid.UUID][]Entry),
		logger:  logger.With("component", "console_manager"),
	}
}

// RegisterTask wires a task-scoped sink. Lines written through the returned
// function are timestamped, appended to the task's bounded history, and
// fanned out to subscribers.
func (m *Manager) RegisterTask(taskID uuid.UUID) func(message string) {
	m.mu.Lock()
	m.active[taskID] = true
	if _, ok := m.history[taskID]; !ok {
		m.history[taskID] = nil
	}
	m.mu.Unlock()

	return func(message string) {
		m.Write(taskID, message, "info")
	}
}

// UnregisterTask drops the task's active sink but retains its history until
// explicit cleanup, keeping post-completion inspection possible.
func (m *Manager) UnregisterTask(taskID uuid.UUID) {
	m.mu.Lock()
	delete(m.active, taskID)
	m.mu.Unlock()
}

// Subscribe adds a subscriber for console output from all tasks.
func (m *Manager) Subscribe(sub Subscriber) {
	m.mu.Lock()
	m.subscribers = append(m.subscribers, sub)
	m.mu.Unlock()
}

// Write appends an entry to the task's history and fans it out. History is
// trimmed to the most recent entries.
func (m *Manager) Write(taskID uuid.UUID, message, level string) {
	entry := Entry{Timestamp: time.Now().UTC(), Message: message, Level: level}

	m.mu.Lock()
	history := append(m.history[taskID], entry)
	if len(history) > maxHistoryPerTask {
		history = history[len(history)-maxHistoryPerTask:]
	}
	m.history[taskID] = history

	subs := make([]Subscriber, len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.Unlock()

	// Fan out without the lock. Subscriber failures are isolated and logged.
	for _, sub := range subs {
		m.deliver(sub, taskID, entry)
	}
}

func (m *Manager) deliver(sub Subscriber, taskID uuid.UUID, entry Entry) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("console subscriber panicked", "task_id", taskID, "panic", r)
		}
	}()
	if err := sub.ConsoleLine(taskID, entry); err != nil {
		m.logger.Warn("console subscriber failed", "task_id", taskID, "error", err)
	}
}

// History returns a copy of the task's retained console entries.
func (m *Manager) History(taskID uuid.UUID) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.history[taskID]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// Cleanup removes the task's sink and history.
func (m *Manager) Cleanup(taskID uuid.UUID) {
	m.mu.Lock()
	delete(m.active, taskID)
	delete(m.history, taskID)
	m.mu.Unlock()
}
