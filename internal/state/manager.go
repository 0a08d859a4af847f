// Package state keeps best-effort, in-memory snapshots of task state for
// crash recovery and checkpointing: a single current snapshot plus a
// bounded append-only history per task. An optional embedded archive adds
// same-host durability; nothing here guarantees cross-restart recovery.
package state

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxhall/tts-api/internal/domain"
)

// maxHistoryPerTask caps snapshot history entries per task.
const maxHistoryPerTask = 10

// Checkpoint is an opaque recovery payload attached to a task's snapshots.
type Checkpoint struct {
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Manager persists task snapshots in memory, with an optional archive for
// best-effort durability.
type Manager struct {
	enabled bool

	mu          sync.Mutex
	current     map[uuid.UUID]domain.TaskSnapshot
	history     map[uuid.UUID][]domain.TaskSnapshot
	checkpoints map[uuid.UUID]Checkpoint

	archive *Archive
	logger  *slog.Logger
}

// NewManager creates a state manager. A nil archive keeps all state
// process-local.
func NewManager(enabled bool, archive *Archive, logger *slog.Logger) *Manager {
	return &Manager{
		enabled:     enabled,
		current:     make(map[uuid.UUID]domain.TaskSnapshot),
		history:     make(map[uuid.UUID][]domain.TaskSnapshot),
		checkpoints: make(map[uuid.UUID]Checkpoint),
		archive:     archive,
		logger:      logger.With("component", "state_manager"),
	}
}

// Save records a snapshot of the task's current state, appending it to the
// bounded history. No-op when persistence is disabled.
func (m *Manager) Save(task *domain.Task) {
	if !m.enabled {
		return
	}

	snap := domain.SnapshotFromTask(task)

	m.mu.Lock()
	if cp, ok := m.checkpoints[task.ID]; ok {
		snap.Checkpoint = cp.Data
	}
	m.current[task.ID] = snap

	history := append(m.history[task.ID], snap)
	if len(history) > maxHistoryPerTask {
		history = history[len(history)-maxHistoryPerTask:]
	}
	m.history[task.ID] = history
	m.mu.Unlock()

	if m.archive != nil {
		if err := m.archive.Put(snap); err != nil {
			m.logger.Warn("failed to archive task snapshot", "task_id", task.ID, "error", err)
		}
	}
}

// Restore returns the current snapshot for a task as a Task, if present.
func (m *Manager) Restore(taskID uuid.UUID) (*domain.Task, bool) {
	if !m.enabled {
		return nil, false
	}
	m.mu.Lock()
	snap, ok := m.current[taskID]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	return snap.ToTask(), true
}

// ActiveTasks returns all tasks whose latest snapshot is queued or
// processing. When an archive is open, its contents are merged in so a
// restarted process can pick up what was archived.
func (m *Manager) ActiveTasks() []*domain.Task {
	if !m.enabled {
		return nil
	}

	byID := make(map[uuid.UUID]domain.TaskSnapshot)
	if m.archive != nil {
		snaps, err := m.archive.All()
		if err != nil {
			m.logger.Warn("failed to read snapshot archive", "error", err)
		}
		for _, s := range snaps {
			byID[s.TaskID] = s
		}
	}

	m.mu.Lock()
	for id, s := range m.current {
		byID[id] = s
	}
	m.mu.Unlock()

	var active []*domain.Task
	for _, snap := range byID {
		task := snap.ToTask()
		if task.IsActive() {
			active = append(active, task)
		}
	}
	return active
}

// CreateCheckpoint attaches an opaque recovery payload to the task. The
// payload rides along on subsequent snapshots.
func (m *Manager) CreateCheckpoint(taskID uuid.UUID, data map[string]any) {
	copied := make(map[string]any, len(data))
	for k, v := range data {
		copied[k] = v
	}

	m.mu.Lock()
	m.checkpoints[taskID] = Checkpoint{Timestamp: time.Now().UTC(), Data: copied}
	if snap, ok := m.current[taskID]; ok {
		snap.Checkpoint = copied
		m.current[taskID] = snap
	}
	m.mu.Unlock()
}

// GetCheckpoint returns the checkpoint payload for a task, if any.
func (m *Manager) GetCheckpoint(taskID uuid.UUID) (map[string]any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.checkpoints[taskID]
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(cp.Data))
	for k, v := range cp.Data {
		out[k] = v
	}
	return out, true
}

// History returns the task's snapshot history in chronological order.
func (m *Manager) History(taskID uuid.UUID) []domain.TaskSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	history := m.history[taskID]
	out := make([]domain.TaskSnapshot, len(history))
	copy(out, history)
	return out
}

// Cleanup removes the current snapshot, checkpoint and history for a task.
func (m *Manager) Cleanup(taskID uuid.UUID) {
	m.mu.Lock()
	delete(m.current, taskID)
	delete(m.checkpoints, taskID)
	delete(m.history, taskID)
	m.mu.Unlock()

	if m.archive != nil {
		if err := m.archive.Delete(taskID); err != nil {
			m.logger.Warn("failed to remove archived snapshot", "task_id", taskID, "error", err)
		}
	}
}

// Stats summarizes persistence state.
func (m *Manager) Stats() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, h := range m.history {
		total += len(h)
	}
	return map[string]any{
		"enabled":               m.enabled,
		"archived":              m.archive != nil,
		"active_snapshots":      len(m.current),
		"checkpoint_count":      len(m.checkpoints),
		"tasks_with_history":    len(m.history),
		"total_history_entries": total,
	}
}
