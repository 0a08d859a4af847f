package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskSnapshot is a serializable projection of a Task plus an optional
// checkpoint payload. Snapshots are appended to a bounded per-task history
// for recovery and debugging; persistence is best-effort.
type TaskSnapshot struct {
	TaskID             uuid.UUID      `json:"task_id"`
	Status             TaskStatus     `json:"status"`
	Progress           float64        `json:"progress"`
	CurrentStage       string         `json:"current_stage"`
	EstimatedRemaining *float64       `json:"estimated_remaining,omitempty"`
	ResultPath         string         `json:"result_path,omitempty"`
	ErrorMessage       string         `json:"error_message,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	Metadata           map[string]any `json:"metadata"`
	Checkpoint         map[string]any `json:"checkpoint,omitempty"`
}

// SnapshotFromTask creates a snapshot of the task's current state.
func SnapshotFromTask(t *Task) TaskSnapshot {
	c := t.Clone()
	return TaskSnapshot{
		TaskID:             c.ID,
		Status:             c.Status,
		Progress:           c.Progress,
		CurrentStage:       c.CurrentStage,
		EstimatedRemaining: c.EstimatedRemaining,
		ResultPath:         c.ResultPath,
		ErrorMessage:       c.ErrorMessage,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
		Metadata:           c.Metadata,
	}
}

// ToTask converts the snapshot back into a Task.
func (s TaskSnapshot) ToTask() *Task {
	t := &Task{
		ID:                 s.TaskID,
		Status:             s.Status,
		Progress:           s.Progress,
		CurrentStage:       s.CurrentStage,
		EstimatedRemaining: s.EstimatedRemaining,
		ResultPath:         s.ResultPath,
		ErrorMessage:       s.ErrorMessage,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
		Metadata:           s.Metadata,
	}
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}
	return t
}
