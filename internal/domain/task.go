package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a background task
type TaskStatus string

// Possible task status values
const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// Task type constants
const (
	// TaskTypeTTSGeneration represents the task type for synthesizing audio from text
	TaskTypeTTSGeneration = "tts_generation"
)

// Common task errors
var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrInvalidFinish = errors.New("finish requires exactly one of result path or error message")
)

// Task represents one unit of background work tracked through its lifecycle.
// Tasks are owned exclusively by the task manager and mutated only under its lock.
type Task struct {
	ID                 uuid.UUID      `json:"id"`
	Status             TaskStatus     `json:"status"`
	Progress           float64        `json:"progress"`
	CurrentStage       string         `json:"current_stage"`
	EstimatedRemaining *float64       `json:"estimated_remaining,omitempty"`
	ResultPath         string         `json:"result_path,omitempty"`
	ErrorMessage       string         `json:"error_message,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	Metadata           map[string]any `json:"metadata"`
}

// NewTask creates a queued Task with a fresh ID for the given type and
// submission parameters. The type and parameters are carried in the
// metadata map so they survive snapshot round-trips.
func NewTask(taskType string, params map[string]any) *Task {
	now := time.Now().UTC()
	if params == nil {
		params = map[string]any{}
	}
	return &Task{
		ID:           uuid.New(),
		Status:       TaskStatusQueued,
		Progress:     0,
		CurrentStage: "Queued",
		CreatedAt:    now,
		UpdatedAt:    now,
		Metadata: map[string]any{
			"task_type": taskType,
			"params":    params,
		},
	}
}

// Type returns the task type recorded at submission, or "unknown" if the
// metadata was lost (for example after a partial snapshot restore).
func (t *Task) Type() string {
	if v, ok := t.Metadata["task_type"].(string); ok {
		return v
	}
	return "unknown"
}

// Params returns the submission parameters recorded in the task metadata.
func (t *Task) Params() map[string]any {
	if v, ok := t.Metadata["params"].(map[string]any); ok {
		return v
	}
	return map[string]any{}
}

// IsComplete reports whether the task reached a terminal state. Terminal
// tasks accept no further progress updates.
func (t *Task) IsComplete() bool {
	switch t.Status {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether the task is queued or processing.
func (t *Task) IsActive() bool {
	return t.Status == TaskStatusQueued || t.Status == TaskStatusProcessing
}

// Clone returns a shallow copy of the task safe to hand to callers outside
// the manager lock. The metadata map is copied one level deep.
func (t *Task) Clone() *Task {
	c := *t
	c.Metadata = make(map[string]any, len(t.Metadata))
	for k, v := range t.Metadata {
		c.Metadata[k] = v
	}
	if t.EstimatedRemaining != nil {
		eta := *t.EstimatedRemaining
		c.EstimatedRemaining = &eta
	}
	return &c
}
