package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskResult captures the outcome of a completed task: the files it
// produced, result metadata, and how long processing took. Created once on
// completion and retained until cleanup.
type TaskResult struct {
	TaskID         uuid.UUID      `json:"task_id"`
	Success        bool           `json:"success"`
	OutputFiles    []string       `json:"output_files"`
	Metadata       map[string]any `json:"metadata"`
	ProcessingTime time.Duration  `json:"processing_time"`
	CreatedAt      time.Time      `json:"created_at"`
}

// PrimaryFile returns the first output file, which is the one download
// references are derived from. Returns "" when the task produced no files.
func (r *TaskResult) PrimaryFile() string {
	if len(r.OutputFiles) == 0 {
		return ""
	}
	return r.OutputFiles[0]
}
