package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/voxhall/tts-api/internal/domain"
	"github.com/voxhall/tts-api/internal/progress"
	"github.com/voxhall/tts-api/internal/result"
)

// Common request/response structures

// SubmitTaskRequest is the payload for the task submission endpoint.
type SubmitTaskRequest struct {
	TaskType     string         `json:"task_type"     validate:"omitempty,max=64"`
	Text         string         `json:"text"          validate:"required,max=20000"`
	VoicePrompt  string         `json:"voice_prompt"  validate:"omitempty,max=1024"`
	OutputFormat string         `json:"output_format" validate:"omitempty,oneof=wav mp3 flac ogg"`
	OutputPath   string         `json:"output_path"   validate:"omitempty,max=1024"`
	BitrateKbps  int            `json:"bitrate_kbps"  validate:"omitempty,min=32,max=320"`
	Options      map[string]any `json:"options"`
}

// SubmitTaskResponse confirms a queued submission.
type SubmitTaskResponse struct {
	TaskID uuid.UUID `json:"task_id"`
	Status string    `json:"status"`
}

// TaskResponse is the external view of a task.
type TaskResponse struct {
	TaskID             uuid.UUID `json:"task_id"`
	TaskType           string    `json:"task_type"`
	Status             string    `json:"status"`
	Progress           float64   `json:"progress"`
	CurrentStage       string    `json:"current_stage,omitempty"`
	EstimatedRemaining *float64  `json:"estimated_remaining,omitempty"`
	ResultPath         string    `json:"result_path,omitempty"`
	DownloadURL        string    `json:"download_url,omitempty"`
	ErrorMessage       string    `json:"error_message,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TaskListResponse wraps a task listing.
type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
	Count int            `json:"count"`
}

// AllProgressResponse maps every registered task to its tracker summary.
type AllProgressResponse struct {
	Tasks map[uuid.UUID]progress.Summary `json:"tasks"`
	Count int                            `json:"count"`
}

// ResultListResponse lists summaries of all retained results.
type ResultListResponse struct {
	Results []result.Summary `json:"results"`
	Count   int              `json:"count"`
}

// ConsoleResponse returns the retained console lines for a task.
type ConsoleResponse struct {
	TaskID uuid.UUID     `json:"task_id"`
	Lines  []ConsoleLine `json:"lines"`
}

// ConsoleLine is one console entry.
type ConsoleLine struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Level     string    `json:"level"`
}

// ResultResponse is the external view of a stored task result.
type ResultResponse struct {
	TaskID         uuid.UUID      `json:"task_id"`
	Success        bool           `json:"success"`
	OutputFiles    []string       `json:"output_files"`
	DownloadURL    string         `json:"download_url,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	ProcessingTime float64        `json:"processing_time_seconds"`
	CreatedAt      time.Time      `json:"created_at"`
}

// CleanupRequest is the payload for the retention sweep endpoint.
type CleanupRequest struct {
	MaxAgeHours float64 `json:"max_age_hours" validate:"min=0"`
}

// CleanupResponse reports how many tasks a sweep removed.
type CleanupResponse struct {
	Removed int `json:"removed"`
}

func taskToResponse(task *domain.Task, downloadURL string) TaskResponse {
	return TaskResponse{
		TaskID:             task.ID,
		TaskType:           task.Type(),
		Status:             string(task.Status),
		Progress:           task.Progress,
		CurrentStage:       task.CurrentStage,
		EstimatedRemaining: task.EstimatedRemaining,
		ResultPath:         task.ResultPath,
		DownloadURL:        downloadURL,
		ErrorMessage:       task.ErrorMessage,
		CreatedAt:          task.CreatedAt,
		UpdatedAt:          task.UpdatedAt,
	}
}
