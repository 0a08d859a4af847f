package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/voxhall/tts-api/internal/api/shared"
	"github.com/voxhall/tts-api/internal/domain"
	"github.com/voxhall/tts-api/internal/task"
)

// TaskHandler exposes task submission and inspection over HTTP.
type TaskHandler struct {
	manager *task.Manager
	logger  *slog.Logger
}

// NewTaskHandler creates a TaskHandler backed by the given manager.
func NewTaskHandler(manager *task.Manager, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{
		manager: manager,
		logger:  logger.With("component", "task_handler"),
	}
}

// SubmitTask handles POST /api/tasks.
func (h *TaskHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	taskType := req.TaskType
	if taskType == "" {
		taskType = domain.TaskTypeTTSGeneration
	}

	params := map[string]any{
		"text":          req.Text,
		"voice_prompt":  req.VoicePrompt,
		"output_format": req.OutputFormat,
		"output_path":   req.OutputPath,
	}
	if req.BitrateKbps > 0 {
		params["bitrate_kbps"] = req.BitrateKbps
	}
	if len(req.Options) > 0 {
		params["options"] = req.Options
	}

	taskID, err := h.manager.Submit(taskType, params, nil, nil)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	h.logger.Info("task submitted via API", "task_id", taskID, "task_type", taskType)
	shared.RespondWithJSON(w, r, http.StatusAccepted, SubmitTaskResponse{
		TaskID: taskID,
		Status: string(domain.TaskStatusQueued),
	})
}

// ListTasks handles GET /api/tasks.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks := h.manager.Tasks()
	resp := TaskListResponse{Tasks: make([]TaskResponse, 0, len(tasks))}
	for _, t := range tasks {
		link, _ := h.manager.DownloadLink(t.ID)
		resp.Tasks = append(resp.Tasks, taskToResponse(t, link))
	}
	resp.Count = len(resp.Tasks)
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// GetTask handles GET /api/tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := getPathUUID(w, r, "id")
	if !ok {
		return
	}

	t, err := h.manager.Status(taskID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	link, _ := h.manager.DownloadLink(taskID)
	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(t, link))
}

// CancelTask handles DELETE /api/tasks/{id}. Only queued tasks can be
// cancelled; anything else is a conflict.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := getPathUUID(w, r, "id")
	if !ok {
		return
	}

	if _, err := h.manager.Status(taskID); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	if !h.manager.Cancel(taskID) {
		shared.RespondWithError(w, r, http.StatusConflict,
			"Task cannot be cancelled in its current state")
		return
	}

	t, err := h.manager.Status(taskID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(t, ""))
}

// GetProgress handles GET /api/tasks/{id}/progress.
func (h *TaskHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	taskID, ok := getPathUUID(w, r, "id")
	if !ok {
		return
	}

	summary, err := h.manager.Progress(taskID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, summary)
}

// GetAllProgress handles GET /api/tasks/progress, returning tracker
// summaries for every registered task in one call.
func (h *TaskHandler) GetAllProgress(w http.ResponseWriter, r *http.Request) {
	summaries := h.manager.AllProgress()
	shared.RespondWithJSON(w, r, http.StatusOK, AllProgressResponse{
		Tasks: summaries,
		Count: len(summaries),
	})
}

// GetConsole handles GET /api/tasks/{id}/console.
func (h *TaskHandler) GetConsole(w http.ResponseWriter, r *http.Request) {
	taskID, ok := getPathUUID(w, r, "id")
	if !ok {
		return
	}

	if _, err := h.manager.Status(taskID); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	entries := h.manager.ConsoleHistory(taskID)
	resp := ConsoleResponse{TaskID: taskID, Lines: make([]ConsoleLine, 0, len(entries))}
	for _, e := range entries {
		resp.Lines = append(resp.Lines, ConsoleLine{
			Timestamp: e.Timestamp,
			Message:   e.Message,
			Level:     e.Level,
		})
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// GetResult handles GET /api/tasks/{id}/result.
func (h *TaskHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	taskID, ok := getPathUUID(w, r, "id")
	if !ok {
		return
	}

	res, found := h.manager.Results(taskID)
	if !found {
		shared.RespondWithError(w, r, http.StatusNotFound, "No result for this task")
		return
	}

	link, _ := h.manager.DownloadLink(taskID)
	shared.RespondWithJSON(w, r, http.StatusOK, ResultResponse{
		TaskID:         res.TaskID,
		Success:        res.Success,
		OutputFiles:    res.OutputFiles,
		DownloadURL:    link,
		Metadata:       res.Metadata,
		ProcessingTime: res.ProcessingTime.Seconds(),
		CreatedAt:      res.CreatedAt,
	})
}

// ListResults handles GET /api/results.
func (h *TaskHandler) ListResults(w http.ResponseWriter, r *http.Request) {
	results := h.manager.AllResults()
	shared.RespondWithJSON(w, r, http.StatusOK, ResultListResponse{
		Results: results,
		Count:   len(results),
	})
}

// DownloadResult handles GET /api/tasks/{id}/download, serving the task's
// primary output file.
func (h *TaskHandler) DownloadResult(w http.ResponseWriter, r *http.Request) {
	taskID, ok := getPathUUID(w, r, "id")
	if !ok {
		return
	}

	res, found := h.manager.Results(taskID)
	if !found {
		shared.RespondWithError(w, r, http.StatusNotFound, "No result for this task")
		return
	}
	path := res.PrimaryFile()
	if path == "" {
		shared.RespondWithError(w, r, http.StatusNotFound, "Result has no output file")
		return
	}

	h.logger.Debug("serving result download", "task_id", taskID)
	http.ServeFile(w, r, path)
}

// CleanupTasks handles POST /api/tasks/cleanup.
func (h *TaskHandler) CleanupTasks(w http.ResponseWriter, r *http.Request) {
	var req CleanupRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	maxAge := time.Duration(req.MaxAgeHours * float64(time.Hour))
	removed := h.manager.CleanupOld(maxAge)
	shared.RespondWithJSON(w, r, http.StatusOK, CleanupResponse{Removed: removed})
}

// GetStats handles GET /api/stats.
func (h *TaskHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.manager.Stats())
}
