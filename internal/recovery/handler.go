package recovery

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Response carries the recovery decision for one error occurrence.
type Response struct {
	Info           ErrorInfo
	ShouldRetry    bool
	RetryDelay     time.Duration
	FallbackOption string
	Suggestions    []string
}

// Handler owns the per-category retry table. Fallback cursors are
// per-task-execution state and travel in a Fallbacks set instead.
type Handler struct {
	mu       sync.Mutex
	policies map[Category]RetryPolicy
	logger   *slog.Logger
}

// NewHandler creates a handler with the fixed default policy table.
func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{
		policies: defaultPolicies(),
		logger:   logger.With("component", "error_handler"),
	}
}

// PolicyFor returns the retry policy for a category, falling back to the
// unknown-category policy.
func (h *Handler) PolicyFor(category Category) RetryPolicy {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p, ok := h.policies[category]; ok {
		return p
	}
	return h.policies[CategoryUnknown]
}

// SetPolicy overrides the retry policy for a category.
func (h *Handler) SetPolicy(category Category, policy RetryPolicy) {
	h.mu.Lock()
	h.policies[category] = policy
	h.mu.Unlock()
}

// Handle classifies the decision for one error occurrence: whether to
// retry, how long to wait, and which fallback option (if any) to consume
// from the caller's cursor set. A nil fallbacks set consumes nothing.
func (h *Handler) Handle(category Category, err error, ctx Context, retryCount int, fallbacks Fallbacks) Response {
	info := ErrorInfo{
		Category:   category,
		Err:        err,
		Context:    ctx,
		Timestamp:  time.Now().UTC(),
		RetryCount: retryCount,
	}

	policy := h.PolicyFor(category)

	resp := Response{
		Info:        info,
		ShouldRetry: policy.ShouldRetry(retryCount),
		RetryDelay:  policy.Delay(retryCount),
		Suggestions: Suggestions(category),
	}

	if fallbacks != nil {
		resp.FallbackOption = fallbacks.Next(category)
	}

	h.logger.Error("task error handled",
		"category", string(category),
		"error", err,
		"retry_count", retryCount,
		"should_retry", resp.ShouldRetry,
		"retry_delay", resp.RetryDelay,
		"stage", ctx.Stage,
		"task_id", ctx.TaskID)

	return resp
}

// Suggestions returns the static recovery checklist for a category,
// suitable for showing users alongside a failed task.
func Suggestions(category Category) []string {
	switch category {
	case CategoryTTSGeneration:
		return []string{
			"Check if model files are properly loaded",
			"Verify input text format and length",
			"Try reducing batch size or text length",
		}
	case CategoryFileProcessing:
		return []string{
			"Check file permissions and accessibility",
			"Verify file format and encoding",
			"Ensure sufficient disk space",
		}
	case CategoryFormatConversion:
		return []string{
			"Try alternative output format",
			"Check audio codec availability",
			"Verify output directory permissions",
		}
	case CategoryResource:
		return []string{
			"Free up system memory",
			"Check GPU memory availability",
			"Reduce processing batch size",
		}
	case CategoryNetwork:
		return []string{
			"Check internet connection",
			"Verify server availability",
			"Try again after a short delay",
		}
	}
	return nil
}

// Tracker counts recovery attempts per task and remembers terminal
// failures until cleanup.
type Tracker struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]int
	failed   map[uuid.UUID]ErrorInfo
}

// NewTracker creates an empty recovery tracker.
func NewTracker() *Tracker {
	return &Tracker{
		attempts: make(map[uuid.UUID]int),
		failed:   make(map[uuid.UUID]ErrorInfo),
	}
}

// RecordAttempt increments and returns the attempt count for a task.
func (t *Tracker) RecordAttempt(taskID uuid.UUID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts[taskID]++
	return t.attempts[taskID]
}

// RecordFailure remembers the terminal error for a task.
func (t *Tracker) RecordFailure(taskID uuid.UUID, info ErrorInfo) {
	t.mu.Lock()
	t.failed[taskID] = info
	t.mu.Unlock()
}

// Attempts returns the recovery attempt count for a task.
func (t *Tracker) Attempts(taskID uuid.UUID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts[taskID]
}

// Cleanup drops all tracking for a task.
func (t *Tracker) Cleanup(taskID uuid.UUID) {
	t.mu.Lock()
	delete(t.attempts, taskID)
	delete(t.failed, taskID)
	t.mu.Unlock()
}

// Stats summarizes recovery activity.
func (t *Tracker) Stats() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0
	for _, n := range t.attempts {
		total += n
	}
	return map[string]any{
		"active_recoveries":       len(t.attempts),
		"failed_tasks":            len(t.failed),
		"total_recovery_attempts": total,
	}
}
