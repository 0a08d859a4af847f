package task

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/voxhall/tts-api/internal/domain"
	"github.com/voxhall/tts-api/internal/recovery"
)

// maxRecoveryAttempts bounds how many times the full execution body runs
// for one task. Attempts beyond the first re-run the body from the start:
// there is no partial resume within an attempt.
const maxRecoveryAttempts = 3

func (m *Manager) worker(id int) {
	defer m.wg.Done()

	logger := m.logger.With("worker_id", id)
	logger.Debug("worker started")

	for {
		select {
		case <-m.ctx.Done():
			logger.Debug("worker stopping", "reason", "shutdown")
			return
		case taskID, ok := <-m.queue.Chan():
			if !ok {
				logger.Debug("worker stopping", "reason", "queue closed")
				return
			}
			if !m.claim(taskID) {
				// Cancelled or deregistered while queued.
				continue
			}
			m.process(taskID, logger)
		}
	}
}

// claim transitions a queued task to processing. The dequeue and the
// status check are separate steps, so a cancellation that landed between
// them is honored here: only queued tasks are claimed.
func (m *Manager) claim(taskID uuid.UUID) bool {
	m.mu.Lock()
	task, ok := m.tasks[taskID]
	if !ok || task.Status != domain.TaskStatusQueued {
		m.mu.Unlock()
		return false
	}
	task.Status = domain.TaskStatusProcessing
	task.CurrentStage = "Starting"
	task.UpdatedAt = time.Now().UTC()
	clone := task.Clone()
	m.mu.Unlock()

	m.state.Save(clone)
	m.emitStatus(clone)
	return true
}

func (m *Manager) process(taskID uuid.UUID, logger *slog.Logger) {
	task, err := m.Status(taskID)
	if err != nil {
		return
	}
	logger.Info("processing task", "task_id", taskID, "task_type", task.Type())

	if err := m.runWithRecovery(taskID); err != nil {
		logger.Error("task failed after recovery", "task_id", taskID, "error", err)
	}
}

// runWithRecovery executes the task body under the classify-retry-fallback
// policy. Each invocation owns a fresh fallback cursor set, so option
// consumption carries across retries of the same task but never leaks
// between tasks running on other workers.
func (m *Manager) runWithRecovery(taskID uuid.UUID) error {
	fallbacks := recovery.NewFallbacks()

	task, err := m.Status(taskID)
	if err != nil {
		return err
	}

	var lastResponse recovery.Response
	for attempt := 0; attempt < maxRecoveryAttempts; attempt++ {
		// Persist the pre-attempt state so a crash mid-attempt restores
		// to a re-runnable task.
		if snap, serr := m.Status(taskID); serr == nil {
			m.state.Save(snap)
		}

		resultPath, execErr := m.execute(taskID, lastResponse.FallbackOption)
		if execErr == nil {
			return m.Finish(taskID, resultPath, "")
		}

		m.recoveries.RecordAttempt(taskID)

		ctx := recovery.Context{
			TaskID:   taskID,
			TaskType: task.Type(),
			Stage:    stageOf(execErr),
			Attempt:  attempt,
		}
		category := recovery.Classify(execErr, ctx)
		resp := m.recovery.Handle(category, execErr, ctx, attempt, fallbacks)
		lastResponse = resp

		if !resp.ShouldRetry || attempt == maxRecoveryAttempts-1 {
			m.recoveries.RecordFailure(taskID, resp.Info)
			msg := fmt.Sprintf("%s: %s", category, execErr.Error())
			if ferr := m.Finish(taskID, "", msg); ferr != nil {
				return ferr
			}
			return execErr
		}

		m.logger.Warn("retrying task after error",
			"task_id", taskID,
			"category", category,
			"attempt", attempt+1,
			"delay", resp.RetryDelay,
			"fallback", resp.FallbackOption)
		m.sleep(resp.RetryDelay)
		m.ReportProgress(taskID, 0,
			fmt.Sprintf("Retrying after error (attempt %d/%d)", attempt+2, maxRecoveryAttempts), nil)
	}
	return nil
}

// stageError tags an error with the pipeline stage it escaped from, giving
// the classifier stage context when no keyword matches.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.err.Error() }

func (e *stageError) Unwrap() error { return e.err }

func stageOf(err error) string {
	var se *stageError
	if errors.As(err, &se) {
		return se.stage
	}
	return ""
}
