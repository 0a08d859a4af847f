package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxhall/tts-api/internal/config"
	"github.com/voxhall/tts-api/internal/console"
	"github.com/voxhall/tts-api/internal/domain"
	"github.com/voxhall/tts-api/internal/engine"
	"github.com/voxhall/tts-api/internal/events"
	"github.com/voxhall/tts-api/internal/progress"
	"github.com/voxhall/tts-api/internal/recovery"
	"github.com/voxhall/tts-api/internal/result"
	"github.com/voxhall/tts-api/internal/state"
)

// StatusCallback receives a copy of the task after each status or
// progress change. Callbacks are best-effort: failures are logged and
// never interrupt task processing.
type StatusCallback func(task *domain.Task)

// ConsoleCallback receives task console lines.
type ConsoleCallback func(message string)

// Dependencies are the collaborators a Manager composes. Nil fields are
// replaced with in-memory defaults.
type Dependencies struct {
	Console    *console.Manager
	Recovery   *recovery.Handler
	Recoveries *recovery.Tracker
	State      *state.Manager
	Results    *result.Manager
	Emitter    *events.Emitter
	Logger     *slog.Logger
}

// Manager is the single authority over the task registry, queue and
// worker pool. All shared state is guarded by one coarse lock; the lock is
// held only for state mutation, never across engine or converter calls.
type Manager struct {
	cfg       config.TaskConfig
	caps      config.Capabilities
	engine    engine.Engine
	converter engine.Converter

	queue *Queue

	mu              sync.Mutex
	tasks           map[uuid.UUID]*domain.Task
	statusCallbacks map[uuid.UUID]StatusCallback
	trackers        map[uuid.UUID]*progress.Tracker

	console    *console.Manager
	recovery   *recovery.Handler
	recoveries *recovery.Tracker
	state      *state.Manager
	results    *result.Manager
	emitter    *events.Emitter

	logger *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool

	// sleep is swapped in tests to avoid real backoff waits.
	sleep func(d time.Duration)
}

// NewManager creates a task manager. Call Start to restore persisted tasks
// and launch the worker pool.
func NewManager(
	cfg config.TaskConfig,
	caps config.Capabilities,
	eng engine.Engine,
	conv engine.Converter,
	deps Dependencies,
) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if deps.Console == nil {
		deps.Console = console.NewManager(logger)
	}
	if deps.Recovery == nil {
		deps.Recovery = recovery.NewHandler(logger)
	}
	if deps.Recoveries == nil {
		deps.Recoveries = recovery.NewTracker()
	}
	if deps.State == nil {
		deps.State = state.NewManager(true, nil, logger)
	}
	if deps.Results == nil {
		deps.Results = result.NewManager(logger)
	}
	if deps.Emitter == nil {
		deps.Emitter = events.NewEmitter(logger)
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		cfg:             cfg,
		caps:            caps,
		engine:          eng,
		converter:       conv,
		queue:           NewQueue(cfg.MaxQueueSize, logger),
		tasks:           make(map[uuid.UUID]*domain.Task),
		statusCallbacks: make(map[uuid.UUID]StatusCallback),
		trackers:        make(map[uuid.UUID]*progress.Tracker),
		console:         deps.Console,
		recovery:        deps.Recovery,
		recoveries:      deps.Recoveries,
		state:           deps.State,
		results:         deps.Results,
		emitter:         deps.Emitter,
		logger:          logger.With("component", "task_manager"),
		ctx:             ctx,
		cancel:          cancel,
		sleep:           time.Sleep,
	}

	// Console lines also flow out through the event emitter.
	m.console.Subscribe(console.SubscriberFunc(func(taskID uuid.UUID, e console.Entry) error {
		m.emitter.EmitConsole(context.Background(), events.ConsoleEvent{
			TaskID:    taskID,
			Message:   e.Message,
			Level:     e.Level,
			Timestamp: e.Timestamp,
		})
		return nil
	}))

	return m
}

// Start restores persisted tasks and launches the worker pool.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("task manager already started")
	}
	m.started = true
	m.mu.Unlock()

	m.restore()

	for i := 0; i < m.cfg.MaxConcurrentTasks; i++ {
		m.wg.Add(1)
		go m.worker(i)
	}

	m.logger.Info("task manager started",
		"workers", m.cfg.MaxConcurrentTasks,
		"queue_capacity", m.cfg.MaxQueueSize)
	return nil
}

// restore re-registers persisted tasks. A task found processing cannot
// legitimately be mid-execution at cold start, so it is reset to queued
// and re-enqueued.
func (m *Manager) restore() {
	for _, task := range m.state.ActiveTasks() {
		if task.Status == domain.TaskStatusProcessing {
			task.Status = domain.TaskStatusQueued
			task.CurrentStage = "Restored from persistence"
			task.UpdatedAt = time.Now().UTC()
		}

		m.mu.Lock()
		m.tasks[task.ID] = task
		m.trackers[task.ID] = progress.NewTracker(task.ID, m.console.RegisterTask(task.ID))
		m.mu.Unlock()
		m.state.Save(task)

		if err := m.queue.Enqueue(task.ID); err != nil {
			m.logger.Error("failed to requeue restored task", "task_id", task.ID, "error", err)
			if ferr := m.Finish(task.ID, "", "failed to restore: queue full"); ferr != nil {
				m.logger.Error("failed to fail restored task", "task_id", task.ID, "error", ferr)
			}
			continue
		}
		m.logger.Info("restored task from persistence", "task_id", task.ID, "status", task.Status)
	}
}

// Submit creates a new queued task and places it on the queue. When the
// queue is full the registration is rolled back and ErrQueueFull is
// returned: no task is left half-submitted.
func (m *Manager) Submit(
	taskType string,
	params map[string]any,
	onStatus StatusCallback,
	onConsole ConsoleCallback,
) (uuid.UUID, error) {
	task := domain.NewTask(taskType, params)

	m.mu.Lock()
	m.tasks[task.ID] = task
	if onStatus != nil {
		m.statusCallbacks[task.ID] = onStatus
	}
	sink := m.console.RegisterTask(task.ID)
	if onConsole != nil {
		inner := sink
		cb := onConsole
		sink = func(message string) {
			inner(message)
			func() {
				defer func() {
					if r := recover(); r != nil {
						m.logger.Warn("console callback panicked", "task_id", task.ID, "panic", r)
					}
				}()
				cb(message)
			}()
		}
	}
	m.trackers[task.ID] = progress.NewTracker(task.ID, sink)
	m.mu.Unlock()

	if err := m.queue.Enqueue(task.ID); err != nil {
		// Roll back registration so no task is left "submitted".
		m.mu.Lock()
		delete(m.tasks, task.ID)
		delete(m.statusCallbacks, task.ID)
		delete(m.trackers, task.ID)
		m.mu.Unlock()
		m.console.Cleanup(task.ID)
		return uuid.Nil, err
	}

	m.state.Save(task)
	m.emitStatus(task)
	m.logger.Info("task submitted",
		"task_id", task.ID,
		"task_type", taskType,
		"queue_len", m.queue.Len(),
		"task_timeout", m.cfg.TaskTimeout)
	return task.ID, nil
}

// Status returns a copy of the task, or domain.ErrTaskNotFound.
func (m *Manager) Status(taskID uuid.UUID) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return task.Clone(), nil
}

// Tasks returns copies of all registered tasks.
func (m *Manager) Tasks() []*domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		out = append(out, task.Clone())
	}
	return out
}

// Cancel transitions a queued task to cancelled. Returns false for tasks
// that are already running or terminal: in-flight work is never preempted.
func (m *Manager) Cancel(taskID uuid.UUID) bool {
	m.mu.Lock()
	task, ok := m.tasks[taskID]
	if !ok || task.Status != domain.TaskStatusQueued {
		m.mu.Unlock()
		return false
	}
	task.Status = domain.TaskStatusCancelled
	task.CurrentStage = "Cancelled"
	task.UpdatedAt = time.Now().UTC()
	clone := task.Clone()
	m.mu.Unlock()

	m.state.Save(clone)
	m.emitStatus(clone)
	m.logger.Info("task cancelled", "task_id", taskID)
	return true
}

// ReportProgress updates a task's progress fields. Updates are accepted
// only while the task is processing; anything else is silently dropped.
// The registered status callback fires best-effort.
func (m *Manager) ReportProgress(taskID uuid.UUID, fraction float64, stage string, eta *float64) {
	m.mu.Lock()
	task, ok := m.tasks[taskID]
	if !ok || task.Status != domain.TaskStatusProcessing {
		m.mu.Unlock()
		return
	}
	task.Progress = clamp01(fraction)
	task.CurrentStage = stage
	task.EstimatedRemaining = eta
	task.UpdatedAt = time.Now().UTC()
	clone := task.Clone()
	callback := m.statusCallbacks[taskID]
	m.mu.Unlock()

	m.state.Save(clone)
	m.fireStatusCallback(taskID, callback, clone)
	m.emitStatus(clone)
}

// Finish transitions a task to its terminal state. Exactly one of
// resultPath or errorMessage must be given; anything else is a caller
// contract violation. Finishing an already-terminal task is a no-op.
func (m *Manager) Finish(taskID uuid.UUID, resultPath, errorMessage string) error {
	if (resultPath == "") == (errorMessage == "") {
		return domain.ErrInvalidFinish
	}

	m.mu.Lock()
	task, ok := m.tasks[taskID]
	if !ok {
		m.mu.Unlock()
		return domain.ErrTaskNotFound
	}
	if task.IsComplete() {
		m.mu.Unlock()
		return nil
	}

	if errorMessage != "" {
		task.Status = domain.TaskStatusFailed
		task.ErrorMessage = errorMessage
		task.CurrentStage = "Failed"
	} else {
		task.Status = domain.TaskStatusCompleted
		task.ResultPath = resultPath
		task.CurrentStage = "Completed"
		task.Progress = 1.0
	}
	task.UpdatedAt = time.Now().UTC()
	clone := task.Clone()
	callback := m.statusCallbacks[taskID]
	m.mu.Unlock()

	m.state.Save(clone)

	if clone.Status == domain.TaskStatusCompleted {
		m.results.Store(domain.TaskResult{
			TaskID:  clone.ID,
			Success: true,
			OutputFiles: []string{resultPath},
			Metadata: map[string]any{
				"task_type":       clone.Type(),
				"completion_time": clone.UpdatedAt,
			},
			ProcessingTime: clone.UpdatedAt.Sub(clone.CreatedAt),
			CreatedAt:      clone.UpdatedAt,
		})
	}

	// The sink is dropped but console history stays inspectable.
	m.console.UnregisterTask(taskID)
	m.recoveries.Cleanup(taskID)

	m.fireStatusCallback(taskID, callback, clone)
	m.emitStatus(clone)
	m.logger.Info("task finished",
		"task_id", taskID,
		"status", clone.Status,
		"error", errorMessage)
	return nil
}

// Progress returns the tracker summary for a task.
func (m *Manager) Progress(taskID uuid.UUID) (progress.Summary, error) {
	m.mu.Lock()
	tracker, ok := m.trackers[taskID]
	m.mu.Unlock()
	if !ok {
		return progress.Summary{}, domain.ErrTaskNotFound
	}
	return tracker.Summary(), nil
}

// AllProgress returns tracker summaries for all registered tasks.
func (m *Manager) AllProgress() map[uuid.UUID]progress.Summary {
	m.mu.Lock()
	trackers := make(map[uuid.UUID]*progress.Tracker, len(m.trackers))
	for id, tr := range m.trackers {
		trackers[id] = tr
	}
	m.mu.Unlock()

	out := make(map[uuid.UUID]progress.Summary, len(trackers))
	for id, tr := range trackers {
		out[id] = tr.Summary()
	}
	return out
}

// ConsoleHistory returns the retained console lines for a task.
func (m *Manager) ConsoleHistory(taskID uuid.UUID) []console.Entry {
	return m.console.History(taskID)
}

// Results returns the stored result for a completed task.
func (m *Manager) Results(taskID uuid.UUID) (domain.TaskResult, bool) {
	return m.results.Result(taskID)
}

// AllResults returns summaries for every retained result.
func (m *Manager) AllResults() []result.Summary {
	return m.results.All()
}

// DownloadLink returns the download reference for a task's results.
func (m *Manager) DownloadLink(taskID uuid.UUID) (string, bool) {
	return m.results.DownloadLink(taskID)
}

// CreateCheckpoint attaches a recovery payload to the task's snapshots.
func (m *Manager) CreateCheckpoint(taskID uuid.UUID, data map[string]any) {
	m.state.CreateCheckpoint(taskID, data)
}

// CleanupOld sweeps terminal tasks older than maxAge, releasing the
// registry entry and all subordinate resources together.
func (m *Manager) CleanupOld(maxAge time.Duration) int {
	now := time.Now().UTC()

	m.mu.Lock()
	var removed []uuid.UUID
	for id, task := range m.tasks {
		if task.IsComplete() && now.Sub(task.UpdatedAt) >= maxAge {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		delete(m.tasks, id)
		delete(m.statusCallbacks, id)
		delete(m.trackers, id)
		m.console.Cleanup(id)
		m.state.Cleanup(id)
		m.results.Cleanup(id)
		m.recoveries.Cleanup(id)
	}
	m.mu.Unlock()

	if len(removed) > 0 {
		m.logger.Info("cleaned up old tasks", "count", len(removed))
	}
	return len(removed)
}

// Stats summarizes manager activity across its collaborators.
func (m *Manager) Stats() map[string]any {
	m.mu.Lock()
	registered := len(m.tasks)
	m.mu.Unlock()

	return map[string]any{
		"registered_tasks": registered,
		"queue_len":        m.queue.Len(),
		"recovery":         m.recoveries.Stats(),
		"persistence":      m.state.Stats(),
		"results":          m.results.Count(),
	}
}

// Shutdown stops accepting new work and waits for workers to drain, up to
// the configured shutdown timeout. In-flight engine calls are not
// cancelled; they run to completion or natural failure. The lifecycle
// context is only cancelled once the wait ends, so nothing observing it
// sees a cancellation while work is still in flight.
func (m *Manager) Shutdown() error {
	m.queue.Close()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	timeout := m.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	select {
	case <-done:
		m.cancel()
		m.logger.Info("task manager stopped")
		return nil
	case <-time.After(timeout):
		m.cancel()
		m.logger.Warn("task manager shutdown timed out with workers still running")
		return fmt.Errorf("shutdown timed out after %s", timeout)
	}
}

func (m *Manager) fireStatusCallback(taskID uuid.UUID, callback StatusCallback, task *domain.Task) {
	if callback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("status callback panicked", "task_id", taskID, "panic", r)
		}
	}()
	callback(task)
}

func (m *Manager) emitStatus(task *domain.Task) {
	m.emitter.EmitStatus(context.Background(), events.StatusEvent{
		TaskID:             task.ID,
		Status:             string(task.Status),
		Progress:           task.Progress,
		Stage:              task.CurrentStage,
		EstimatedRemaining: task.EstimatedRemaining,
		ErrorMessage:       task.ErrorMessage,
		Timestamp:          task.UpdatedAt,
	})
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
