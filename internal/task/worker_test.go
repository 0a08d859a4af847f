package task

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxhall/tts-api/internal/config"
	"github.com/voxhall/tts-api/internal/domain"
	"github.com/voxhall/tts-api/internal/engine"
)

// waitTerminal polls until the task reaches a terminal state.
func waitTerminal(t *testing.T, m *Manager, id uuid.UUID) *domain.Task {
	t.Helper()
	var task *domain.Task
	require.Eventually(t, func() bool {
		got, err := m.Status(id)
		if err != nil {
			return false
		}
		task = got
		return got.IsComplete()
	}, 5*time.Second, 5*time.Millisecond)
	return task
}

func TestWorkerCompletesTask(t *testing.T) {
	t.Parallel()

	path := writeAudioFixture(t)
	eng := &fakeEngine{infer: func(_ int, _ engine.InferenceRequest) (string, error) {
		return path, nil
	}}
	m := newTestManager(t, config.TaskConfig{}, eng, nil)
	require.NoError(t, m.Start())

	id, err := m.Submit(domain.TaskTypeTTSGeneration, ttsParams("hello world"), nil, nil)
	require.NoError(t, err)

	task := waitTerminal(t, m, id)
	assert.Equal(t, domain.TaskStatusCompleted, task.Status)
	assert.Equal(t, path, task.ResultPath)
	assert.Equal(t, 1.0, task.Progress)
	assert.Equal(t, 1, eng.callCount())

	res, ok := m.Results(id)
	require.True(t, ok)
	assert.Equal(t, []string{path}, res.OutputFiles)
}

func TestWorkerRetriesTransientNetworkError(t *testing.T) {
	t.Parallel()

	path := writeAudioFixture(t)
	eng := &fakeEngine{infer: func(call int, _ engine.InferenceRequest) (string, error) {
		if call < 3 {
			return "", fmt.Errorf("connection timeout contacting model server")
		}
		return path, nil
	}}
	m := newTestManager(t, config.TaskConfig{}, eng, nil)

	var mu sync.Mutex
	var delays []time.Duration
	m.sleep = func(d time.Duration) {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
	}
	require.NoError(t, m.Start())

	id, err := m.Submit(domain.TaskTypeTTSGeneration, ttsParams("hello"), nil, nil)
	require.NoError(t, err)

	task := waitTerminal(t, m, id)
	assert.Equal(t, domain.TaskStatusCompleted, task.Status)
	assert.Equal(t, 3, eng.callCount())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestWorkerFailsAfterExhaustingAttempts(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{infer: func(_ int, _ engine.InferenceRequest) (string, error) {
		return "", fmt.Errorf("connection refused by model server")
	}}
	m := newTestManager(t, config.TaskConfig{}, eng, nil)
	require.NoError(t, m.Start())

	id, err := m.Submit(domain.TaskTypeTTSGeneration, ttsParams("hello"), nil, nil)
	require.NoError(t, err)

	task := waitTerminal(t, m, id)
	assert.Equal(t, domain.TaskStatusFailed, task.Status)
	assert.Equal(t, "network_error: connection refused by model server", task.ErrorMessage)
	assert.Equal(t, 3, eng.callCount())
}

func TestWorkerDoesNotRetryValidationErrors(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{}
	m := newTestManager(t, config.TaskConfig{}, eng, nil)
	require.NoError(t, m.Start())

	id, err := m.Submit(domain.TaskTypeTTSGeneration, ttsParams("   "), nil, nil)
	require.NoError(t, err)

	task := waitTerminal(t, m, id)
	assert.Equal(t, domain.TaskStatusFailed, task.Status)
	assert.Equal(t, "validation_error: invalid input: text is empty", task.ErrorMessage)
	// Validation fails before inference and is never retried.
	assert.Equal(t, 0, eng.callCount())
}

func TestWorkerConversionFallsBackToWav(t *testing.T) {
	t.Parallel()

	path := writeAudioFixture(t)
	eng := &fakeEngine{infer: func(_ int, _ engine.InferenceRequest) (string, error) {
		return path, nil
	}}
	conv := &fakeConverter{convert: func(_ int, _, _ string) (string, error) {
		return "", fmt.Errorf("transcoder rejected stream")
	}}
	m := newTestManager(t, config.TaskConfig{}, eng, conv)
	require.NoError(t, m.Start())

	params := ttsParams("hello")
	params["output_format"] = "mp3"
	id, err := m.Submit(domain.TaskTypeTTSGeneration, params, nil, nil)
	require.NoError(t, err)

	// First attempt fails in conversion; the retry consumes the wav
	// fallback, which skips conversion entirely.
	task := waitTerminal(t, m, id)
	assert.Equal(t, domain.TaskStatusCompleted, task.Status)
	assert.Equal(t, path, task.ResultPath)
	assert.Equal(t, 1, conv.callCount())
	assert.Equal(t, 2, eng.callCount())
}

func TestWorkerConvertsWhenRequested(t *testing.T) {
	t.Parallel()

	path := writeAudioFixture(t)
	eng := &fakeEngine{infer: func(_ int, _ engine.InferenceRequest) (string, error) {
		return path, nil
	}}
	conv := &fakeConverter{}
	m := newTestManager(t, config.TaskConfig{}, eng, conv)
	require.NoError(t, m.Start())

	params := ttsParams("hello")
	params["output_format"] = "mp3"
	id, err := m.Submit(domain.TaskTypeTTSGeneration, params, nil, nil)
	require.NoError(t, err)

	task := waitTerminal(t, m, id)
	assert.Equal(t, domain.TaskStatusCompleted, task.Status)
	assert.Equal(t, path+".mp3", task.ResultPath)
	assert.Equal(t, 1, conv.callCount())
}

func TestWorkerSkipsCancelledTask(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	eng := &fakeEngine{infer: func(_ int, _ engine.InferenceRequest) (string, error) {
		close(done)
		return "", fmt.Errorf("should not run")
	}}
	m := newTestManager(t, config.TaskConfig{}, eng, nil)

	// Cancel before the worker pool starts, so the queued id is stale by
	// the time a worker dequeues it.
	id, err := m.Submit(domain.TaskTypeTTSGeneration, ttsParams("hello"), nil, nil)
	require.NoError(t, err)
	require.True(t, m.Cancel(id))

	require.NoError(t, m.Start())

	select {
	case <-done:
		t.Fatal("cancelled task was executed")
	case <-time.After(100 * time.Millisecond):
	}

	task, err := m.Status(id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCancelled, task.Status)
	assert.Equal(t, 0, eng.callCount())
}

func TestWorkerProgressFollowsStageWeights(t *testing.T) {
	t.Parallel()

	path := writeAudioFixture(t)
	eng := &fakeEngine{infer: func(_ int, _ engine.InferenceRequest) (string, error) {
		return path, nil
	}}
	m := newTestManager(t, config.TaskConfig{}, eng, nil)
	require.NoError(t, m.Start())

	var mu sync.Mutex
	var fractions []float64
	id, err := m.Submit(domain.TaskTypeTTSGeneration, ttsParams("hello"), func(task *domain.Task) {
		mu.Lock()
		fractions = append(fractions, task.Progress)
		mu.Unlock()
	}, nil)
	require.NoError(t, err)

	waitTerminal(t, m, id)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(fractions), 3)
	for i := 1; i < len(fractions); i++ {
		assert.GreaterOrEqual(t, fractions[i], fractions[i-1])
	}
	// Reported progress is the tracker's weighted blend over the stages
	// registered so far. With no conversion, entering file saving puts the
	// blend at 0.8 of the 0.85 total stage weight.
	assert.InDelta(t, 0.8/0.85, fractions[len(fractions)-2], 1e-9)
	assert.Equal(t, 1.0, fractions[len(fractions)-1])
}

func TestWorkerStatusCallbackObservesLifecycle(t *testing.T) {
	t.Parallel()

	path := writeAudioFixture(t)
	eng := &fakeEngine{infer: func(_ int, _ engine.InferenceRequest) (string, error) {
		return path, nil
	}}
	m := newTestManager(t, config.TaskConfig{}, eng, nil)
	require.NoError(t, m.Start())

	var mu sync.Mutex
	var statuses []domain.TaskStatus
	id, err := m.Submit(domain.TaskTypeTTSGeneration, ttsParams("hello"), func(task *domain.Task) {
		mu.Lock()
		statuses = append(statuses, task.Status)
		mu.Unlock()
	}, nil)
	require.NoError(t, err)

	waitTerminal(t, m, id)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, statuses)
	assert.Equal(t, domain.TaskStatusCompleted, statuses[len(statuses)-1])
	for _, s := range statuses[:len(statuses)-1] {
		assert.Equal(t, domain.TaskStatusProcessing, s)
	}
}

func TestWorkerFallbacksIndependentAcrossConcurrentTasks(t *testing.T) {
	t.Parallel()

	path := writeAudioFixture(t)
	eng := &fakeEngine{infer: func(_ int, _ engine.InferenceRequest) (string, error) {
		return path, nil
	}}
	// Both tasks reach conversion before either failure is handled, so the
	// two recoveries consume their fallback options concurrently.
	var arrived sync.WaitGroup
	arrived.Add(2)
	conv := &fakeConverter{convert: func(call int, _, _ string) (string, error) {
		if call <= 2 {
			arrived.Done()
			arrived.Wait()
		}
		return "", fmt.Errorf("transcoder rejected stream")
	}}
	m := newTestManager(t, config.TaskConfig{MaxConcurrentTasks: 2}, eng, conv)
	require.NoError(t, m.Start())

	ids := make([]uuid.UUID, 2)
	for i := range ids {
		params := ttsParams(fmt.Sprintf("hello %d", i))
		params["output_format"] = "mp3"
		id, err := m.Submit(domain.TaskTypeTTSGeneration, params, nil, nil)
		require.NoError(t, err)
		ids[i] = id
	}

	// Each task gets the wav fallback on its retry. A shared cursor would
	// hand one of them mp3 and leave it failing in conversion again.
	for _, id := range ids {
		task := waitTerminal(t, m, id)
		assert.Equal(t, domain.TaskStatusCompleted, task.Status)
		assert.Equal(t, path, task.ResultPath)
	}
	assert.Equal(t, 2, conv.callCount())
	assert.Equal(t, 4, eng.callCount())
}

// blockingEngine holds an inference call open until released, recording
// whether the call's context was cancelled in the meantime.
type blockingEngine struct {
	once      sync.Once
	started   chan struct{}
	release   chan struct{}
	mu        sync.Mutex
	calls     int
	cancelled bool
}

func newBlockingEngine() *blockingEngine {
	return &blockingEngine{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (b *blockingEngine) Infer(ctx context.Context, req engine.InferenceRequest) (string, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	b.once.Do(func() { close(b.started) })
	select {
	case <-ctx.Done():
		b.mu.Lock()
		b.cancelled = true
		b.mu.Unlock()
		return "", ctx.Err()
	case <-b.release:
		return req.OutputPath, nil
	}
}

func (b *blockingEngine) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func (b *blockingEngine) wasCancelled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelled
}

func TestShutdownWaitsForInFlightInference(t *testing.T) {
	t.Parallel()

	path := writeAudioFixture(t)
	eng := newBlockingEngine()
	m := newTestManager(t, config.TaskConfig{ShutdownTimeout: 5 * time.Second}, eng, nil)
	require.NoError(t, m.Start())

	params := ttsParams("hello")
	params["output_path"] = path
	id, err := m.Submit(domain.TaskTypeTTSGeneration, params, nil, nil)
	require.NoError(t, err)

	<-eng.started

	shutdownErr := make(chan error, 1)
	go func() { shutdownErr <- m.Shutdown() }()

	// The in-flight call must ride out the shutdown, not observe a
	// cancellation.
	time.Sleep(50 * time.Millisecond)
	assert.False(t, eng.wasCancelled())

	close(eng.release)
	require.NoError(t, <-shutdownErr)

	task, err := m.Status(id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, task.Status)
	assert.Equal(t, path, task.ResultPath)
	assert.False(t, eng.wasCancelled())
	assert.Equal(t, 1, eng.callCount())
}

func TestShutdownStopsWorkers(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, config.TaskConfig{MaxConcurrentTasks: 2}, &fakeEngine{}, nil)
	require.NoError(t, m.Start())

	assert.NoError(t, m.Shutdown())

	// New submissions are rejected once the queue is closed.
	_, err := m.Submit(domain.TaskTypeTTSGeneration, ttsParams("late"), nil, nil)
	assert.ErrorIs(t, err, ErrQueueClosed)
}
