package console

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func TestRegisterTaskSinkWritesHistory(t *testing.T) {
	m := NewManager(setupTestLogger())
	taskID := uuid.New()

	sink := m.RegisterTask(taskID)
	sink("starting stage: Text Processing")
	sink("50.0% | Stage: Text Processing")

	history := m.History(taskID)
	require.Len(t, history, 2)
	assert.Equal(t, "starting stage: Text Processing", history[0].Message)
	assert.Equal(t, "info", history[0].Level)
	assert.False(t, history[0].Timestamp.IsZero())
}

func TestHistoryBounded(t *testing.T) {
	m := NewManager(setupTestLogger())
	taskID := uuid.New()
	sink := m.RegisterTask(taskID)

	for i := 0; i < 150; i++ {
		sink(fmt.Sprintf("line %d", i))
	}

	history := m.History(taskID)
	require.Len(t, history, maxHistoryPerTask)
	assert.Equal(t, "line 50", history[0].Message)
	assert.Equal(t, "line 149", history[len(history)-1].Message)
}

func TestUnregisterRetainsHistory(t *testing.T) {
	m := NewManager(setupTestLogger())
	taskID := uuid.New()
	sink := m.RegisterTask(taskID)
	sink("done")

	m.UnregisterTask(taskID)
	assert.Len(t, m.History(taskID), 1)

	m.Cleanup(taskID)
	assert.Empty(t, m.History(taskID))
}

func TestFanOutIsolatesFailingSubscriber(t *testing.T) {
	m := NewManager(setupTestLogger())
	taskID := uuid.New()

	var received []string
	m.Subscribe(SubscriberFunc(func(id uuid.UUID, e Entry) error {
		return errors.New("subscriber down")
	}))
	m.Subscribe(SubscriberFunc(func(id uuid.UUID, e Entry) error {
		panic("subscriber panic")
	}))
	m.Subscribe(SubscriberFunc(func(id uuid.UUID, e Entry) error {
		received = append(received, e.Message)
		return nil
	}))

	sink := m.RegisterTask(taskID)
	sink("still delivered")

	require.Len(t, received, 1)
	assert.Equal(t, "still delivered", received[0])
	assert.Len(t, m.History(taskID), 1)
}

func TestWriteLevels(t *testing.T) {
	m := NewManager(setupTestLogger())
	taskID := uuid.New()

	m.Write(taskID, "boom", "error")

	history := m.History(taskID)
	require.Len(t, history, 1)
	assert.Equal(t, "error", history[0].Level)
}
