package task

import (
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(3, slog.Default())
	defer q.Close()

	first := uuid.New()
	second := uuid.New()
	require.NoError(t, q.Enqueue(first))
	require.NoError(t, q.Enqueue(second))
	assert.Equal(t, 2, q.Len())

	assert.Equal(t, first, <-q.Chan())
	assert.Equal(t, second, <-q.Chan())
	assert.Equal(t, 0, q.Len())
}

func TestQueueFull(t *testing.T) {
	t.Parallel()

	q := NewQueue(1, slog.Default())
	defer q.Close()

	require.NoError(t, q.Enqueue(uuid.New()))

	err := q.Enqueue(uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQueueFull)

	// Draining frees a slot.
	<-q.Chan()
	assert.NoError(t, q.Enqueue(uuid.New()))
}

func TestQueueClosed(t *testing.T) {
	t.Parallel()

	q := NewQueue(2, slog.Default())
	q.Close()

	err := q.Enqueue(uuid.New())
	assert.ErrorIs(t, err, ErrQueueClosed)

	// Close is idempotent.
	q.Close()

	_, ok := <-q.Chan()
	assert.False(t, ok)
}
