package task

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/apply-orchestrator/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockTaskRunner records submitted tasks.
type MockTaskRunner struct {
	SubmitFn       func(ctx context.Context, task Task) error
	LastSubmitTask Task
}

func (m *MockTaskRunner) Submit(ctx context.Context, task Task) error {
	m.LastSubmitTask = task
	if m.SubmitFn != nil {
		return m.SubmitFn(ctx, task)
	}
	return nil
}

func TestTaskFactoryEventHandler_HandleEvent(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mirrorID, ownerID := uuid.New(), uuid.New()

	newEvent := func(t *testing.T) *events.RunRequestEvent {
		event, err := events.NewApplyRequestedEvent(mirrorID, ownerID)
		require.NoError(t, err)
		return event
	}

	t.Run("apply requested event is submitted", func(t *testing.T) {
		var gotMirror, gotOwner uuid.UUID
		factory := &MockTaskFactory{
			CreateTaskFn: func(m, o uuid.UUID) (Task, error) {
				gotMirror, gotOwner = m, o
				return NewMockTask(m), nil
			},
		}
		runner := &MockTaskRunner{}

		h := NewTaskFactoryEventHandler(factory, runner, logger)
		require.NoError(t, h.HandleEvent(context.Background(), newEvent(t)))

		assert.Equal(t, mirrorID, gotMirror)
		assert.Equal(t, ownerID, gotOwner)
		require.NotNil(t, runner.LastSubmitTask)
		assert.Equal(t, mirrorID, runner.LastSubmitTask.ID())
	})

	t.Run("other event types are ignored", func(t *testing.T) {
		runner := &MockTaskRunner{}
		h := NewTaskFactoryEventHandler(&MockTaskFactory{}, runner, logger)

		event, err := events.NewRunRequestEvent("something_else", map[string]string{})
		require.NoError(t, err)

		assert.NoError(t, h.HandleEvent(context.Background(), event))
		assert.Nil(t, runner.LastSubmitTask)
	})

	t.Run("malformed payload", func(t *testing.T) {
		h := NewTaskFactoryEventHandler(&MockTaskFactory{}, &MockTaskRunner{}, logger)
		event := &events.RunRequestEvent{Type: events.TypeApplyRequested, Payload: []byte("{")}

		err := h.HandleEvent(context.Background(), event)
		assert.ErrorContains(t, err, "failed to unmarshal payload")
	})

	t.Run("missing mirror id", func(t *testing.T) {
		h := NewTaskFactoryEventHandler(&MockTaskFactory{}, &MockTaskRunner{}, logger)
		event, err := events.NewApplyRequestedEvent(uuid.Nil, ownerID)
		require.NoError(t, err)

		assert.ErrorIs(t, h.HandleEvent(context.Background(), event), ErrEmptyMirrorID)
	})

	t.Run("factory error", func(t *testing.T) {
		factory := &MockTaskFactory{
			CreateTaskFn: func(uuid.UUID, uuid.UUID) (Task, error) { return nil, errors.New("factory broke") },
		}
		runner := &MockTaskRunner{}
		h := NewTaskFactoryEventHandler(factory, runner, logger)

		err := h.HandleEvent(context.Background(), newEvent(t))
		assert.ErrorContains(t, err, "failed to create task")
		assert.Nil(t, runner.LastSubmitTask)
	})

	t.Run("queue full", func(t *testing.T) {
		runner := &MockTaskRunner{
			SubmitFn: func(context.Context, Task) error { return ErrQueueFull },
		}
		h := NewTaskFactoryEventHandler(&MockTaskFactory{}, runner, logger)

		err := h.HandleEvent(context.Background(), newEvent(t))
		assert.ErrorIs(t, err, ErrQueueFull)
	})
}
