package events

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewApplyRequestedEvent(t *testing.T) {
	mirrorID, ownerID := uuid.New(), uuid.New()

	event, err := NewApplyRequestedEvent(mirrorID, ownerID)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, TypeApplyRequested, event.Type)
	assert.WithinDuration(t, time.Now(), event.CreatedAt, 2*time.Second)

	var payload ApplyRequestedPayload
	require.NoError(t, event.UnmarshalPayload(&payload))
	assert.Equal(t, mirrorID, payload.MirrorID)
	assert.Equal(t, ownerID, payload.OwnerID)
}

func TestNewRunRequestEventRejectsUnencodablePayload(t *testing.T) {
	_, err := NewRunRequestEvent("broken", make(chan int))
	assert.Error(t, err)
}

// MockEventHandler records the events it receives.
type MockEventHandler struct {
	LastEvent    *RunRequestEvent
	HandlerError error
	HandledCount int
}

func (h *MockEventHandler) HandleEvent(ctx context.Context, event *RunRequestEvent) error {
	h.LastEvent = event
	h.HandledCount++
	return h.HandlerError
}
