package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	// TypeApplyRequested asks for a new apply run for an existing mirror record.
	TypeApplyRequested = "apply_requested"
)

// RunRequestEvent asks a handler to start background work. The payload is
// JSON so that the emitter never depends on the task package.
type RunRequestEvent struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// ApplyRequestedPayload identifies the mirror record a run belongs to. It
// carries no profile or credential data; the run loads those itself.
type ApplyRequestedPayload struct {
	MirrorID uuid.UUID `json:"mirror_id"`
	OwnerID  uuid.UUID `json:"owner_id"`
}

// UnmarshalPayload decodes the event payload into v.
func (e *RunRequestEvent) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// NewRunRequestEvent creates an event of eventType with payload encoded as JSON.
func NewRunRequestEvent(eventType string, payload interface{}) (*RunRequestEvent, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", eventType, err)
	}

	return &RunRequestEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payloadBytes,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// NewApplyRequestedEvent creates a TypeApplyRequested event.
func NewApplyRequestedEvent(mirrorID, ownerID uuid.UUID) (*RunRequestEvent, error) {
	return NewRunRequestEvent(TypeApplyRequested, ApplyRequestedPayload{
		MirrorID: mirrorID,
		OwnerID:  ownerID,
	})
}

// EventHandler processes emitted events.
type EventHandler interface {
	HandleEvent(ctx context.Context, event *RunRequestEvent) error
}

// EventEmitter publishes events to registered handlers.
type EventEmitter interface {
	EmitEvent(ctx context.Context, event *RunRequestEvent) error
}
