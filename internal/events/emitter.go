package events

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/phrazzld/apply-orchestrator/internal/redact"
)

// InMemoryEventEmitter dispatches run requests synchronously to handlers
// registered in this process.
type InMemoryEventEmitter struct {
	mu       sync.RWMutex
	handlers []EventHandler
	logger   *slog.Logger
}

var _ EventEmitter = (*InMemoryEventEmitter)(nil)

// NewInMemoryEventEmitter creates an emitter with no handlers.
func NewInMemoryEventEmitter(log *slog.Logger) *InMemoryEventEmitter {
	if log == nil {
		log = slog.Default()
	}
	return &InMemoryEventEmitter{logger: log.With("component", "event_emitter")}
}

// RegisterHandler subscribes h to every later event.
func (e *InMemoryEventEmitter) RegisterHandler(h EventHandler) {
	e.mu.Lock()
	e.handlers = append(e.handlers, h)
	n := len(e.handlers)
	e.mu.Unlock()
	e.logger.Debug("registered event handler", "handler_count", n)
}

// EmitEvent runs every handler, even after one fails, and returns the first
// error. An event with no handlers is dropped with a warning.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *RunRequestEvent) error {
	e.mu.RLock()
	handlers := slices.Clone(e.handlers)
	e.mu.RUnlock()

	log := e.logger.With("event_id", event.ID, "event_type", event.Type)
	if len(handlers) == 0 {
		log.Warn("no handlers registered for event")
		return nil
	}
	log.Debug("emitting event", "handler_count", len(handlers))

	var firstErr error
	for i, h := range handlers {
		err := h.HandleEvent(ctx, event)
		if err == nil {
			continue
		}
		log.Error("event handler failed", "handler_index", i, "error", redact.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
