// Package cancel issues cooperative stop requests against running tasks.
//
// Each task has a single-flight guard: while a stop for a task is
// outstanding, further cancels for it return immediately without a remote
// call. A stop rejected because the task already finished is not an error.
package cancel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/phrazzld/apply-orchestrator/internal/domain"
	"github.com/phrazzld/apply-orchestrator/internal/platform/executor"
	"github.com/phrazzld/apply-orchestrator/internal/platform/logger"
	"github.com/phrazzld/apply-orchestrator/internal/redact"
)

// Outcome labels reported to the Recorder.
const (
	OutcomeStopped         = "stopped"
	OutcomeAlreadyFinished = "already_finished"
	OutcomeInert           = "inert"
	OutcomeDuplicate       = "duplicate"
	OutcomeError           = "error"
)

// ErrNoTaskID is returned when the request names no task.
var ErrNoTaskID = errors.New("cancel request has no task id")

// CancellationError wraps a stop failure the caller may retry.
type CancellationError struct {
	TaskID string
	Err    error
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("cancel task %s: %v", e.TaskID, e.Err)
}

func (e *CancellationError) Unwrap() error { return e.Err }

// Stopper sends the remote stop.
type Stopper interface {
	StopTask(ctx context.Context, taskID string) error
}

// Recorder counts cancellations by outcome.
type Recorder interface {
	CancelOutcome(outcome string)
}

// Request describes one cancellation.
type Request struct {
	TaskID string
	// Status is the last known canonical status. Terminal means inert.
	Status domain.CanonicalStatus
	// Refetch, if set, runs after the stop response so observers see the
	// stopped state without waiting for the next poll tick.
	Refetch func(ctx context.Context)
}

// Controller cancels tasks.
type Controller struct {
	stopper  Stopper
	recorder Recorder
	logger   *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewController creates a Controller. recorder may be nil.
func NewController(stopper Stopper, recorder Recorder, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		stopper:  stopper,
		recorder: recorder,
		logger:   log.With("component", "cancellation_controller"),
		inFlight: make(map[string]struct{}),
	}
}

// Cancel stops req.TaskID. It returns nil when the stop was accepted, when
// the task had already finished, when the task is known to be terminal, and
// when another cancel for the same task is outstanding. Transport failures
// come back as *CancellationError and release the guard.
func (c *Controller) Cancel(ctx context.Context, req Request) error {
	if req.TaskID == "" {
		return ErrNoTaskID
	}
	log := logger.FromContextOrDefault(ctx, c.logger).With("task_id", req.TaskID)

	if req.Status.IsTerminal() {
		log.Debug("cancel ignored for terminal task", "status", req.Status)
		c.record(OutcomeInert)
		return nil
	}

	if !c.acquire(req.TaskID) {
		log.Debug("cancel already in flight")
		c.record(OutcomeDuplicate)
		return nil
	}

	err := c.stopper.StopTask(ctx, req.TaskID)
	switch {
	case err == nil:
		log.Info("task stop accepted")
		c.record(OutcomeStopped)
	case errors.Is(err, executor.ErrTaskFinished):
		log.Info("task already finished, nothing to stop")
		c.record(OutcomeAlreadyFinished)
	default:
		c.release(req.TaskID)
		log.Error("task stop failed", "error", redact.Error(err))
		c.record(OutcomeError)
		return &CancellationError{TaskID: req.TaskID, Err: err}
	}

	if req.Refetch != nil {
		req.Refetch(ctx)
	}
	c.release(req.TaskID)
	return nil
}

// InFlight reports whether a stop for taskID is outstanding.
func (c *Controller) InFlight(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[taskID]
	return ok
}

func (c *Controller) acquire(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inFlight[taskID]; busy {
		return false
	}
	c.inFlight[taskID] = struct{}{}
	return true
}

func (c *Controller) release(taskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, taskID)
}

func (c *Controller) record(outcome string) {
	if c.recorder != nil {
		c.recorder.CancelOutcome(outcome)
	}
}
