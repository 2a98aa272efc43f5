package task

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/phrazzld/apply-orchestrator/internal/domain"
)

// Task type constants
const (
	// TaskTypeApply runs one apply attempt against the remote executor.
	TaskTypeApply = "apply"
)

// Errors returned by the runner.
var (
	// ErrQueueFull is returned when the in-memory queue has no free slot.
	ErrQueueFull = errors.New("task queue is full, try again later")

	// ErrRunnerStopped is returned when work is submitted after Stop.
	ErrRunnerStopped = errors.New("task runner is stopped")
)

// Task is one unit of background work. ID is the mirror record the task
// reports into.
type Task interface {
	ID() uuid.UUID
	Type() string
	Payload() []byte
	Execute(ctx context.Context) error
}

// TaskFactory builds tasks for new submissions and for records found
// unfinished by recovery or the stuck-run sweep.
type TaskFactory interface {
	CreateTask(mirrorID, ownerID uuid.UUID) (Task, error)

	// ResumeTask rebuilds a task for rec. A record that already has a remote
	// task id resumes by awaiting that task instead of submitting again.
	ResumeTask(rec *domain.MirrorRecord) (Task, error)
}

// RunObserver is notified as runs start and finish. Every RunStarted is
// followed by exactly one RunFinished.
type RunObserver interface {
	RunStarted()
	RunFinished(status domain.MirrorStatus)
}

type noopObserver struct{}

func (noopObserver) RunStarted()                     {}
func (noopObserver) RunFinished(domain.MirrorStatus) {}
