package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/apply-orchestrator/internal/domain"
	"github.com/phrazzld/apply-orchestrator/internal/store"
	"github.com/phrazzld/apply-orchestrator/internal/submit"
	"github.com/phrazzld/apply-orchestrator/internal/task"
)

// Sentinel errors returned by the apply service. Callers check them with
// errors.Is; the API layer maps each to a status code and error category.
//
// Precondition failures are returned as the domain errors themselves
// (domain.ErrMissingProfile, *domain.IncompleteProfileError) and as
// submit.ErrMissingExecutorCredentials, so the missing fields survive.
var (
	// ErrTaskNotFound indicates the task does not exist or belongs to
	// another owner.
	ErrTaskNotFound = errors.New("task not found")

	// ErrJobNotFound indicates the job reference is unknown.
	ErrJobNotFound = errors.New("job not found")

	// ErrBusy indicates the run queue is full. The caller may retry.
	ErrBusy = errors.New("too many applications in progress")
)

// ApplyServiceError wraps unexpected failures of the apply service.
type ApplyServiceError struct {
	// Operation is the operation that failed (e.g., "submit", "observe")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for ApplyServiceError.
func (e *ApplyServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("apply service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("apply service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ApplyServiceError) Unwrap() error {
	return e.Err
}

// NewApplyServiceError creates a new ApplyServiceError.
// Known sentinel and precondition errors are returned directly without
// wrapping; store sentinels are translated to their service equivalents.
func NewApplyServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrTaskNotFound), errors.Is(err, store.ErrMirrorNotFound):
		return ErrTaskNotFound
	case errors.Is(err, ErrJobNotFound), errors.Is(err, store.ErrJobNotFound):
		return ErrJobNotFound
	case errors.Is(err, ErrBusy), errors.Is(err, task.ErrQueueFull):
		return ErrBusy
	case errors.Is(err, store.ErrProfileNotFound):
		return domain.ErrMissingProfile
	}

	var incomplete *domain.IncompleteProfileError
	if errors.As(err, &incomplete) ||
		errors.Is(err, domain.ErrMissingProfile) ||
		errors.Is(err, submit.ErrMissingExecutorCredentials) {
		return err
	}

	return &ApplyServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
