// Package submit composes apply task specifications and hands them to the
// remote executor.
//
// A submission is split into the steps a background run walks through:
// Preflight (no remote calls), OpenSession, Submit and Await. Completion
// without a transport error counts as submitted; the executor's own verdict
// is carried along as a hint and logged, never used to fail the run.
package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/apply-orchestrator/internal/domain"
	"github.com/phrazzld/apply-orchestrator/internal/platform/executor"
	"github.com/phrazzld/apply-orchestrator/internal/platform/logger"
)

// ErrMissingExecutorCredentials is a precondition failure: nothing is sent.
var ErrMissingExecutorCredentials = errors.New("executor credentials are not configured")

// Submission phases reported in SubmissionError.
const (
	PhaseSession = "session"
	PhaseCreate  = "create"
	PhaseAwait   = "await"
)

// SubmissionError is a fatal failure of one submission attempt. Err keeps the
// technical detail for logs; callers show domain.DefaultFailureMessage.
type SubmissionError struct {
	Phase string
	Err   error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("automation failed during %s: %v", e.Phase, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Executor is the subset of the remote client the submitter drives.
type Executor interface {
	Ready() error
	CreateSession(ctx context.Context) (executor.Session, error)
	CreateTask(ctx context.Context, req executor.CreateTaskRequest) (executor.CreatedTask, error)
	AwaitTask(ctx context.Context, taskID string) (executor.TaskView, error)
}

// Config holds per-task executor options.
type Config struct {
	// RunTimeout bounds Await. Zero means no bound beyond ctx.
	RunTimeout time.Duration
	MaxSteps   int
	Vision     bool
}

// Request is one submission.
type Request struct {
	Job          domain.Job
	Profile      *domain.Profile
	Instructions string
	Notes        string
	Artifact     *domain.ArtifactReference
	Secrets      domain.SecretMap
}

// Completion is the result of awaiting a task.
type Completion struct {
	TaskID    string
	RawStatus string
	Status    domain.RemoteStatus
	Output    string
	IsSuccess domain.Tristate
	Files     []string
}

// Submitter composes and submits apply tasks.
type Submitter struct {
	exec   Executor
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewSubmitter creates a Submitter.
func NewSubmitter(exec Executor, cfg Config, log *slog.Logger) *Submitter {
	if log == nil {
		log = slog.Default()
	}
	return &Submitter{
		exec:   exec,
		cfg:    cfg,
		logger: log.With("component", "task_submitter"),
		now:    time.Now,
	}
}

// Preflight rejects work that cannot possibly succeed. It makes no remote
// calls.
func (s *Submitter) Preflight() error {
	if err := s.exec.Ready(); err != nil {
		return fmt.Errorf("%w: %v", ErrMissingExecutorCredentials, err)
	}
	return nil
}

// OpenSession creates the executor session a run's artifacts and task share.
func (s *Submitter) OpenSession(ctx context.Context) (executor.Session, error) {
	if err := s.Preflight(); err != nil {
		return executor.Session{}, err
	}
	session, err := s.exec.CreateSession(ctx)
	if err != nil {
		return executor.Session{}, &SubmissionError{Phase: PhaseSession, Err: err}
	}
	return session, nil
}

// Submit composes the task and creates it inside session.
func (s *Submitter) Submit(ctx context.Context, session executor.Session, req Request) (domain.TaskHandle, error) {
	if err := s.Preflight(); err != nil {
		return domain.TaskHandle{}, err
	}

	artifact := req.Artifact
	if artifact != nil && artifact.SessionID != "" && artifact.SessionID != session.ID {
		logger.FromContextOrDefault(ctx, s.logger).Warn("dropping artifact staged in another session",
			"session_id", session.ID)
		artifact = nil
	}

	createReq := executor.CreateTaskRequest{
		Task: Compose(TaskSpec{
			Job:          req.Job,
			Profile:      req.Profile,
			Instructions: req.Instructions,
			Notes:        req.Notes,
			Artifact:     artifact,
		}),
		SessionID: session.ID,
		MaxSteps:  s.cfg.MaxSteps,
		Vision:    s.cfg.Vision,
	}
	if len(req.Secrets) > 0 {
		createReq.Secrets = req.Secrets
	}
	if artifact != nil {
		createReq.IncludedFileNames = []string{artifact.RemoteName}
	}

	created, err := s.exec.CreateTask(ctx, createReq)
	if err != nil {
		return domain.TaskHandle{}, &SubmissionError{Phase: PhaseCreate, Err: err}
	}

	logger.FromContextOrDefault(ctx, s.logger).Info("task created",
		"task_id", created.ID,
		"session_id", session.ID,
		"has_artifact", artifact != nil,
		"secret_entries", len(createReq.Secrets))

	return domain.TaskHandle{
		TaskID:      created.ID,
		SessionID:   session.ID,
		LiveViewURL: session.LiveURL,
		CreatedAt:   s.now().UTC(),
	}, nil
}

// Await blocks until the task is terminal. Any error is a *SubmissionError.
func (s *Submitter) Await(ctx context.Context, handle domain.TaskHandle) (Completion, error) {
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	view, err := s.exec.AwaitTask(ctx, handle.TaskID)
	if err != nil {
		return Completion{}, &SubmissionError{Phase: PhaseAwait, Err: err}
	}

	c := Completion{
		TaskID:    handle.TaskID,
		RawStatus: view.RawStatus,
		Status:    view.Status,
		Output:    view.Output,
		IsSuccess: domain.TristateFromPtr(view.IsSuccess),
		Files:     view.OutputFiles,
	}

	log := logger.FromContextOrDefault(ctx, s.logger)
	if c.IsSuccess == domain.False {
		log.Warn("executor reported the task did not succeed",
			"task_id", handle.TaskID,
			"status", c.Status,
			"is_success", c.IsSuccess.String())
	} else {
		log.Info("task reached terminal status",
			"task_id", handle.TaskID,
			"status", c.Status,
			"is_success", c.IsSuccess.String())
	}
	return c, nil
}
