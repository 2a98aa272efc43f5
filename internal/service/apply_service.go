package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/phrazzld/apply-orchestrator/internal/cancel"
	"github.com/phrazzld/apply-orchestrator/internal/domain"
	"github.com/phrazzld/apply-orchestrator/internal/events"
	"github.com/phrazzld/apply-orchestrator/internal/metrics"
	"github.com/phrazzld/apply-orchestrator/internal/platform/executor"
	"github.com/phrazzld/apply-orchestrator/internal/platform/logger"
	"github.com/phrazzld/apply-orchestrator/internal/reconcile"
	"github.com/phrazzld/apply-orchestrator/internal/redact"
	"github.com/phrazzld/apply-orchestrator/internal/store"
	"github.com/phrazzld/apply-orchestrator/internal/task"
	"golang.org/x/sync/singleflight"
)

// DefaultObservationCacheSize bounds the number of terminal observations kept
// in memory.
const DefaultObservationCacheSize = 1024

// DefaultFetchTimeout bounds one shared observation fetch.
const DefaultFetchTimeout = 30 * time.Second

// Preflighter rejects submissions that cannot succeed, without remote calls.
type Preflighter interface {
	Preflight() error
}

// TaskReader fetches the remote view of a task.
type TaskReader interface {
	GetTask(ctx context.Context, taskID string) (executor.TaskView, error)
}

// Canceller issues cooperative stops. *cancel.Controller implements it.
type Canceller interface {
	Cancel(ctx context.Context, req cancel.Request) error
}

// Recorder counts submission and local cancellation outcomes.
// *metrics.Metrics implements it.
type Recorder interface {
	SubmissionOutcome(outcome string)
	CancelOutcome(outcome string)
}

// SubmitRequest is one application request.
type SubmitRequest struct {
	JobID        string
	Instructions string
	Notes        string
}

// Submission is the accepted-run envelope returned by Submit.
type Submission struct {
	TaskID      uuid.UUID
	Status      domain.CanonicalStatus
	LiveViewURL string
	CreatedAt   time.Time
}

// Observation is the reconciled view of one run.
type Observation struct {
	TaskID      uuid.UUID
	Status      domain.CanonicalStatus
	IsSuccess   domain.Tristate
	Outcome     domain.Outcome
	LiveViewURL string
	StagedFiles []string
	Logs        []string
	Error       *string
	CompletedAt *time.Time
}

// ApplyService provides the operations exposed to callers.
type ApplyService interface {
	// Submit checks preconditions, records a pending run and queues it.
	// It returns as soon as the run is accepted.
	Submit(ctx context.Context, ownerID uuid.UUID, req SubmitRequest) (*Submission, error)

	// Observe returns the reconciled status of one of the owner's runs.
	Observe(ctx context.Context, ownerID, taskID uuid.UUID) (*Observation, error)

	// Refetch is Observe without the terminal observation cache.
	Refetch(ctx context.Context, ownerID, taskID uuid.UUID) (*Observation, error)

	// Cancel stops one of the owner's runs. Cancelling a finished run
	// succeeds without effect.
	Cancel(ctx context.Context, ownerID, taskID uuid.UUID) error
}

// ApplyServiceDeps are the collaborators of the apply service. Remote,
// Canceller and Recorder may be nil; without Remote the mirror record alone
// decides the status, and without Canceller only unsubmitted runs can be
// cancelled.
type ApplyServiceDeps struct {
	Mirrors   store.MirrorStore
	Profiles  store.ProfileStore
	Jobs      store.JobStore
	Preflight Preflighter
	Events    events.EventEmitter
	Remote    TaskReader
	Canceller Canceller
	Recorder  Recorder
	// CacheSize bounds the terminal observation cache. Zero uses
	// DefaultObservationCacheSize.
	CacheSize int
	// FetchTimeout bounds a shared observation fetch. Zero uses
	// DefaultFetchTimeout.
	FetchTimeout time.Duration
}

type cachedObservation struct {
	ownerID     uuid.UUID
	observation Observation
}

// applyServiceImpl implements the ApplyService interface
type applyServiceImpl struct {
	deps     ApplyServiceDeps
	terminal *lru.Cache[uuid.UUID, cachedObservation]
	group    singleflight.Group
	logger   *slog.Logger
}

// NewApplyService creates a new ApplyService.
// It returns an error if any of the required dependencies are nil.
func NewApplyService(deps ApplyServiceDeps, log *slog.Logger) (ApplyService, error) {
	required := []struct {
		missing bool
		name    string
	}{
		{deps.Mirrors == nil, "mirrors"},
		{deps.Profiles == nil, "profiles"},
		{deps.Jobs == nil, "jobs"},
		{deps.Preflight == nil, "preflight"},
		{deps.Events == nil, "events"},
	}
	for _, r := range required {
		if r.missing {
			return nil, &ApplyServiceError{
				Operation: "create_service",
				Message:   r.name + " cannot be nil",
			}
		}
	}

	size := deps.CacheSize
	if size <= 0 {
		size = DefaultObservationCacheSize
	}
	cache, err := lru.New[uuid.UUID, cachedObservation](size)
	if err != nil {
		return nil, &ApplyServiceError{
			Operation: "create_service",
			Message:   "failed to create observation cache",
			Err:       err,
		}
	}

	if deps.FetchTimeout <= 0 {
		deps.FetchTimeout = DefaultFetchTimeout
	}
	if log == nil {
		log = slog.Default()
	}

	return &applyServiceImpl{
		deps:     deps,
		terminal: cache,
		logger:   log.With("component", "apply_service"),
	}, nil
}

// Submit rejects missing executor credentials, a missing profile and an
// incomplete profile before anything is written. The run itself happens in
// the background; a full queue fails the new record and returns ErrBusy.
func (s *applyServiceImpl) Submit(ctx context.Context, ownerID uuid.UUID, req SubmitRequest) (*Submission, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With("owner_id", ownerID, "job_id", req.JobID)

	if err := s.deps.Preflight.Preflight(); err != nil {
		log.Warn("submission rejected: executor not configured", "error", redact.Error(err))
		s.recordSubmission(metrics.SubmissionNotConfigured)
		return nil, err
	}

	profile, err := s.deps.Profiles.GetProfile(ctx, ownerID)
	if err != nil {
		if errors.Is(err, store.ErrProfileNotFound) {
			log.Info("submission rejected: no profile")
			s.recordSubmission(metrics.SubmissionMissingProfile)
			return nil, domain.ErrMissingProfile
		}
		log.Error("failed to load profile", "error", redact.Error(err))
		s.recordSubmission(metrics.SubmissionError)
		return nil, NewApplyServiceError("submit", "failed to load profile", err)
	}
	if err := profile.CheckRequired(); err != nil {
		log.Info("submission rejected: incomplete profile", "error", err)
		s.recordSubmission(metrics.SubmissionIncompleteProfile)
		return nil, err
	}

	if _, err := s.deps.Jobs.GetJob(ctx, req.JobID); err != nil {
		if !errors.Is(err, store.ErrJobNotFound) {
			log.Error("failed to load job", "error", redact.Error(err))
		}
		s.recordSubmission(metrics.SubmissionError)
		return nil, NewApplyServiceError("submit", "failed to load job", err)
	}

	query := domain.ApplyRequest{Instructions: req.Instructions, Notes: req.Notes}.Encode()
	rec, err := domain.NewMirrorRecord(ownerID, req.JobID, query)
	if err != nil {
		s.recordSubmission(metrics.SubmissionError)
		return nil, NewApplyServiceError("submit", "failed to create mirror record", err)
	}
	if err := s.deps.Mirrors.Create(ctx, rec); err != nil {
		log.Error("failed to save mirror record", "error", redact.Error(err))
		s.recordSubmission(metrics.SubmissionError)
		return nil, NewApplyServiceError("submit", "failed to save mirror record", err)
	}
	log = log.With("task_id", rec.ID)

	event, err := events.NewApplyRequestedEvent(rec.ID, ownerID)
	if err == nil {
		err = s.deps.Events.EmitEvent(ctx, event)
	}
	if err != nil {
		log.Error("failed to queue apply run", "error", redact.Error(err))
		if _, terr := s.deps.Mirrors.Transition(ctx, rec.ID, domain.MirrorStatusFailed, domain.DefaultFailureMessage); terr != nil {
			log.Error("failed to mark unqueued record failed", "error", redact.Error(terr))
		}
		if errors.Is(err, task.ErrQueueFull) {
			s.recordSubmission(metrics.SubmissionQueueFull)
		} else {
			s.recordSubmission(metrics.SubmissionError)
		}
		return nil, NewApplyServiceError("submit", "failed to queue apply run", err)
	}

	log.Info("application accepted")
	s.recordSubmission(metrics.SubmissionAccepted)
	return &Submission{
		TaskID:      rec.ID,
		Status:      domain.StatusPending,
		LiveViewURL: rec.LiveViewURL,
		CreatedAt:   rec.CreatedAt,
	}, nil
}

// Observe serves terminal observations from the cache. Concurrent
// observations of the same task share one store read and one remote fetch.
func (s *applyServiceImpl) Observe(ctx context.Context, ownerID, taskID uuid.UUID) (*Observation, error) {
	if cached, ok := s.terminal.Get(taskID); ok && cached.ownerID == ownerID {
		obs := cached.observation
		return &obs, nil
	}
	return s.observe(ctx, ownerID, taskID)
}

// Refetch drops any cached observation and observes again.
func (s *applyServiceImpl) Refetch(ctx context.Context, ownerID, taskID uuid.UUID) (*Observation, error) {
	if cached, ok := s.terminal.Peek(taskID); ok && cached.ownerID == ownerID {
		s.terminal.Remove(taskID)
	}
	return s.observe(ctx, ownerID, taskID)
}

func (s *applyServiceImpl) observe(ctx context.Context, ownerID, taskID uuid.UUID) (*Observation, error) {
	// Ownership is checked per caller; only the fetch is shared.
	if _, err := s.deps.Mirrors.GetForOwner(ctx, ownerID, taskID); err != nil {
		return nil, NewApplyServiceError("observe", "failed to load task", err)
	}

	// The fetch outlives the caller that started it; others may be waiting.
	v, err, _ := s.group.Do(taskID.String(), func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.deps.FetchTimeout)
		defer cancel()
		return s.fetch(fetchCtx, taskID)
	})
	if err != nil {
		return nil, NewApplyServiceError("observe", "failed to observe task", err)
	}

	obs := v.(Observation)
	obs.StagedFiles = append([]string(nil), obs.StagedFiles...)
	obs.Logs = append([]string(nil), obs.Logs...)
	if obs.Status.IsTerminal() {
		s.terminal.Add(taskID, cachedObservation{ownerID: ownerID, observation: obs})
	}
	return &obs, nil
}

// fetch reads the mirror record and, when a remote task exists, the remote
// view. A terminal remote status is written back into the mirror.
func (s *applyServiceImpl) fetch(ctx context.Context, taskID uuid.UUID) (Observation, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With("task_id", taskID)

	rec, err := s.deps.Mirrors.Get(ctx, taskID)
	if err != nil {
		return Observation{}, err
	}

	var view executor.TaskView
	if rec.RemoteTaskID != "" && s.deps.Remote != nil {
		view, err = s.deps.Remote.GetTask(ctx, rec.RemoteTaskID)
		if err != nil {
			// The mirror record still answers.
			log.Warn("remote status unavailable", "remote_task_id", rec.RemoteTaskID, "error", redact.Error(err))
			view = executor.TaskView{}
		} else if view.IsTerminal() {
			if updated, ok := s.writeBack(ctx, rec, view); ok {
				rec = updated
			}
		}
	}

	hint := rec.IsSuccess
	if view.IsSuccess != nil {
		hint = domain.TristateFromPtr(view.IsSuccess)
	}
	res := reconcile.Reconcile(view.Status, rec.Status, hint)

	liveURL := rec.LiveViewURL
	if liveURL == "" {
		liveURL = view.LiveURL
	}

	return Observation{
		TaskID:      rec.ID,
		Status:      res.Status,
		IsSuccess:   res.IsSuccess,
		Outcome:     res.Outcome,
		LiveViewURL: liveURL,
		StagedFiles: rec.StagedFiles,
		Logs:        rec.Logs,
		Error:       rec.Error,
		CompletedAt: rec.CompletedAt,
	}, nil
}

// writeBack persists a terminal remote status. It returns the re-read record
// when the write succeeded.
func (s *applyServiceImpl) writeBack(ctx context.Context, rec *domain.MirrorRecord, view executor.TaskView) (*domain.MirrorRecord, bool) {
	log := logger.FromContextOrDefault(ctx, s.logger).With("task_id", rec.ID, "remote_status", view.Status)

	status, ok := reconcile.MirrorStatusFor(view.Status)
	if !ok {
		return nil, false
	}

	update := store.RemoteUpdate{}
	if view.IsSuccess != nil {
		hint := domain.TristateFromPtr(view.IsSuccess)
		update.IsSuccess = &hint
	}
	if rec.LiveViewURL == "" && view.LiveURL != "" {
		update.LiveViewURL = &view.LiveURL
	}
	if !update.IsEmpty() {
		if err := s.deps.Mirrors.UpdateRemote(ctx, rec.ID, update); err != nil {
			log.Error("failed to write back remote fields", "error", redact.Error(err))
		}
	}

	errMsg := ""
	if status == domain.MirrorStatusFailed {
		errMsg = domain.DefaultFailureMessage
	}
	changed, err := s.deps.Mirrors.Transition(ctx, rec.ID, status, errMsg)
	switch {
	case errors.Is(err, domain.ErrMirrorTerminal):
		log.Debug("mirror already terminal, keeping its status", "mirror_status", rec.Status)
	case err != nil:
		log.Error("failed to write back remote status", "error", redact.Error(err))
		return nil, false
	case changed:
		log.Info("remote terminal status written to mirror")
	}

	updated, err := s.deps.Mirrors.Get(ctx, rec.ID)
	if err != nil {
		log.Error("failed to re-read mirror record", "error", redact.Error(err))
		return nil, false
	}
	return updated, true
}

// Cancel stops a run that was never submitted locally. Submitted runs go
// through the cancellation controller, which refetches after the stop so the
// stopped state is visible immediately.
func (s *applyServiceImpl) Cancel(ctx context.Context, ownerID, taskID uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger).With("task_id", taskID)

	rec, err := s.deps.Mirrors.GetForOwner(ctx, ownerID, taskID)
	if err != nil {
		return NewApplyServiceError("cancel", "failed to load task", err)
	}

	if rec.RemoteTaskID == "" {
		if rec.Status.IsTerminal() {
			s.recordCancel(cancel.OutcomeInert)
			return nil
		}
		changed, err := s.deps.Mirrors.Transition(ctx, taskID, domain.MirrorStatusStopped, "")
		if errors.Is(err, domain.ErrMirrorTerminal) {
			s.recordCancel(cancel.OutcomeAlreadyFinished)
			return nil
		}
		if err != nil {
			log.Error("failed to stop unsubmitted run", "error", redact.Error(err))
			return NewApplyServiceError("cancel", "failed to stop run", err)
		}
		if changed {
			if err := s.deps.Mirrors.AppendLog(ctx, taskID, "Cancelled before submission"); err != nil {
				log.Error("failed to append mirror log", "error", redact.Error(err))
			}
			log.Info("run stopped before submission")
		}
		s.recordCancel(cancel.OutcomeStopped)

		// The run may have saved its remote id between the read above and
		// the transition. It re-reads the record after saving the id, so one
		// of the two sides always sees the other and sends the stop.
		current, err := s.deps.Mirrors.Get(ctx, taskID)
		if err != nil || current.RemoteTaskID == "" || s.deps.Canceller == nil {
			return nil
		}
		log.Info("run was submitted during cancellation, stopping remote task", "remote_task_id", current.RemoteTaskID)
		if err := s.deps.Canceller.Cancel(ctx, cancel.Request{
			TaskID: current.RemoteTaskID,
			Status: domain.StatusRunning,
		}); err != nil {
			return NewApplyServiceError("cancel", "failed to stop remote task", err)
		}
		return nil
	}

	if s.deps.Canceller == nil {
		return &ApplyServiceError{Operation: "cancel", Message: "remote cancellation is not configured"}
	}

	err = s.deps.Canceller.Cancel(ctx, cancel.Request{
		TaskID: rec.RemoteTaskID,
		Status: reconcile.Reconcile(domain.RemoteStatusNone, rec.Status, rec.IsSuccess).Status,
		Refetch: func(ctx context.Context) {
			if _, err := s.Refetch(ctx, ownerID, taskID); err != nil {
				log.Warn("refetch after cancel failed", "error", redact.Error(err))
			}
		},
	})
	if err != nil {
		return NewApplyServiceError("cancel", "failed to stop remote task", err)
	}
	return nil
}

func (s *applyServiceImpl) recordSubmission(outcome string) {
	if s.deps.Recorder != nil {
		s.deps.Recorder.SubmissionOutcome(outcome)
	}
}

func (s *applyServiceImpl) recordCancel(outcome string) {
	if s.deps.Recorder != nil {
		s.deps.Recorder.CancelOutcome(outcome)
	}
}
