package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/apply-orchestrator/internal/cancel"
	"github.com/phrazzld/apply-orchestrator/internal/domain"
	"github.com/phrazzld/apply-orchestrator/internal/platform/executor"
	"github.com/phrazzld/apply-orchestrator/internal/platform/logger"
	"github.com/phrazzld/apply-orchestrator/internal/reconcile"
	"github.com/phrazzld/apply-orchestrator/internal/redact"
	"github.com/phrazzld/apply-orchestrator/internal/secrets"
	"github.com/phrazzld/apply-orchestrator/internal/store"
	"github.com/phrazzld/apply-orchestrator/internal/submit"
)

// Common errors
var (
	ErrNilMirrorStore = errors.New("mirror store cannot be nil")
	ErrNilSubmitter   = errors.New("submitter cannot be nil")
	ErrEmptyMirrorID  = errors.New("mirror ID cannot be empty")
)

// Submitter is the part of submit.Submitter an apply run drives.
type Submitter interface {
	OpenSession(ctx context.Context) (executor.Session, error)
	Submit(ctx context.Context, session executor.Session, req submit.Request) (domain.TaskHandle, error)
	Await(ctx context.Context, handle domain.TaskHandle) (submit.Completion, error)
}

// Stager stages the resume. It never fails the run.
type Stager interface {
	StageBestEffort(ctx context.Context, sessionID string, content []byte, fileName string) *domain.ArtifactReference
}

// Canceller stops a remote task. *cancel.Controller implements it.
type Canceller interface {
	Cancel(ctx context.Context, req cancel.Request) error
}

// ApplyDeps are the collaborators shared by every apply task. Canceller may
// be nil, in which case a run cancelled while its remote task was being
// created is left running remotely and only logged.
type ApplyDeps struct {
	Mirrors   store.MirrorStore
	Profiles  store.ProfileStore
	Jobs      store.JobStore
	Submitter Submitter
	Stager    Stager
	Canceller Canceller
}

func (d ApplyDeps) validate() error {
	if d.Mirrors == nil {
		return ErrNilMirrorStore
	}
	if d.Submitter == nil {
		return ErrNilSubmitter
	}
	if d.Profiles == nil || d.Jobs == nil || d.Stager == nil {
		return errors.New("profile store, job store and stager are required")
	}
	return nil
}

type applyPayload struct {
	MirrorID uuid.UUID `json:"mirror_id"`
	OwnerID  uuid.UUID `json:"owner_id"`
	Resume   bool      `json:"resume,omitempty"`
}

// runResult is the JSON stored in the mirror record's result column.
type runResult struct {
	TaskID    string   `json:"task_id"`
	RawStatus string   `json:"status"`
	Output    string   `json:"output,omitempty"`
	Files     []string `json:"files,omitempty"`
}

// ApplyTask runs one apply attempt: open a session, stage the resume, build
// secrets, create the remote task and await it. Progress is written to the
// mirror record as it happens so observers see the live view early.
type ApplyTask struct {
	mirrorID uuid.UUID
	ownerID  uuid.UUID
	// handle is set when resuming a run whose remote task already exists.
	handle *domain.TaskHandle
	deps   ApplyDeps
	logger *slog.Logger
}

// NewApplyTask creates a task that submits a new run for mirrorID.
func NewApplyTask(mirrorID, ownerID uuid.UUID, deps ApplyDeps, log *slog.Logger) (*ApplyTask, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if mirrorID == uuid.Nil {
		return nil, ErrEmptyMirrorID
	}
	if log == nil {
		log = slog.Default()
	}
	return &ApplyTask{
		mirrorID: mirrorID,
		ownerID:  ownerID,
		deps:     deps,
		logger:   log.With("task_type", TaskTypeApply, "mirror_id", mirrorID),
	}, nil
}

// ID returns the mirror record id.
func (t *ApplyTask) ID() uuid.UUID {
	return t.mirrorID
}

// Type returns TaskTypeApply.
func (t *ApplyTask) Type() string {
	return TaskTypeApply
}

// Payload identifies the record and owner; it carries no profile data.
func (t *ApplyTask) Payload() []byte {
	data, err := json.Marshal(applyPayload{MirrorID: t.mirrorID, OwnerID: t.ownerID, Resume: t.handle != nil})
	if err != nil {
		t.logger.Error("failed to marshal task payload", "error", err)
		return []byte{}
	}
	return data
}

// Execute performs the run. Staging problems are logged and skipped; any
// other failure is returned and the runner fails the record.
func (t *ApplyTask) Execute(ctx context.Context) error {
	log := logger.FromContextOrDefault(ctx, t.logger)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("task cancelled by context: %w", err)
	}

	if t.handle != nil {
		log.Info("resuming remote task", "task_id", t.handle.TaskID)
		return t.finish(ctx, *t.handle, nil)
	}

	rec, err := t.deps.Mirrors.Get(ctx, t.mirrorID)
	if err != nil {
		return fmt.Errorf("failed to load mirror record: %w", err)
	}
	request := domain.DecodeApplyRequest(rec.Query)

	profile, err := t.deps.Profiles.GetProfile(ctx, t.ownerID)
	if err != nil {
		if errors.Is(err, store.ErrProfileNotFound) {
			return domain.ErrMissingProfile
		}
		return fmt.Errorf("failed to load profile: %w", err)
	}
	if err := profile.CheckRequired(); err != nil {
		return err
	}
	job, err := t.deps.Jobs.GetJob(ctx, rec.JobReference)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}

	session, err := t.deps.Submitter.OpenSession(ctx)
	if err != nil {
		return err
	}
	t.update(ctx, store.RemoteUpdate{SessionID: &session.ID, LiveViewURL: &session.LiveURL})
	t.appendLog(ctx, "Browser session opened")

	var artifact *domain.ArtifactReference
	if profile.Resume != nil && len(profile.Resume.Content) > 0 {
		artifact = t.deps.Stager.StageBestEffort(ctx, session.ID, profile.Resume.Content, profile.Resume.Name)
		if artifact != nil {
			t.update(ctx, store.RemoteUpdate{StagedFiles: []string{artifact.RemoteName}})
			t.appendLog(ctx, "Resume uploaded")
		} else {
			t.appendLog(ctx, "Resume upload failed; continuing without it")
		}
	}

	// A cancel that arrived before submission stops the record locally;
	// nothing must reach the executor after that.
	if current, err := t.deps.Mirrors.Get(ctx, t.mirrorID); err == nil && current.Status.IsTerminal() {
		log.Info("record finished before submission, not submitting", "status", current.Status)
		return nil
	}

	secretMap := secrets.BuildSecrets(profile.Credentials)
	handle, err := t.deps.Submitter.Submit(ctx, session, submit.Request{
		Job:          *job,
		Profile:      profile,
		Instructions: request.Instructions,
		Notes:        request.Notes,
		Artifact:     artifact,
		Secrets:      secretMap,
	})
	if err != nil {
		return err
	}
	t.update(ctx, store.RemoteUpdate{RemoteTaskID: &handle.TaskID})
	t.appendLog(ctx, "Application task submitted")

	// A cancel that landed while the remote task was being created only saw
	// the local record. The remote id is saved now, so stop it here.
	if current, err := t.deps.Mirrors.Get(ctx, t.mirrorID); err == nil && current.Status.IsTerminal() {
		return t.stopLateCancelled(ctx, handle, current.Status)
	}

	return t.finish(ctx, handle, secrets.Values(secretMap))
}

// stopLateCancelled stops a remote task whose record was finished locally
// while the task was being created. The task is not awaited.
func (t *ApplyTask) stopLateCancelled(ctx context.Context, handle domain.TaskHandle, status domain.MirrorStatus) error {
	log := logger.FromContextOrDefault(ctx, t.logger).With("remote_task_id", handle.TaskID)

	if t.deps.Canceller == nil {
		log.Error("record finished during submission but no canceller is configured", "status", status)
		return nil
	}
	err := t.deps.Canceller.Cancel(ctx, cancel.Request{
		TaskID: handle.TaskID,
		Status: domain.StatusRunning,
	})
	if err != nil {
		log.Error("failed to stop remote task after cancellation", "error", redact.Error(err))
		t.appendLog(ctx, "Stop request failed after cancellation")
		return nil
	}
	log.Info("remote task stopped after cancellation", "status", status)
	t.appendLog(ctx, "Remote task stopped after cancellation")
	return nil
}

// finish awaits the remote task and writes its outcome. secretValues are
// scrubbed from the stored output.
func (t *ApplyTask) finish(ctx context.Context, handle domain.TaskHandle, secretValues []string) error {
	log := logger.FromContextOrDefault(ctx, t.logger)

	completion, err := t.deps.Submitter.Await(ctx, handle)
	if err != nil {
		return err
	}

	result, err := json.Marshal(runResult{
		TaskID:    completion.TaskID,
		RawStatus: completion.RawStatus,
		Output:    redact.Values(completion.Output, secretValues),
		Files:     completion.Files,
	})
	if err != nil {
		return fmt.Errorf("failed to encode run result: %w", err)
	}
	verdict := completion.IsSuccess
	t.update(ctx, store.RemoteUpdate{Result: result, IsSuccess: &verdict})

	// Completion without a transport error counts as submitted; the
	// executor's verdict is kept as a hint.
	status, ok := reconcile.MirrorStatusFor(completion.Status)
	if !ok {
		status = domain.MirrorStatusCompleted
	}
	errMsg := ""
	if status == domain.MirrorStatusFailed {
		errMsg = domain.DefaultFailureMessage
	}

	changed, err := t.deps.Mirrors.Transition(ctx, t.mirrorID, status, errMsg)
	if errors.Is(err, domain.ErrMirrorTerminal) {
		log.Info("record finished elsewhere, keeping its status", "remote_status", completion.Status)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to record final status: %w", err)
	}
	if changed {
		t.appendLog(ctx, fmt.Sprintf("Automation finished: %s (executor verdict: %s)", status, verdict))
	}
	return nil
}

func (t *ApplyTask) update(ctx context.Context, u store.RemoteUpdate) {
	if err := t.deps.Mirrors.UpdateRemote(ctx, t.mirrorID, u); err != nil {
		logger.FromContextOrDefault(ctx, t.logger).Error("failed to update mirror record",
			"error", redact.Error(err))
	}
}

func (t *ApplyTask) appendLog(ctx context.Context, line string) {
	if err := t.deps.Mirrors.AppendLog(ctx, t.mirrorID, line); err != nil {
		logger.FromContextOrDefault(ctx, t.logger).Error("failed to append mirror log",
			"error", redact.Error(err))
	}
}

// ApplyTaskFactory creates ApplyTask instances.
type ApplyTaskFactory struct {
	deps   ApplyDeps
	logger *slog.Logger
}

// NewApplyTaskFactory creates a new factory for ApplyTasks.
func NewApplyTaskFactory(deps ApplyDeps, log *slog.Logger) (*ApplyTaskFactory, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &ApplyTaskFactory{deps: deps, logger: log.With("component", "apply_task_factory")}, nil
}

var _ TaskFactory = (*ApplyTaskFactory)(nil)

// CreateTask creates a task that submits a new run.
func (f *ApplyTaskFactory) CreateTask(mirrorID, ownerID uuid.UUID) (Task, error) {
	return NewApplyTask(mirrorID, ownerID, f.deps, f.logger)
}

// ResumeTask rebuilds the task for an unfinished record.
func (f *ApplyTaskFactory) ResumeTask(rec *domain.MirrorRecord) (Task, error) {
	t, err := NewApplyTask(rec.ID, rec.OwnerID, f.deps, f.logger)
	if err != nil {
		return nil, err
	}
	if rec.RemoteTaskID != "" {
		t.handle = &domain.TaskHandle{
			TaskID:      rec.RemoteTaskID,
			SessionID:   rec.SessionID,
			LiveViewURL: rec.LiveViewURL,
			CreatedAt:   rec.CreatedAt,
		}
	}
	return t, nil
}
