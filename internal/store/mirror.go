package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/apply-orchestrator/internal/domain"
)

// RemoteUpdate is a partial update of the remote-facing fields of a mirror
// record. Nil fields are left unchanged.
type RemoteUpdate struct {
	RemoteTaskID *string
	SessionID    *string
	LiveViewURL  *string
	// StagedFiles, when non-nil, replaces the staged file list.
	StagedFiles []string
	Result      []byte
	IsSuccess   *domain.Tristate
}

// IsEmpty reports whether the update changes nothing.
func (u RemoteUpdate) IsEmpty() bool {
	return u.RemoteTaskID == nil && u.SessionID == nil && u.LiveViewURL == nil &&
		u.StagedFiles == nil && u.Result == nil && u.IsSuccess == nil
}

// MirrorStore persists mirror records. Implementations serialise writes per
// record, so each record has at most one writer at a time.
type MirrorStore interface {
	// Create inserts a new record.
	Create(ctx context.Context, rec *domain.MirrorRecord) error

	// Get returns the record with id, or ErrMirrorNotFound.
	Get(ctx context.Context, id uuid.UUID) (*domain.MirrorRecord, error)

	// GetForOwner returns the record only when it belongs to ownerID. A record
	// owned by someone else is reported as ErrMirrorNotFound.
	GetForOwner(ctx context.Context, ownerID, id uuid.UUID) (*domain.MirrorRecord, error)

	// Transition moves the record's status following
	// domain.MirrorRecord.Transition: re-applying the current terminal status
	// returns (false, nil), changing a terminal status returns
	// domain.ErrMirrorTerminal, and completed_at is set once.
	Transition(ctx context.Context, id uuid.UUID, status domain.MirrorStatus, errMsg string) (bool, error)

	// AppendLog appends one line to the record's log sequence.
	AppendLog(ctx context.Context, id uuid.UUID, line string) error

	// UpdateRemote applies a partial update of the remote-facing fields.
	UpdateRemote(ctx context.Context, id uuid.UUID, update RemoteUpdate) error

	// ListByStatus returns records in status whose updated_at is before
	// olderThan. A zero olderThan returns all records in status.
	ListByStatus(ctx context.Context, status domain.MirrorStatus, olderThan time.Time) ([]*domain.MirrorRecord, error)
}

// ProfileStore reads applicant profiles. Credentials and resume bytes are
// returned in memory only; implementations store passwords sealed.
type ProfileStore interface {
	// GetProfile returns the owner's profile, or ErrProfileNotFound.
	GetProfile(ctx context.Context, ownerID uuid.UUID) (*domain.Profile, error)
}

// JobStore reads job metadata.
type JobStore interface {
	// GetJob returns the job, or ErrJobNotFound.
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
}
