package domain

import (
	"time"

	"github.com/google/uuid"
)

// MirrorStatus is the lifecycle state stored on a MirrorRecord.
type MirrorStatus string

// Possible mirror status values
const (
	MirrorStatusPending    MirrorStatus = "pending"
	MirrorStatusInProgress MirrorStatus = "in_progress"
	MirrorStatusCompleted  MirrorStatus = "completed"
	MirrorStatusFailed     MirrorStatus = "failed"
	MirrorStatusStopped    MirrorStatus = "stopped"
)

// DefaultFailureMessage is stored when a run fails without a more specific reason.
const DefaultFailureMessage = "Automation failed. Please try applying manually."

// IsValid reports whether s is one of the known mirror statuses.
func (s MirrorStatus) IsValid() bool {
	switch s {
	case MirrorStatusPending, MirrorStatusInProgress, MirrorStatusCompleted,
		MirrorStatusFailed, MirrorStatusStopped:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s is completed, failed or stopped.
func (s MirrorStatus) IsTerminal() bool {
	return s == MirrorStatusCompleted || s == MirrorStatusFailed || s == MirrorStatusStopped
}

// MirrorRecord is the locally persisted shadow of one apply run. It is kept
// independently of the remote executor's own bookkeeping.
//
// Once Status is terminal it never changes again, and CompletedAt is set
// exactly when Status is terminal.
type MirrorRecord struct {
	ID           uuid.UUID    `json:"id"`
	OwnerID      uuid.UUID    `json:"owner_id"`
	JobReference string       `json:"job_reference"`
	Query        string       `json:"query,omitempty"`
	Status       MirrorStatus `json:"status"`
	Result       []byte       `json:"result,omitempty"`
	Error        *string      `json:"error,omitempty"`
	Logs         []string     `json:"logs"`
	IsSuccess    Tristate     `json:"is_success"`
	RemoteTaskID string       `json:"remote_task_id,omitempty"`
	SessionID    string       `json:"session_id,omitempty"`
	LiveViewURL  string       `json:"live_view_url,omitempty"`
	StagedFiles  []string     `json:"staged_files"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// NewMirrorRecord creates a pending record for ownerID applying to jobReference.
func NewMirrorRecord(ownerID uuid.UUID, jobReference, query string) (*MirrorRecord, error) {
	now := time.Now().UTC()
	m := &MirrorRecord{
		ID:           uuid.New(),
		OwnerID:      ownerID,
		JobReference: jobReference,
		Query:        query,
		Status:       MirrorStatusPending,
		Logs:         []string{},
		StagedFiles:  []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the record's identifiers and status invariants.
func (m *MirrorRecord) Validate() error {
	if m.ID == uuid.Nil || m.OwnerID == uuid.Nil {
		return ErrInvalidID
	}
	if m.JobReference == "" {
		return ErrValidation
	}
	if !m.Status.IsValid() {
		return ErrInvalidMirrorStatus
	}
	if m.Status.IsTerminal() != (m.CompletedAt != nil) {
		return ErrValidation
	}
	return nil
}

// Transition moves the record to status. Re-applying the current terminal
// status is a no-op returning (false, nil); moving a terminal record to a
// different status returns ErrMirrorTerminal and leaves it untouched.
// errMsg is stored for failures; an empty message becomes DefaultFailureMessage.
func (m *MirrorRecord) Transition(status MirrorStatus, errMsg string, now time.Time) (bool, error) {
	if !status.IsValid() {
		return false, ErrInvalidMirrorStatus
	}
	if m.Status.IsTerminal() {
		if m.Status == status {
			return false, nil
		}
		return false, ErrMirrorTerminal
	}
	if m.Status == MirrorStatusInProgress && status == MirrorStatusPending {
		return false, ErrInvalidTransition
	}
	if m.Status == status {
		return false, nil
	}

	m.Status = status
	m.UpdatedAt = now
	if status == MirrorStatusFailed && errMsg == "" {
		errMsg = DefaultFailureMessage
	}
	if errMsg != "" {
		m.Error = &errMsg
	}
	if status.IsTerminal() {
		completed := now
		m.CompletedAt = &completed
	}
	return true, nil
}

// AppendLog adds a diagnostic line. Lines are never reordered.
func (m *MirrorRecord) AppendLog(line string, now time.Time) {
	m.Logs = append(m.Logs, line)
	m.UpdatedAt = now
}
