package domain

import "encoding/json"

// RemoteStatus is the broad phase reported by the remote executor, already
// mapped out of the executor's own vocabulary. The empty value means the
// executor has not reported anything.
type RemoteStatus string

// Remote status values
const (
	RemoteStatusNone      RemoteStatus = ""
	RemoteStatusPending   RemoteStatus = "pending"
	RemoteStatusRunning   RemoteStatus = "running"
	RemoteStatusCompleted RemoteStatus = "completed"
	RemoteStatusFailed    RemoteStatus = "failed"
	RemoteStatusStopped   RemoteStatus = "stopped"
)

// CanonicalStatus is the single reconciled state exposed to consumers.
// It is computed, never stored.
type CanonicalStatus string

// Canonical status values. StatusUnknown means neither source reported a
// status and must never be rendered as pending.
const (
	StatusUnknown   CanonicalStatus = "unknown"
	StatusPending   CanonicalStatus = "pending"
	StatusRunning   CanonicalStatus = "running"
	StatusCompleted CanonicalStatus = "completed"
	StatusFailed    CanonicalStatus = "failed"
	StatusStopped   CanonicalStatus = "stopped"
)

// IsTerminal reports whether s is completed, failed or stopped.
func (s CanonicalStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusStopped
}

// Tristate is a boolean that may be unknown.
type Tristate int8

const (
	Unknown Tristate = iota
	True
	False
)

// TristateFromPtr converts a nullable bool.
func TristateFromPtr(b *bool) Tristate {
	if b == nil {
		return Unknown
	}
	return TristateOf(*b)
}

// TristateOf converts a known bool.
func TristateOf(b bool) Tristate {
	if b {
		return True
	}
	return False
}

// Ptr returns nil for Unknown.
func (t Tristate) Ptr() *bool {
	switch t {
	case True:
		v := true
		return &v
	case False:
		v := false
		return &v
	default:
		return nil
	}
}

func (t Tristate) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}

// MarshalJSON renders true, false or null.
func (t Tristate) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Ptr())
}

// UnmarshalJSON accepts true, false or null.
func (t *Tristate) UnmarshalJSON(data []byte) error {
	var b *bool
	if err := json.Unmarshal(data, &b); err != nil {
		return err
	}
	*t = TristateFromPtr(b)
	return nil
}

// Outcome is what a consumer renders for a finished run. A completed run
// whose success hint is false is rendered as a failure; an unknown hint is a
// plain completion.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeCompleted Outcome = "completed"
	OutcomeStopped   Outcome = "stopped"
)
