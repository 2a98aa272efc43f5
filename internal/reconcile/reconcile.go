// Package reconcile merges the remote executor's status and the mirror
// record's status into the canonical status shown to consumers.
//
// Precedence, highest first:
//
//  1. A present remote status decides the broad phase.
//  2. Otherwise the mirror status is mapped (in_progress becomes running).
//  3. With neither, the status is unknown, never pending.
//  4. A completed status consults the success hint to pick the outcome.
//
// The two sources may disagree on terminality (remote running, mirror failed
// after an out-of-band cancellation). Rule 1 wins; this is not an error.
package reconcile

import "github.com/phrazzld/apply-orchestrator/internal/domain"

// Result is the reconciled view of one task.
type Result struct {
	Status    domain.CanonicalStatus
	IsSuccess domain.Tristate
	Outcome   domain.Outcome
}

// Reconcile applies the precedence table. It is pure: the same inputs always
// give the same result.
func Reconcile(remote domain.RemoteStatus, mirror domain.MirrorStatus, hint domain.Tristate) Result {
	status := fromRemote(remote)
	if status == domain.StatusUnknown {
		status = fromMirror(mirror)
	}

	res := Result{Status: status}
	if status != domain.StatusCompleted {
		res.Outcome = outcomeFor(status)
		return res
	}

	res.IsSuccess = hint
	switch hint {
	case domain.True:
		res.Outcome = domain.OutcomeSucceeded
	case domain.False:
		res.Outcome = domain.OutcomeFailed
	default:
		res.Outcome = domain.OutcomeCompleted
	}
	return res
}

func fromRemote(s domain.RemoteStatus) domain.CanonicalStatus {
	switch s {
	case domain.RemoteStatusPending:
		return domain.StatusPending
	case domain.RemoteStatusRunning:
		return domain.StatusRunning
	case domain.RemoteStatusCompleted:
		return domain.StatusCompleted
	case domain.RemoteStatusFailed:
		return domain.StatusFailed
	case domain.RemoteStatusStopped:
		return domain.StatusStopped
	default:
		return domain.StatusUnknown
	}
}

func fromMirror(s domain.MirrorStatus) domain.CanonicalStatus {
	switch s {
	case domain.MirrorStatusPending:
		return domain.StatusPending
	case domain.MirrorStatusInProgress:
		return domain.StatusRunning
	case domain.MirrorStatusCompleted:
		return domain.StatusCompleted
	case domain.MirrorStatusFailed:
		return domain.StatusFailed
	case domain.MirrorStatusStopped:
		return domain.StatusStopped
	default:
		return domain.StatusUnknown
	}
}

func outcomeFor(s domain.CanonicalStatus) domain.Outcome {
	switch s {
	case domain.StatusFailed:
		return domain.OutcomeFailed
	case domain.StatusStopped:
		return domain.OutcomeStopped
	default:
		return domain.OutcomeNone
	}
}

// MirrorStatusFor maps a terminal remote status onto the mirror vocabulary so
// the mirror can be brought up to date. ok is false for non-terminal or
// absent remote statuses.
func MirrorStatusFor(remote domain.RemoteStatus) (status domain.MirrorStatus, ok bool) {
	switch remote {
	case domain.RemoteStatusCompleted:
		return domain.MirrorStatusCompleted, true
	case domain.RemoteStatusFailed:
		return domain.MirrorStatusFailed, true
	case domain.RemoteStatusStopped:
		return domain.MirrorStatusStopped, true
	default:
		return "", false
	}
}
