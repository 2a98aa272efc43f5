package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidMirrorStatus is returned when a mirror status is not one of
	// the known values.
	ErrInvalidMirrorStatus = errors.New("invalid mirror status")

	// ErrInvalidTransition is returned when a non-terminal status change
	// would move a record backwards.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrMirrorTerminal is returned when a record that already reached a
	// terminal status is asked to move to a different status.
	ErrMirrorTerminal = errors.New("mirror record is already terminal")

	// ErrMissingProfile is returned when the applicant has no profile on file.
	ErrMissingProfile = errors.New("applicant profile not found")

	// ErrIncompleteProfile is the sentinel wrapped by IncompleteProfileError.
	ErrIncompleteProfile = errors.New("applicant profile is incomplete")

	// ErrUnauthorized is returned when an operation is not permitted.
	ErrUnauthorized = errors.New("unauthorized operation")
)

// IncompleteProfileError lists the required profile fields that are empty.
// Field names use their JSON spelling so they can be shown to the caller as-is.
type IncompleteProfileError struct {
	Missing []string
}

func (e *IncompleteProfileError) Error() string {
	return fmt.Sprintf("%s: missing %s", ErrIncompleteProfile, strings.Join(e.Missing, ", "))
}

// Unwrap lets errors.Is match ErrIncompleteProfile.
func (e *IncompleteProfileError) Unwrap() error {
	return ErrIncompleteProfile
}
