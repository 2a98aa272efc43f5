package store

import (
	"errors"
	"fmt"
)

// Errors shared by every store implementation. Callers match them with
// errors.Is; the entity-specific not-found errors all wrap ErrNotFound.
var (
	ErrNotFound          = errors.New("entity not found")
	ErrDuplicate         = errors.New("entity already exists")
	ErrInvalidEntity     = errors.New("invalid entity")
	ErrTransactionFailed = errors.New("transaction failed")

	ErrMirrorNotFound  = fmt.Errorf("%w: mirror record", ErrNotFound)
	ErrProfileNotFound = fmt.Errorf("%w: profile", ErrNotFound)
	ErrJobNotFound     = fmt.Errorf("%w: job", ErrNotFound)
)

// StoreError adds the entity and operation to a failed store call.
type StoreError struct {
	Entity    string // "mirror", "profile", "job"
	Operation string // "create", "transition", ...
	Message   string
	Err       error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
	}
	return fmt.Sprintf("%s operation on %s failed: %s: %v", e.Operation, e.Entity, e.Message, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError builds a StoreError.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{Entity: entity, Operation: operation, Message: message, Err: err}
}
