// Package service contains the operations exposed to callers: Submit,
// Observe, Refetch and Cancel of apply runs.
//
// The service sits between the API layer and the orchestration components.
// Submit checks preconditions without any remote call, records a pending
// mirror record and hands the run to the background runner through an event;
// it never waits for the remote task. Observe reconciles the remote
// executor's view with the mirror record, writing terminal remote states
// back into the mirror. Cancel routes through the cancellation controller,
// or stops the record locally when nothing was submitted yet.
//
// Every operation that takes a task id also takes the caller's owner id. A
// record owned by someone else is reported as ErrTaskNotFound.
package service
