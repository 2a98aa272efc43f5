// Package domain contains the core entities of the apply orchestrator: the
// task handle issued by the remote executor, the locally persisted mirror
// record, the canonical status exposed to consumers, staged artifacts, and the
// applicant profile and job data consumed when composing a task.
//
// Nothing in this package performs I/O.
package domain
