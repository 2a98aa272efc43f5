// Package executor is the HTTP client for the remote browser-automation
// service that runs apply tasks. It covers the four operations the
// orchestrator needs: creating a session, staging files into it, creating and
// awaiting a task, and stopping a task.
//
// The executor's own status vocabulary is mapped to domain.RemoteStatus here
// and nowhere else.
package executor
