package executor

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMissingAPIKey is returned when the client is built without credentials.
	ErrMissingAPIKey = errors.New("executor API key is not configured")

	// ErrMissingBaseURL is returned when the client is built without an endpoint.
	ErrMissingBaseURL = errors.New("executor base URL is not configured")

	// ErrTaskFinished is returned by StopTask when the executor rejects the
	// stop because the task already reached a terminal state.
	ErrTaskFinished = errors.New("task already finished")

	// ErrTaskNotFound is returned when the executor does not know the task.
	ErrTaskNotFound = errors.New("task not found")

	// ErrMalformedResponse is returned when a response is missing required fields.
	ErrMalformedResponse = errors.New("malformed executor response")
)

// APIError is a non-success HTTP response from the executor.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("executor %s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}
