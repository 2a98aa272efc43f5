package domain

import "time"

// TaskHandle is the caller's reference to one remote automation run. It is
// created once at submission time and never mutated; a new run needs a new
// handle.
type TaskHandle struct {
	TaskID    string `json:"task_id"`
	SessionID string `json:"session_id,omitempty"`
	// LiveViewURL is empty until the executor exposes a monitorable session.
	LiveViewURL string    `json:"live_view_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ArtifactReference identifies a file staged into one executor session. It is
// not portable to any other session.
type ArtifactReference struct {
	SessionID   string `json:"session_id"`
	RemoteName  string `json:"remote_name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

// SecretMap maps an origin pattern to one half of a credential pair. It only
// exists in memory for the duration of one submission.
type SecretMap map[string]string
