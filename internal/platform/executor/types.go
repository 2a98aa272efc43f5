package executor

import (
	"strings"

	"github.com/phrazzld/apply-orchestrator/internal/domain"
)

// Session is an ephemeral browser session owned by one apply run.
type Session struct {
	ID      string `json:"id"`
	LiveURL string `json:"liveUrl,omitempty"`
}

// UploadSlotRequest asks for a presigned upload target.
type UploadSlotRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
}

// UploadSlot is a presigned target. Fields must be replayed verbatim ahead of
// the file part.
type UploadSlot struct {
	URL      string            `json:"url"`
	Method   string            `json:"method,omitempty"`
	Fields   map[string]string `json:"fields"`
	FileName string            `json:"fileName"`
}

// CreateTaskRequest is the body of a task creation call.
type CreateTaskRequest struct {
	Task              string            `json:"task"`
	SessionID         string            `json:"sessionId,omitempty"`
	Secrets           map[string]string `json:"secrets,omitempty"`
	AllowedDomains    []string          `json:"allowedDomains,omitempty"`
	IncludedFileNames []string          `json:"includedFileNames,omitempty"`
	MaxSteps          int               `json:"maxSteps,omitempty"`
	Flash             bool              `json:"flashMode,omitempty"`
	Thinking          bool              `json:"thinking,omitempty"`
	Vision            bool              `json:"vision,omitempty"`
}

// CreatedTask is the executor's acknowledgement of a new task.
type CreatedTask struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
}

// TaskView is a snapshot of a remote task.
type TaskView struct {
	ID          string              `json:"id"`
	SessionID   string              `json:"sessionId"`
	RawStatus   string              `json:"status"`
	Output      string              `json:"output,omitempty"`
	IsSuccess   *bool               `json:"isSuccess,omitempty"`
	LiveURL     string              `json:"liveUrl,omitempty"`
	OutputFiles []string            `json:"outputFiles,omitempty"`
	Status      domain.RemoteStatus `json:"-"`
}

// MapStatus converts the executor's vocabulary to the broad phases the
// orchestrator reasons about. Unrecognised values map to RemoteStatusNone so
// the mirror record decides.
func MapStatus(raw string) domain.RemoteStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "created", "queued", "pending":
		return domain.RemoteStatusPending
	case "started", "running", "paused", "in_progress":
		return domain.RemoteStatusRunning
	case "finished", "completed", "done":
		return domain.RemoteStatusCompleted
	case "failed", "error":
		return domain.RemoteStatusFailed
	case "stopped", "cancelled", "canceled":
		return domain.RemoteStatusStopped
	default:
		return domain.RemoteStatusNone
	}
}

// IsTerminal reports whether the task reached completed, failed or stopped.
func (v TaskView) IsTerminal() bool {
	switch v.Status {
	case domain.RemoteStatusCompleted, domain.RemoteStatusFailed, domain.RemoteStatusStopped:
		return true
	default:
		return false
	}
}
