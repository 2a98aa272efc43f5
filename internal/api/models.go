package api

import (
	"time"

	"github.com/phrazzld/apply-orchestrator/internal/domain"
	"github.com/phrazzld/apply-orchestrator/internal/service"
)

// Common request/response structures

// SubmitApplicationRequest defines the payload for POST /api/applications.
type SubmitApplicationRequest struct {
	JobID        string `json:"job_id"                 validate:"required,max=200"`
	Instructions string `json:"instructions,omitempty" validate:"max=4000"`
	Notes        string `json:"notes,omitempty"        validate:"max=4000"`
}

// SubmitApplicationResponse is returned once the run is accepted.
type SubmitApplicationResponse struct {
	TaskID      string    `json:"task_id"`
	Status      string    `json:"status"`
	LiveViewURL string    `json:"live_view_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TaskResponse is the reconciled view of one run.
type TaskResponse struct {
	TaskID      string          `json:"task_id"`
	Status      string          `json:"status"`
	IsSuccess   domain.Tristate `json:"is_success"`
	Outcome     string          `json:"outcome,omitempty"`
	LiveViewURL string          `json:"live_view_url,omitempty"`
	StagedFiles []string        `json:"staged_files"`
	Logs        []string        `json:"logs"`
	Error       *string         `json:"error"`
	CompletedAt *time.Time      `json:"completed_at"`
}

// CancelTaskResponse acknowledges a cancellation.
type CancelTaskResponse struct {
	TaskID    string `json:"task_id"`
	Cancelled bool   `json:"cancelled"`
}

func submissionToResponse(s *service.Submission) SubmitApplicationResponse {
	return SubmitApplicationResponse{
		TaskID:      s.TaskID.String(),
		Status:      string(s.Status),
		LiveViewURL: s.LiveViewURL,
		CreatedAt:   s.CreatedAt,
	}
}

func observationToResponse(o *service.Observation) TaskResponse {
	staged := o.StagedFiles
	if staged == nil {
		staged = []string{}
	}
	logs := o.Logs
	if logs == nil {
		logs = []string{}
	}
	return TaskResponse{
		TaskID:      o.TaskID.String(),
		Status:      string(o.Status),
		IsSuccess:   o.IsSuccess,
		Outcome:     string(o.Outcome),
		LiveViewURL: o.LiveViewURL,
		StagedFiles: staged,
		Logs:        logs,
		Error:       o.Error,
		CompletedAt: o.CompletedAt,
	}
}
