package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/apply-orchestrator/internal/api/shared"
	"github.com/phrazzld/apply-orchestrator/internal/domain"
	"github.com/phrazzld/apply-orchestrator/internal/platform/logger"
	"github.com/phrazzld/apply-orchestrator/internal/service"
)

// ApplicationHandler handles application submission and task observation
// requests.
type ApplicationHandler struct {
	applyService service.ApplyService
	logger       *slog.Logger
}

// NewApplicationHandler creates a new ApplicationHandler
func NewApplicationHandler(applyService service.ApplyService, log *slog.Logger) *ApplicationHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ApplicationHandler{
		applyService: applyService,
		logger:       log.With("component", "application_handler"),
	}
}

// SubmitApplication handles POST /api/applications. The run happens in the
// background, so a successful submission answers 202 Accepted.
func (h *ApplicationHandler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := shared.GetOwnerID(r.Context())
	if !ok {
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return
	}

	var req SubmitApplicationRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		HandleAPIError(w, r, fmt.Errorf("%w: %v", errInvalidRequest, err), "")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		handleValidationError(w, r, err)
		return
	}

	submission, err := h.applyService.Submit(r.Context(), ownerID, service.SubmitRequest{
		JobID:        req.JobID,
		Instructions: req.Instructions,
		Notes:        req.Notes,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to submit application")
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("application submitted",
		"task_id", submission.TaskID,
		"job_id", req.JobID)

	w.Header().Set("Location", "/api/tasks/"+submission.TaskID.String())
	shared.RespondWithJSON(w, r, http.StatusAccepted, submissionToResponse(submission))
}

// GetTask handles GET /api/tasks/{id}.
func (h *ApplicationHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	ownerID, taskID, ok := handleOwnerIDAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	obs, err := h.applyService.Observe(r.Context(), ownerID, taskID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, observationToResponse(obs))
}

// RefetchTask handles POST /api/tasks/{id}/refetch: an out-of-cycle
// observation that ignores the cached terminal view.
func (h *ApplicationHandler) RefetchTask(w http.ResponseWriter, r *http.Request) {
	ownerID, taskID, ok := handleOwnerIDAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	obs, err := h.applyService.Refetch(r.Context(), ownerID, taskID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to refresh task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, observationToResponse(obs))
}

// CancelTask handles POST /api/tasks/{id}/cancel. Cancelling a finished task
// succeeds without effect.
func (h *ApplicationHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	ownerID, taskID, ok := handleOwnerIDAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.applyService.Cancel(r.Context(), ownerID, taskID); err != nil {
		HandleAPIError(w, r, err, "Failed to cancel task")
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("task cancel requested", "task_id", taskID)
	shared.RespondWithJSON(w, r, http.StatusOK, CancelTaskResponse{
		TaskID:    taskID.String(),
		Cancelled: true,
	})
}
