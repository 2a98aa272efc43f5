package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/apply-orchestrator/internal/api/shared"
	"github.com/phrazzld/apply-orchestrator/internal/cancel"
	"github.com/phrazzld/apply-orchestrator/internal/domain"
	"github.com/phrazzld/apply-orchestrator/internal/service"
	"github.com/phrazzld/apply-orchestrator/internal/service/auth"
	"github.com/phrazzld/apply-orchestrator/internal/store"
	"github.com/phrazzld/apply-orchestrator/internal/submit"
)

// Error categories sent to clients alongside the message.
const (
	CategoryMissingProfile    = "missing_profile"
	CategoryIncompleteProfile = "incomplete_profile"
	CategoryAutomationFailure = "automation_failure"
	CategoryNotFound          = "not_found"
	CategoryUnauthorized      = "unauthorized"
	CategoryInvalidRequest    = "invalid_request"
	CategoryInternal          = "internal"
)

// errInvalidRequest marks request decoding and validation failures.
var errInvalidRequest = errors.New("invalid request")

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	var incomplete *domain.IncompleteProfileError
	var submission *submit.SubmissionError
	var cancellation *cancel.CancellationError

	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingOwner),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized

	// Not found errors
	case errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, service.ErrJobNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Precondition errors
	case errors.Is(err, domain.ErrMissingProfile),
		errors.As(err, &incomplete):
		return http.StatusUnprocessableEntity

	// Bad request errors
	case errors.Is(err, errInvalidRequest),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	// Automation unavailable or failed upstream
	case errors.Is(err, submit.ErrMissingExecutorCredentials),
		errors.Is(err, service.ErrBusy):
		return http.StatusServiceUnavailable
	case errors.As(err, &submission),
		errors.As(err, &cancellation):
		return http.StatusBadGateway

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// CategorizeError returns the error category sent to clients.
func CategorizeError(err error) string {
	var incomplete *domain.IncompleteProfileError
	var submission *submit.SubmissionError
	var cancellation *cancel.CancellationError

	switch {
	case errors.Is(err, domain.ErrMissingProfile):
		return CategoryMissingProfile
	case errors.As(err, &incomplete):
		return CategoryIncompleteProfile
	case errors.Is(err, submit.ErrMissingExecutorCredentials),
		errors.Is(err, service.ErrBusy),
		errors.As(err, &submission),
		errors.As(err, &cancellation):
		return CategoryAutomationFailure
	}

	switch MapErrorToStatusCode(err) {
	case http.StatusUnauthorized:
		return CategoryUnauthorized
	case http.StatusNotFound:
		return CategoryNotFound
	case http.StatusBadRequest:
		return CategoryInvalidRequest
	default:
		return CategoryInternal
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var incomplete *domain.IncompleteProfileError
	var submission *submit.SubmissionError
	var cancellation *cancel.CancellationError

	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingOwner):
		return "Invalid token"
	case errors.Is(err, domain.ErrUnauthorized):
		return "Authentication required"

	// Not found errors
	case errors.Is(err, service.ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, service.ErrJobNotFound):
		return "Job not found"
	case errors.Is(err, store.ErrNotFound):
		return "Resource not found"

	// Precondition errors
	case errors.Is(err, domain.ErrMissingProfile):
		return "No applicant profile on file. Complete your profile before applying."
	case errors.As(err, &incomplete):
		return "Your profile is missing required fields: " + strings.Join(incomplete.Missing, ", ")
	case errors.Is(err, submit.ErrMissingExecutorCredentials):
		return "Automated applications are not available right now. Please apply manually."
	case errors.Is(err, service.ErrBusy):
		return "Too many applications in progress. Please try again shortly."

	// Upstream failures
	case errors.As(err, &submission):
		return domain.DefaultFailureMessage
	case errors.As(err, &cancellation):
		return "Could not stop the task. Please try again."

	// Bad request errors
	case errors.Is(err, errInvalidRequest),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request"
	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid ID"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError classifies err and writes the error response. The full
// error is logged redacted; only the safe message and category reach the
// client. defaultMsg, when set, replaces the message for internal errors.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, defaultMsg string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && defaultMsg != "" {
		message = defaultMsg
	}

	opts := []shared.ResponseOption{shared.WithCategory(CategorizeError(err))}
	var incomplete *domain.IncompleteProfileError
	if errors.As(err, &incomplete) {
		opts = append(opts, shared.WithMissingFields(incomplete.Missing))
	}
	if status == http.StatusUnauthorized {
		opts = append(opts, shared.WithElevatedLogLevel())
	}

	shared.RespondWithErrorAndLog(w, r, status, message, err, opts...)
}

// handleValidationError writes a 400 for a request that failed struct
// validation, listing the fields that were required but empty.
func handleValidationError(w http.ResponseWriter, r *http.Request, err error) {
	opts := []shared.ResponseOption{shared.WithCategory(CategoryInvalidRequest)}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		missing := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			if fe.Tag() == "required" {
				missing = append(missing, fe.Field())
			}
		}
		if len(missing) > 0 {
			opts = append(opts, shared.WithMissingFields(missing))
		}
	}
	shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err),
		fmt.Errorf("%w: %v", errInvalidRequest, err), opts...)
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Sprintf("Invalid %s: %s", fe.Field(), getValidationTagMessage(fe.Tag()))
	}
	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "uuid":
		return "invalid format"
	default:
		return "validation failed"
	}
}
