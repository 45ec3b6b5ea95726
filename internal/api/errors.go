package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/traqcheck/bgv-agent/internal/api/shared"
	"github.com/traqcheck/bgv-agent/internal/domain"
	"github.com/traqcheck/bgv-agent/internal/store"
	"github.com/traqcheck/bgv-agent/internal/task"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking their types to clients.
func MapErrorToStatusCode(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	case errors.As(err, &verrs),
		errors.Is(err, shared.ErrEmptyBody),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, task.ErrInvalidWorkItem),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidEmail),
		errors.Is(err, domain.ErrEmptyCandidateName),
		errors.Is(err, domain.ErrNegativeExperience):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-safe message for err.
func GetSafeErrorMessage(err error) string {
	var verrs validator.ValidationErrors
	switch {
	case err == nil:
		return "An unexpected error occurred"
	case errors.Is(err, store.ErrBGVRequestNotFound):
		return "BGV request not found"
	case errors.Is(err, store.ErrAuditLogNotFound):
		return "Audit log entry not found"
	case errors.Is(err, store.ErrNotFound):
		return "Resource not found"
	case errors.Is(err, store.ErrDuplicate):
		return "Resource already exists"
	case errors.As(err, &verrs):
		return shared.ValidationMessage(err)
	case errors.Is(err, shared.ErrEmptyBody):
		return "Request body is required"
	case errors.Is(err, domain.ErrInvalidEmail):
		return "Invalid candidate email"
	case errors.Is(err, domain.ErrEmptyCandidateName):
		return "Candidate name is required"
	case MapErrorToStatusCode(err) == http.StatusBadRequest:
		return "Invalid request"
	default:
		return "An unexpected error occurred"
	}
}

// respondWithMappedError writes the status and safe message for err.
func respondWithMappedError(w http.ResponseWriter, r *http.Request, err error) {
	shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
}
