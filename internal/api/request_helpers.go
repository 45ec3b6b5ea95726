package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/traqcheck/bgv-agent/internal/api/shared"
	"github.com/traqcheck/bgv-agent/internal/domain"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 200
)

// getPathID parses a positive integer path parameter.
func getPathID(r *http.Request, paramName string) (int64, error) {
	raw := chi.URLParam(r, paramName)
	if raw == "" {
		return 0, fmt.Errorf("%w: %s is required", domain.ErrInvalidID, paramName)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s has invalid format", domain.ErrInvalidID, paramName)
	}
	return id, nil
}

// getLimit reads the ?limit query parameter, clamped to maxLogLimit.
func getLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLogLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", domain.ErrValidation)
	}
	if n > maxLogLimit {
		n = maxLogLimit
	}
	return n, nil
}

// decodeAndValidate reads the JSON body into v and validates it. It writes
// the error response and returns false on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := shared.DecodeJSON(r, v); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := shared.ValidateRequest(v); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, shared.ValidationMessage(err), err)
		return false
	}
	return true
}
