package gemini

import (
	"errors"
	"fmt"

	"google.golang.org/genai"
)

var (
	// ErrMissingAPIKey is returned by the factory when no API key is set.
	ErrMissingAPIKey = errors.New("gemini API key cannot be empty")

	// ErrMaxTurns is returned when the model keeps calling tools past the
	// turn budget.
	ErrMaxTurns = errors.New("agent exceeded maximum function-calling turns")

	// ErrEmptyResponse is returned when the API returns no candidates.
	ErrEmptyResponse = errors.New("empty response from gemini")

	// ErrContentBlocked is returned when the prompt or response was blocked
	// by safety filters.
	ErrContentBlocked = errors.New("content blocked by gemini safety filters")
)

// APIError is a failed Gemini API call.
type APIError struct {
	Code    int
	Status  string
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("gemini API error %d %s: %s", e.Code, e.Status, e.Message)
}

// StatusCode returns the HTTP status of the failed call.
func (e *APIError) StatusCode() int {
	return e.Code
}

// wrapError converts genai API errors into *APIError and leaves anything
// else (context errors, transport failures) as is.
func wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{Code: apiErr.Code, Status: apiErr.Status, Message: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &APIError{Code: apiErrPtr.Code, Status: apiErrPtr.Status, Message: apiErrPtr.Message}
	}
	return err
}
