package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is not a positive integer.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidEmail is returned when an email address is malformed.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrEmptyCandidateName is returned when a BGV request has no candidate name.
	ErrEmptyCandidateName = errors.New("candidate name cannot be empty")

	// ErrInvalidBGVStatus is returned when a BGV status is not one of the known values.
	ErrInvalidBGVStatus = errors.New("invalid bgv request status")

	// ErrNegativeExperience is returned when total experience is below zero.
	ErrNegativeExperience = errors.New("total experience cannot be negative")
)
