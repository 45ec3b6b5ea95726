package domain

import (
	"net/mail"
	"strings"
	"time"
)

// BGVStatus represents the workflow state of a background-verification request
type BGVStatus string

// Possible BGV request status values
const (
	BGVStatusPendingAnalysis    BGVStatus = "pending_analysis"
	BGVStatusDocumentsRequested BGVStatus = "documents_requested"
	BGVStatusDocumentsSubmitted BGVStatus = "documents_submitted"
	BGVStatusCompleted          BGVStatus = "completed"
)

// RequiredDocuments lists the documents every candidate is asked for.
var RequiredDocuments = []string{"PAN Card", "Aadhaar Card"}

// BGVRequest is the minimal view of a background-verification request that
// the agent needs: who the candidate is, what role they applied for and
// where the request is in the workflow.
type BGVRequest struct {
	ID              int64     `json:"id" db:"id"`
	CandidateName   string    `json:"candidate_name" db:"candidate_name"`
	CandidateEmail  string    `json:"candidate_email" db:"candidate_email"`
	Role            string    `json:"role" db:"role"`
	TotalExperience int       `json:"total_experience" db:"total_experience"`
	Status          BGVStatus `json:"status" db:"status"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// NewBGVRequest creates a BGVRequest in the pending_analysis state.
// Returns an error if validation fails.
func NewBGVRequest(id int64, name, email string) (*BGVRequest, error) {
	now := time.Now().UTC()
	req := &BGVRequest{
		ID:             id,
		CandidateName:  strings.TrimSpace(name),
		CandidateEmail: strings.TrimSpace(email),
		Status:         BGVStatusPendingAnalysis,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	return req, nil
}

// Validate checks if the BGVRequest has valid data.
func (r *BGVRequest) Validate() error {
	if r.ID <= 0 {
		return ErrInvalidID
	}

	if r.CandidateName == "" {
		return ErrEmptyCandidateName
	}

	if _, err := mail.ParseAddress(r.CandidateEmail); err != nil {
		return ErrInvalidEmail
	}

	if r.TotalExperience < 0 {
		return ErrNegativeExperience
	}

	if !IsValidBGVStatus(r.Status) {
		return ErrInvalidBGVStatus
	}

	return nil
}

// UpdateStatus updates the request's status and the UpdatedAt timestamp.
func (r *BGVRequest) UpdateStatus(status BGVStatus) error {
	if !IsValidBGVStatus(status) {
		return ErrInvalidBGVStatus
	}

	r.Status = status
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// DaysPending returns the whole days elapsed since the request was created.
func (r *BGVRequest) DaysPending(now time.Time) int {
	if now.Before(r.CreatedAt) {
		return 0
	}
	return int(now.Sub(r.CreatedAt).Hours() / 24)
}

// IsValidBGVStatus checks if the given status is a known BGVStatus.
func IsValidBGVStatus(status BGVStatus) bool {
	switch status {
	case BGVStatusPendingAnalysis, BGVStatusDocumentsRequested,
		BGVStatusDocumentsSubmitted, BGVStatusCompleted:
		return true
	default:
		return false
	}
}
