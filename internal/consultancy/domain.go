// Package consultancy implements the consultancy request lifecycle:
// submission with attachments, the status state machine and its
// notification side effects.
package consultancy

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/praxisdesk/praxisdesk/internal/platform/httpx"
)

// Status enumerates consultancy lifecycle states.
type Status string

// Lifecycle states. Completed and cancelled are terminal.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusConfirmed  Status = "confirmed"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// ValidStatus reports membership in the fixed enum.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is defined from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// DuplicateWindow is the minimum gap between submissions from the same
// requester email.
const DuplicateWindow = 24 * time.Hour

// Consultancy is a client-submitted consultancy request.
type Consultancy struct {
	ID            uuid.UUID
	Name          string
	Email         string
	Phone         string
	Company       string
	Description   string
	ConsentGiven  bool
	Status        Status
	ResponsibleID *int64
	Observations  string
	ScheduledAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

var (
	// ErrConsultancyNotFound is returned when the row is absent.
	ErrConsultancyNotFound = fmt.Errorf("consultancy: %w", httpx.ErrNotFound)
	// ErrInvalidStatus rejects statuses outside the fixed enum.
	ErrInvalidStatus = fmt.Errorf("invalid status: %w", httpx.ErrValidation)
	// ErrTerminalStatus rejects transitions out of completed/cancelled.
	ErrTerminalStatus = fmt.Errorf("status is terminal: %w", httpx.ErrValidation)
	// ErrConsentRequired rejects submissions without explicit consent.
	ErrConsentRequired = fmt.Errorf("consent required: %w", httpx.ErrValidation)
	// ErrDuplicateSubmission throttles repeat submissions inside the window.
	ErrDuplicateSubmission = fmt.Errorf("a recent request from this email already exists: %w", httpx.ErrRateLimited)
	// ErrTooManyAttachments caps files per submission.
	ErrTooManyAttachments = fmt.Errorf("too many attachments: %w", httpx.ErrValidation)
	// ErrResponsibleNotFound rejects assignment to an unknown user.
	ErrResponsibleNotFound = fmt.Errorf("responsible user: %w", httpx.ErrNotFound)
)
