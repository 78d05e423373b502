// Package project implements the project lifecycle: creation, field
// updates, the admin approval gate, participant management and the
// cascading delete of dependent attachments.
package project

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/praxisdesk/praxisdesk/internal/platform/httpx"
)

// Status enumerates project execution states. Status and stage are
// orthogonal axes.
type Status string

// Execution states.
const (
	StatusInProgress Status = "in_progress"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// ValidStatus reports membership in the fixed enum.
func ValidStatus(s Status) bool {
	switch s {
	case StatusInProgress, StatusPaused, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Stage enumerates delivery phases.
type Stage string

// Delivery phases.
const (
	StagePlanning    Stage = "planning"
	StageDevelopment Stage = "development"
	StageTesting     Stage = "testing"
	StageReview      Stage = "review"
	StageFinalized   Stage = "finalized"
)

// ValidStage reports membership in the fixed enum.
func ValidStage(s Stage) bool {
	switch s {
	case StagePlanning, StageDevelopment, StageTesting, StageReview, StageFinalized:
		return true
	}
	return false
}

// Project is a unit of consultancy delivery work.
type Project struct {
	ID             uuid.UUID
	Name           string
	Description    string
	Status         Status
	Stage          Stage
	Approved       bool
	CreatorID      int64
	ResponsibleID  int64
	ParticipantIDs []int64
	StartDate      *time.Time
	EndDate        *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CascadeFailure records one attachment the delete cascade could not remove.
type CascadeFailure struct {
	FileID uuid.UUID
	Err    error
}

// CascadeResult summarizes the attachment cascade of a project deletion.
// The project row is removed even when failures remain.
type CascadeResult struct {
	Deleted  int
	Failures []CascadeFailure
}

var (
	// ErrProjectNotFound is returned when the row is absent.
	ErrProjectNotFound = fmt.Errorf("project: %w", httpx.ErrNotFound)
	// ErrInvalidStatus rejects statuses outside the fixed enum.
	ErrInvalidStatus = fmt.Errorf("invalid project status: %w", httpx.ErrValidation)
	// ErrInvalidStage rejects stages outside the fixed enum.
	ErrInvalidStage = fmt.Errorf("invalid project stage: %w", httpx.ErrValidation)
	// ErrParticipantNotFound rejects assignment of an unknown user.
	ErrParticipantNotFound = fmt.Errorf("participant user: %w", httpx.ErrNotFound)
	// ErrNotParticipant is returned when removing a user who is not assigned.
	ErrNotParticipant = fmt.Errorf("user is not a participant: %w", httpx.ErrNotFound)
	// ErrResponsibleNotFound rejects assignment of an unknown responsible.
	ErrResponsibleNotFound = fmt.Errorf("responsible user: %w", httpx.ErrNotFound)
)
