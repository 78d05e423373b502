// Package auth implements credential handling and the principal resolver:
// bearer tokens in, fully hydrated principals out.
package auth

import (
	"fmt"
	"time"

	"github.com/praxisdesk/praxisdesk/internal/platform/httpx"
	"github.com/praxisdesk/praxisdesk/internal/shared"
)

// User represents an account row including resolved role references.
type User struct {
	ID           int64
	Name         string
	Username     string
	Email        string
	PasswordHash string
	Active       bool
	Roles        []shared.RoleRef
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal converts the stored user into the request-scoped principal.
func (u User) Principal() shared.Principal {
	return shared.Principal{
		ID:     u.ID,
		Email:  u.Email,
		Name:   u.Name,
		Active: u.Active,
		Roles:  u.Roles,
	}
}

var (
	// ErrInvalidCredential covers malformed, expired or wrongly signed tokens
	// and failed password checks.
	ErrInvalidCredential = fmt.Errorf("invalid credential: %w", httpx.ErrUnauthorized)
	// ErrPrincipalNotFound is returned when the token subject no longer exists.
	ErrPrincipalNotFound = fmt.Errorf("principal not found: %w", httpx.ErrUnauthorized)
	// ErrPrincipalInactive is returned for deactivated accounts.
	ErrPrincipalInactive = fmt.Errorf("principal inactive: %w", httpx.ErrUnauthorized)
	// ErrEmailTaken signals a registration conflict on email.
	ErrEmailTaken = fmt.Errorf("email already in use: %w", httpx.ErrConflict)
	// ErrUsernameTaken signals a registration conflict on username.
	ErrUsernameTaken = fmt.Errorf("username already in use: %w", httpx.ErrConflict)
	// ErrResetCodeInvalid is returned for unknown or expired reset codes.
	ErrResetCodeInvalid = fmt.Errorf("reset code invalid or expired: %w", httpx.ErrValidation)
)
