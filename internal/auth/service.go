package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"

	"github.com/praxisdesk/praxisdesk/internal/platform/httpx"
	"github.com/praxisdesk/praxisdesk/internal/rbac"
	"github.com/praxisdesk/praxisdesk/internal/shared"
)

// Repository defines persistence used by the auth service.
type Repository interface {
	FindByID(ctx context.Context, id int64) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	CreateUser(ctx context.Context, user User, roleID int64) (*User, error)
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
}

// ResetCodeStore keeps short-lived password reset codes.
type ResetCodeStore interface {
	Save(ctx context.Context, email, code string, ttl time.Duration) error
	Consume(ctx context.Context, email, code string) (bool, error)
}

// Notifier dispatches account emails. Delivery is best effort and never
// blocks the calling flow.
type Notifier interface {
	PasswordReset(ctx context.Context, to, name, code string)
}

const resetCodeTTL = 15 * time.Minute

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	tokens   *TokenService
	codes    ResetCodeStore
	notifier Notifier
	logger   *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *TokenService, codes ResetCodeStore, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{repo: repo, tokens: tokens, codes: codes, notifier: notifier, logger: logger}
}

// Register creates an account seeded with the Client role and returns a
// fresh bearer token.
func (s *Service) Register(ctx context.Context, name, username, email, password string) (*User, string, error) {
	name = norm.NFC.String(strings.TrimSpace(name))
	username = strings.TrimSpace(username)
	email = NormalizeEmail(email)
	if name == "" || username == "" || email == "" || password == "" {
		return nil, "", fmt.Errorf("all fields required: %w", httpx.ErrValidation)
	}
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, "", ErrEmailTaken
	} else if !errors.Is(err, httpx.ErrNotFound) {
		return nil, "", err
	}
	if _, err := s.repo.FindByUsername(ctx, username); err == nil {
		return nil, "", ErrUsernameTaken
	} else if !errors.Is(err, httpx.ErrNotFound) {
		return nil, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}
	user, err := s.repo.CreateUser(ctx, User{
		Name:         name,
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Active:       true,
	}, rbac.RoleClient)
	if err != nil {
		return nil, "", err
	}
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

// Login validates email/password credentials and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (*User, string, error) {
	user, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, "", ErrInvalidCredential
		}
		return nil, "", err
	}
	if !user.Active {
		return nil, "", ErrPrincipalInactive
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredential
	}
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

// Resolve turns a bearer token into an authenticated principal. Roles come
// fresh from the store, not from token claims, so revocation takes effect
// on the next request.
func (s *Service) Resolve(ctx context.Context, token string) (shared.Principal, error) {
	userID, err := s.tokens.Verify(token)
	if err != nil {
		return shared.Principal{}, err
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return shared.Principal{}, ErrPrincipalNotFound
		}
		return shared.Principal{}, err
	}
	if !user.Active {
		return shared.Principal{}, ErrPrincipalInactive
	}
	return user.Principal(), nil
}

// ForgotPassword stores a one-time reset code and mails it. The response is
// identical whether or not the account exists.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil
		}
		return err
	}
	code, err := newResetCode()
	if err != nil {
		return fmt.Errorf("generate reset code: %w", err)
	}
	if err := s.codes.Save(ctx, email, code, resetCodeTTL); err != nil {
		return fmt.Errorf("store reset code: %w", err)
	}
	s.notifier.PasswordReset(ctx, user.Email, user.Name, code)
	return nil
}

// ResetPassword consumes a reset code and replaces the password hash.
func (s *Service) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email = NormalizeEmail(email)
	if newPassword == "" {
		return fmt.Errorf("password required: %w", httpx.ErrValidation)
	}
	ok, err := s.codes.Consume(ctx, email, code)
	if err != nil {
		return fmt.Errorf("verify reset code: %w", err)
	}
	if !ok {
		return ErrResetCodeInvalid
	}
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.repo.UpdatePassword(ctx, user.ID, string(hash))
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func newResetCode() (string, error) {
	const digits = "0123456789"
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = digits[int(b)%len(digits)]
	}
	return string(buf), nil
}
