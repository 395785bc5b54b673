// Package auth issues and verifies bearer tokens for staff accounts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/pharmaops/pharmaops/internal/rbac"
	"github.com/pharmaops/pharmaops/internal/shared"
	"github.com/pharmaops/pharmaops/internal/users"
)

// ErrTokenRevoked indicates a token used after logout.
var ErrTokenRevoked = fmt.Errorf("auth: token revoked: %w", shared.ErrUnauthorized)

// UserDirectory resolves accounts for login and token checks.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (users.User, error)
	Get(ctx context.Context, id int64) (users.User, error)
	TouchLogin(ctx context.Context, id int64) error
}

// LoginResult is returned on successful login.
type LoginResult struct {
	Token     string     `json:"token"`
	TokenType string     `json:"token_type"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      users.User `json:"user"`
}

// Service wraps authentication business rules.
type Service struct {
	users   UserDirectory
	tokens  *Tokens
	revoked RevocationStore
	audit   shared.AuditRecorder
	logger  *slog.Logger
}

// NewService constructs a new Service.
func NewService(directory UserDirectory, tokens *Tokens, revoked RevocationStore, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: directory, tokens: tokens, revoked: revoked, audit: audit, logger: logger}
}

// Login validates email/password credentials and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	user, err := s.users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return LoginResult{}, shared.ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if !user.IsActive {
		return LoginResult{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return LoginResult{}, shared.ErrInvalidCredentials
	}
	token, claims, err := s.tokens.Issue(user)
	if err != nil {
		return LoginResult{}, err
	}
	if err := s.users.TouchLogin(ctx, user.ID); err != nil {
		s.logger.Warn("touch login", slog.Int64("user_id", user.ID), slog.Any("error", err))
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  user.ID,
		Action:   "auth:login",
		Entity:   "user",
		EntityID: strconv.FormatInt(user.ID, 10),
		Meta:     map[string]any{"jti": claims.ID},
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", "auth:login"), slog.Any("error", err))
	}
	return LoginResult{Token: token, TokenType: "Bearer", ExpiresAt: claims.ExpiresAt.Time, User: user}, nil
}

// Logout revokes the token until its natural expiry.
func (s *Service) Logout(ctx context.Context, raw string) error {
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return err
	}
	return s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}

// Authenticate turns a bearer token into a principal. The role and active flag
// come from the current account so demotions apply without waiting for expiry.
func (s *Service) Authenticate(ctx context.Context, raw string) (*shared.Principal, error) {
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return nil, err
	}
	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	user, err := s.users.Get(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, fmt.Errorf("auth: account disabled: %w", shared.ErrUnauthorized)
	}
	return &shared.Principal{
		UserID:      user.ID,
		Name:        user.Name,
		Role:        string(user.Role),
		Permissions: rbac.PermissionsFor(user.Role),
		TokenID:     claims.ID,
	}, nil
}

// Me returns the account behind the principal.
func (s *Service) Me(ctx context.Context, p *shared.Principal) (users.User, error) {
	if p == nil {
		return users.User{}, shared.ErrUnauthorized
	}
	return s.users.Get(ctx, p.UserID)
}
