// Package users manages staff accounts and their roles.
package users

import (
	"fmt"
	"time"

	"github.com/pharmaops/pharmaops/internal/rbac"
	"github.com/pharmaops/pharmaops/internal/shared"
)

// User represents a staff account.
type User struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         rbac.Role  `json:"role"`
	IsActive     bool       `json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CreateInput describes a new account.
type CreateInput struct {
	Name     string `json:"name" validate:"required,max=200"`
	Email    string `json:"email" validate:"required,email,max=200"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"required"`
}

var (
	// ErrNotFound indicates a missing user.
	ErrNotFound = fmt.Errorf("users: user %w", shared.ErrNotFound)
	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = fmt.Errorf("users: email already registered: %w", shared.ErrConflict)
	// ErrInvalidRole indicates an unknown role name.
	ErrInvalidRole = fmt.Errorf("users: unknown role: %w", shared.ErrValidation)
	// ErrSelfDeactivation blocks users from locking themselves out.
	ErrSelfDeactivation = fmt.Errorf("users: cannot deactivate own account: %w", shared.ErrConflict)
)
