package users

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/pharmaops/pharmaops/internal/rbac"
	"github.com/pharmaops/pharmaops/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	Get(ctx context.Context, id int64) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	Create(ctx context.Context, u User) (User, error)
	SetActive(ctx context.Context, id int64, active bool) (User, error)
	TouchLogin(ctx context.Context, id int64) error
}

// Service handles user business logic.
type Service struct {
	repo   RepositoryPort
	audit  shared.AuditRecorder
	logger *slog.Logger
	cost   int
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, cost: bcrypt.DefaultCost}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// Get loads one user.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.Get(ctx, id)
}

// FindByEmail loads a user for credential checks.
func (s *Service) FindByEmail(ctx context.Context, email string) (User, error) {
	return s.repo.FindByEmail(ctx, strings.TrimSpace(email))
}

// TouchLogin records the login time.
func (s *Service) TouchLogin(ctx context.Context, id int64) error {
	return s.repo.TouchLogin(ctx, id)
}

// CreateUser hashes the password and stores the account.
func (s *Service) CreateUser(ctx context.Context, input CreateInput, actorID int64) (User, error) {
	role, ok := rbac.ParseRole(input.Role)
	if !ok {
		return User{}, ErrInvalidRole
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.cost)
	if err != nil {
		return User{}, err
	}
	u, err := s.repo.Create(ctx, User{
		Name:         strings.TrimSpace(input.Name),
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		PasswordHash: string(hash),
		Role:         role,
	})
	if err != nil {
		return User{}, err
	}
	s.record(ctx, actorID, "users:create", u.ID, map[string]any{"role": string(u.Role)})
	return u, nil
}

// Deactivate disables an account. Users cannot deactivate themselves.
func (s *Service) Deactivate(ctx context.Context, id, actorID int64) (User, error) {
	if id == actorID {
		return User{}, ErrSelfDeactivation
	}
	u, err := s.repo.SetActive(ctx, id, false)
	if err != nil {
		return User{}, err
	}
	s.record(ctx, actorID, "users:deactivate", u.ID, nil)
	return u, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
