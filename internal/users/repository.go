package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pharmaops/pharmaops/internal/platform/db"
	"github.com/pharmaops/pharmaops/internal/rbac"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

const userColumns = `id, name, email, password_hash, role, is_active, last_login_at, created_at, updated_at`

const emailConstraint = "users_email_key"

// ListUsers returns all users ordered by name.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Get loads a user by id.
func (r *Repository) Get(ctx context.Context, id int64) (User, error) {
	return r.one(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
}

// FindByEmail loads a user by case-insensitive email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (User, error) {
	return r.one(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email)=lower($1)`, email)
}

// Create inserts a user.
func (r *Repository) Create(ctx context.Context, u User) (User, error) {
	created, err := r.one(ctx, `INSERT INTO users (name, email, password_hash, role)
VALUES ($1, $2, $3, $4) RETURNING `+userColumns, u.Name, u.Email, u.PasswordHash, string(u.Role))
	if db.IsUniqueViolation(err, emailConstraint) {
		return User{}, ErrEmailTaken
	}
	return created, err
}

// SetActive toggles the active flag.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) (User, error) {
	return r.one(ctx, `UPDATE users SET is_active=$2, updated_at=NOW() WHERE id=$1 RETURNING `+userColumns, id, active)
}

// TouchLogin records a successful login.
func (r *Repository) TouchLogin(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_login_at=NOW() WHERE id=$1`, id)
	return err
}

func (r *Repository) one(ctx context.Context, query string, args ...any) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var u User
	var role string
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.IsActive, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt)
	u.Role = rbac.Role(role)
	return u, err
}
