package masterdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pharmaops/pharmaops/internal/platform/db"
	"github.com/pharmaops/pharmaops/internal/shared"
)

// RepositoryPort abstracts directory persistence for Service.
type RepositoryPort interface {
	List(ctx context.Context, filters ListFilters) ([]Party, int, error)
	Get(ctx context.Context, id int64) (Party, error)
	Create(ctx context.Context, input PartyInput) (Party, error)
	Update(ctx context.Context, id int64, input PartyInput) (Party, error)
	// Delete removes the row unless credit records still point at it.
	Delete(ctx context.Context, id int64) error
}

// Repository persists one directory in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	dir  Directory
}

// NewRepository constructs Repository for dir.
func NewRepository(pool *pgxpool.Pool, dir Directory) *Repository {
	return &Repository{pool: pool, dir: dir}
}

var _ RepositoryPort = (*Repository)(nil)

const partyColumns = `id, name, COALESCE(phone, ''), COALESCE(email, ''), COALESCE(address, ''), created_at, updated_at`

// List returns a page of parties ordered by name.
func (r *Repository) List(ctx context.Context, f ListFilters) ([]Party, int, error) {
	page, perPage := shared.NormalizePage(f.Page, f.PerPage)
	where := ""
	args := []any{}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where = " WHERE name ILIKE $1 OR phone ILIKE $1 OR email ILIKE $1"
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+r.dir.Table+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, perPage, shared.Offset(page, perPage))
	query := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY name, id LIMIT $%d OFFSET $%d`,
		partyColumns, r.dir.Table, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Party
	for rows.Next() {
		p, err := scanParty(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// Get loads one party.
func (r *Repository) Get(ctx context.Context, id int64) (Party, error) {
	p, err := scanParty(r.pool.QueryRow(ctx, `SELECT `+partyColumns+` FROM `+r.dir.Table+` WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Party{}, ErrNotFound
	}
	return p, err
}

// Create inserts a party.
func (r *Repository) Create(ctx context.Context, in PartyInput) (Party, error) {
	return scanParty(r.pool.QueryRow(ctx, `INSERT INTO `+r.dir.Table+` (name, phone, email, address)
VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''))
RETURNING `+partyColumns, in.Name, in.Phone, in.Email, in.Address))
}

// Update replaces the editable fields of a party.
func (r *Repository) Update(ctx context.Context, id int64, in PartyInput) (Party, error) {
	p, err := scanParty(r.pool.QueryRow(ctx, `UPDATE `+r.dir.Table+`
SET name=$2, phone=NULLIF($3, ''), email=NULLIF($4, ''), address=NULLIF($5, ''), updated_at=NOW()
WHERE id=$1
RETURNING `+partyColumns, id, in.Name, in.Phone, in.Email, in.Address))
	if errors.Is(err, pgx.ErrNoRows) {
		return Party{}, ErrNotFound
	}
	return p, err
}

// Delete removes a party after checking the credit ledger under a row lock.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var locked int64
		err := tx.QueryRow(ctx, `SELECT id FROM `+r.dir.Table+` WHERE id=$1 FOR UPDATE`, id).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var refs int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM credit_records WHERE kind=$1 AND counterparty_id=$2`,
			r.dir.CreditKind, id).Scan(&refs); err != nil {
			return err
		}
		if refs > 0 {
			return ErrInUse
		}
		_, err = tx.Exec(ctx, `DELETE FROM `+r.dir.Table+` WHERE id=$1`, id)
		if db.IsForeignKeyViolation(err) {
			return ErrInUse
		}
		return err
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParty(row rowScanner) (Party, error) {
	var p Party
	err := row.Scan(&p.ID, &p.Name, &p.Phone, &p.Email, &p.Address, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
