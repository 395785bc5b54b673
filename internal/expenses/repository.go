package expenses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pharmaops/pharmaops/internal/shared"
)

// RepositoryPort abstracts expense persistence for Service.
type RepositoryPort interface {
	List(ctx context.Context, filters ListFilters) ([]Expense, int, decimal.Decimal, error)
	Get(ctx context.Context, id int64) (Expense, error)
	Create(ctx context.Context, input Input, actorID int64) (Expense, error)
	Update(ctx context.Context, id int64, input Input) (Expense, error)
	Delete(ctx context.Context, id int64) error
	Total(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
}

// Repository persists expenses in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

const expenseColumns = `id, category, description, amount, expense_date, COALESCE(created_by, 0), created_at, updated_at`

func where(f ListFilters) (string, []any) {
	var clauses []string
	var args []any
	if !f.From.IsZero() {
		args = append(args, f.From)
		clauses = append(clauses, fmt.Sprintf("expense_date >= $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		clauses = append(clauses, fmt.Sprintf("expense_date < $%d", len(args)))
	}
	if c := strings.TrimSpace(f.Category); c != "" {
		args = append(args, strings.ToLower(c))
		clauses = append(clauses, fmt.Sprintf("category = $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// List returns one page, the filtered row count and the filtered amount sum.
func (r *Repository) List(ctx context.Context, f ListFilters) ([]Expense, int, decimal.Decimal, error) {
	page, perPage := shared.NormalizePage(f.Page, f.PerPage)
	clause, args := where(f)

	var total int
	var sum decimal.Decimal
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(amount), 0) FROM expenses`+clause, args...).Scan(&total, &sum); err != nil {
		return nil, 0, decimal.Zero, err
	}

	args = append(args, perPage, shared.Offset(page, perPage))
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM expenses%s ORDER BY expense_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		expenseColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, decimal.Zero, err
	}
	defer rows.Close()
	out := make([]Expense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, 0, decimal.Zero, err
		}
		out = append(out, e)
	}
	return out, total, sum, rows.Err()
}

// Get loads one expense.
func (r *Repository) Get(ctx context.Context, id int64) (Expense, error) {
	e, err := scanExpense(r.pool.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Expense{}, ErrNotFound
	}
	return e, err
}

// Create inserts an expense.
func (r *Repository) Create(ctx context.Context, in Input, actorID int64) (Expense, error) {
	return scanExpense(r.pool.QueryRow(ctx, `INSERT INTO expenses (category, description, amount, expense_date, created_by)
VALUES ($1, $2, $3, $4, NULLIF($5, 0))
RETURNING `+expenseColumns, in.Category, in.Description, in.Amount, *in.ExpenseDate, actorID))
}

// Update replaces the editable fields of an expense.
func (r *Repository) Update(ctx context.Context, id int64, in Input) (Expense, error) {
	e, err := scanExpense(r.pool.QueryRow(ctx, `UPDATE expenses
SET category=$2, description=$3, amount=$4, expense_date=$5, updated_at=NOW()
WHERE id=$1
RETURNING `+expenseColumns, id, in.Category, in.Description, in.Amount, *in.ExpenseDate))
	if errors.Is(err, pgx.ErrNoRows) {
		return Expense{}, ErrNotFound
	}
	return e, err
}

// Delete removes an expense.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM expenses WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Total sums expenses dated in [from, to). Zero bounds are open.
func (r *Repository) Total(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	clause, args := where(ListFilters{From: from, To: to})
	var sum decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM expenses`+clause, args...).Scan(&sum)
	return sum, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (Expense, error) {
	var e Expense
	err := row.Scan(&e.ID, &e.Category, &e.Description, &e.Amount, &e.ExpenseDate, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}
