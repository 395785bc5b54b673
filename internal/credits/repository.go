package credits

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pharmaops/pharmaops/internal/platform/db"
)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	CounterpartyExists(ctx context.Context, kind Kind, id int64) (bool, error)
	LockCredit(ctx context.Context, kind Kind, id int64) (Credit, error)
	InsertCredit(ctx context.Context, c Credit) (Credit, error)
	UpdateCredit(ctx context.Context, c Credit) (Credit, error)
	DeleteCredit(ctx context.Context, kind Kind, id int64) error
	InsertPayment(ctx context.Context, p Payment) (Payment, error)
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, kind Kind, id int64) (Credit, error)
	Report(ctx context.Context, filter ReportFilter) ([]Credit, int, Totals, error)
	Payments(ctx context.Context, creditID int64) ([]Payment, error)
	Outstanding(ctx context.Context) (map[Kind]Totals, error)
}

// Repository persists credits in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var (
	_ RepositoryPort = (*Repository)(nil)
	_ TxRepository   = (*txRepo)(nil)
)

type txRepo struct {
	tx pgx.Tx
}

const creditSelect = `SELECT c.id, c.kind, c.counterparty_id, COALESCE(cu.name, su.name, ''), c.stock_item_id,
	c.credit_amount, c.paid_amount, c.status, c.status_overridden, c.credit_date, c.note, c.payment_file,
	COALESCE(c.created_by, 0), c.created_at, c.updated_at
	FROM credit_records c
	LEFT JOIN customers cu ON c.kind = 'CUSTOMER' AND cu.id = c.counterparty_id
	LEFT JOIN suppliers su ON c.kind = 'SUPPLIER' AND su.id = c.counterparty_id`

// WithTx executes the callback inside a read-committed transaction; rows are serialized with FOR UPDATE.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxLevel(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// Get loads a credit of the given kind.
func (r *Repository) Get(ctx context.Context, kind Kind, id int64) (Credit, error) {
	c, err := scanCredit(r.pool.QueryRow(ctx, creditSelect+` WHERE c.kind=$1 AND c.id=$2`, string(kind), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Credit{}, ErrNotFound
	}
	return c, err
}

// Report returns a page of credits, the unpaginated count and grand totals.
func (r *Repository) Report(ctx context.Context, f ReportFilter) ([]Credit, int, Totals, error) {
	where := []string{"c.kind = $1"}
	args := []any{string(f.Kind)}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if !f.From.IsZero() {
		add("c.credit_date >= ?", f.From)
	}
	if !f.To.IsZero() {
		add("c.credit_date < ?", f.To)
	}
	if f.CounterpartyID > 0 {
		add("c.counterparty_id = ?", f.CounterpartyID)
	}
	if f.Status != "" {
		add("c.status = ?", string(f.Status))
	}
	clause := strings.Join(where, " AND ")

	var (
		total        int
		credit, paid decimal.Decimal
	)
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(c.credit_amount), 0), COALESCE(SUM(c.paid_amount), 0)
		FROM credit_records c WHERE `+clause, args...).Scan(&total, &credit, &paid)
	if err != nil {
		return nil, 0, Totals{}, fmt.Errorf("credits: report totals: %w", err)
	}
	grand := Totals{TotalCredit: credit, TotalPaid: paid, TotalPending: credit.Sub(paid)}

	page, perPage := f.Page, f.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)
	rows, err := r.pool.Query(ctx, creditSelect+` WHERE `+clause+` ORDER BY c.credit_date DESC, c.id DESC LIMIT $`+
		strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, Totals{}, fmt.Errorf("credits: report rows: %w", err)
	}
	defer rows.Close()

	var out []Credit
	for rows.Next() {
		c, err := scanCredit(rows)
		if err != nil {
			return nil, 0, Totals{}, err
		}
		out = append(out, c)
	}
	return out, total, grand, rows.Err()
}

// Payments lists the payment history of a credit.
func (r *Repository) Payments(ctx context.Context, creditID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, credit_id, amount, paid_total, payment_file, paid_at, COALESCE(actor_id, 0)
		FROM credit_payments WHERE credit_id=$1 ORDER BY paid_at, id`, creditID)
	if err != nil {
		return nil, fmt.Errorf("credits: payments: %w", err)
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.CreditID, &p.Amount, &p.PaidTotal, &p.PaymentFile, &p.PaidAt, &p.ActorID); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Outstanding sums the ledger per kind.
func (r *Repository) Outstanding(ctx context.Context) (map[Kind]Totals, error) {
	rows, err := r.pool.Query(ctx, `SELECT kind, COALESCE(SUM(credit_amount), 0), COALESCE(SUM(paid_amount), 0) FROM credit_records GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("credits: outstanding: %w", err)
	}
	defer rows.Close()

	out := map[Kind]Totals{}
	for rows.Next() {
		var (
			kind         string
			credit, paid decimal.Decimal
		)
		if err := rows.Scan(&kind, &credit, &paid); err != nil {
			return nil, err
		}
		out[Kind(kind)] = Totals{TotalCredit: credit, TotalPaid: paid, TotalPending: credit.Sub(paid)}
	}
	return out, rows.Err()
}

func (t *txRepo) CounterpartyExists(ctx context.Context, kind Kind, id int64) (bool, error) {
	table := "customers"
	if kind == KindSupplier {
		table = "suppliers"
	}
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id=$1)`, id).Scan(&exists)
	return exists, err
}

func (t *txRepo) LockCredit(ctx context.Context, kind Kind, id int64) (Credit, error) {
	c, err := scanCredit(t.tx.QueryRow(ctx, creditSelect+` WHERE c.kind=$1 AND c.id=$2 FOR UPDATE OF c`, string(kind), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Credit{}, ErrNotFound
	}
	return c, err
}

func (t *txRepo) InsertCredit(ctx context.Context, c Credit) (Credit, error) {
	creditDate := c.CreditDate
	if creditDate.IsZero() {
		creditDate = time.Now().UTC()
	}
	err := t.tx.QueryRow(ctx, `INSERT INTO credit_records (kind, counterparty_id, stock_item_id, credit_amount, paid_amount, status, credit_date, note, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, 0))
		RETURNING id, credit_date, created_at, updated_at`,
		string(c.Kind), c.CounterpartyID, c.StockItemID, c.CreditAmount, c.PaidAmount, string(c.Status), creditDate, c.Note, c.CreatedBy).
		Scan(&c.ID, &c.CreditDate, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Credit{}, ErrStockItemNotFound
		}
		return Credit{}, fmt.Errorf("credits: insert: %w", err)
	}
	return c, nil
}

func (t *txRepo) UpdateCredit(ctx context.Context, c Credit) (Credit, error) {
	err := t.tx.QueryRow(ctx, `UPDATE credit_records SET credit_amount=$1, paid_amount=$2, status=$3, status_overridden=$4,
			credit_date=$5, note=$6, payment_file=$7, updated_at=NOW()
		WHERE id=$8 AND kind=$9
		RETURNING updated_at`,
		c.CreditAmount, c.PaidAmount, string(c.Status), c.StatusOverridden, c.CreditDate, c.Note, c.PaymentFile, c.ID, string(c.Kind)).
		Scan(&c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Credit{}, ErrNotFound
	}
	if err != nil {
		return Credit{}, fmt.Errorf("credits: update: %w", err)
	}
	return c, nil
}

func (t *txRepo) DeleteCredit(ctx context.Context, kind Kind, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM credit_records WHERE id=$1 AND kind=$2`, id, string(kind))
	if err != nil {
		return fmt.Errorf("credits: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO credit_payments (credit_id, amount, paid_total, payment_file, actor_id)
		VALUES ($1, $2, $3, $4, NULLIF($5, 0))
		RETURNING id, paid_at`,
		p.CreditID, p.Amount, p.PaidTotal, p.PaymentFile, p.ActorID).Scan(&p.ID, &p.PaidAt)
	if err != nil {
		return Payment{}, fmt.Errorf("credits: insert payment: %w", err)
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredit(row rowScanner) (Credit, error) {
	var (
		c      Credit
		kind   string
		status string
	)
	err := row.Scan(&c.ID, &kind, &c.CounterpartyID, &c.CounterpartyName, &c.StockItemID,
		&c.CreditAmount, &c.PaidAmount, &status, &c.StatusOverridden, &c.CreditDate, &c.Note, &c.PaymentFile,
		&c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Credit{}, err
	}
	c.Kind = Kind(kind)
	c.Status = Status(status)
	return c.withUnpaid(), nil
}
