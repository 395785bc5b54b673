package sales

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pharmaops/pharmaops/internal/inventory"
	"github.com/pharmaops/pharmaops/internal/platform/db"
)

// StockTx is the slice of inventory behaviour sales need inside a transaction.
type StockTx interface {
	LockItem(ctx context.Context, id int64) (inventory.StockItem, error)
	AdjustQuantity(ctx context.Context, id, delta int64) (int64, error)
	InsertMovement(ctx context.Context, m inventory.Movement) (inventory.Movement, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	StockTx
	LockSale(ctx context.Context, id int64) (Sale, error)
	InsertSale(ctx context.Context, sale Sale) (Sale, error)
	UpdateSale(ctx context.Context, sale Sale) (Sale, error)
	DeleteSale(ctx context.Context, id int64) error
	LockReturn(ctx context.Context, id int64) (Return, error)
	InsertReturn(ctx context.Context, ret Return) (Return, error)
	DeleteReturn(ctx context.Context, id int64) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Sale, error)
	List(ctx context.Context, filters ListFilters) ([]Sale, int, error)
	ListReturns(ctx context.Context, filters ListFilters) ([]Return, int, error)
}

// Repository persists sales in PostgreSQL.
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
	*inventory.TxStore
}

const saleColumns = `s.id, s.stock_item_id, i.name, s.customer_id, s.quantity,
	COALESCE((SELECT SUM(r.quantity) FROM sale_returns r WHERE r.sale_id = s.id), 0),
	s.price, s.total_amount, s.prescription_ref, s.note, s.sale_date, COALESCE(s.created_by, 0), s.updated_at`

// lockedSaleColumns mirrors saleColumns without the returns aggregate, which FOR UPDATE rejects.
const lockedSaleColumns = `s.id, s.stock_item_id, i.name, s.customer_id, s.quantity, 0::bigint,
	s.price, s.total_amount, s.prescription_ref, s.note, s.sale_date, COALESCE(s.created_by, 0), s.updated_at`

// WithTx executes the callback inside a read-committed transaction; rows are serialized with FOR UPDATE.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxLevel(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{TxStore: inventory.NewTxStore(tx)})
	})
}

// Get loads a sale.
func (r *Repository) Get(ctx context.Context, id int64) (Sale, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales s JOIN stock_items i ON i.id = s.stock_item_id WHERE s.id=$1`, id)
	sale, err := scanSale(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, ErrNotFound
	}
	return sale, err
}

// List returns sales ordered by date descending.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]Sale, int, error) {
	clause, args := whereClause("s.sale_date", "s", filters)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales s WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sales: count: %w", err)
	}
	args, limit := paginate(args, filters)
	rows, err := r.pool.Query(ctx, `SELECT `+saleColumns+` FROM sales s JOIN stock_items i ON i.id = s.stock_item_id
		WHERE `+clause+` ORDER BY s.sale_date DESC, s.id DESC`+limit, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("sales: list: %w", err)
	}
	defer rows.Close()

	var out []Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, sale)
	}
	return out, total, rows.Err()
}

// ListReturns returns returns ordered by date descending.
func (r *Repository) ListReturns(ctx context.Context, filters ListFilters) ([]Return, int, error) {
	clause, args := whereClause("r.returned_at", "r", filters)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sale_returns r WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sales: count returns: %w", err)
	}
	args, limit := paginate(args, filters)
	rows, err := r.pool.Query(ctx, `SELECT r.id, r.sale_id, r.stock_item_id, r.quantity, r.refund_amount, r.reason, r.returned_at, COALESCE(r.created_by, 0)
		FROM sale_returns r WHERE `+clause+` ORDER BY r.returned_at DESC, r.id DESC`+limit, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("sales: list returns: %w", err)
	}
	defer rows.Close()

	var out []Return
	for rows.Next() {
		ret, err := scanReturn(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, ret)
	}
	return out, total, rows.Err()
}

func whereClause(dateCol, alias string, f ListFilters) (string, []any) {
	where := []string{"1=1"}
	args := []any{}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if !f.From.IsZero() {
		add(dateCol+" >= ?", f.From)
	}
	if !f.To.IsZero() {
		add(dateCol+" < ?", f.To)
	}
	if f.StockItemID > 0 {
		add(alias+".stock_item_id = ?", f.StockItemID)
	}
	if f.CustomerID > 0 && alias == "s" {
		add("s.customer_id = ?", f.CustomerID)
	}
	if f.SaleID > 0 && alias == "r" {
		add("r.sale_id = ?", f.SaleID)
	}
	return strings.Join(where, " AND "), args
}

func paginate(args []any, f ListFilters) ([]any, string) {
	page, perPage := f.Page, f.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)
	return args, " LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))
}

func (t *txRepo) LockSale(ctx context.Context, id int64) (Sale, error) {
	row := t.Tx().QueryRow(ctx, `SELECT `+lockedSaleColumns+` FROM sales s JOIN stock_items i ON i.id = s.stock_item_id WHERE s.id=$1 FOR UPDATE OF s`, id)
	sale, err := scanSale(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, ErrNotFound
	}
	if err != nil {
		return Sale{}, err
	}
	err = t.Tx().QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM sale_returns WHERE sale_id=$1`, id).Scan(&sale.ReturnedQuantity)
	return sale, err
}

func (t *txRepo) InsertSale(ctx context.Context, sale Sale) (Sale, error) {
	saleDate := sale.SaleDate
	if saleDate.IsZero() {
		saleDate = time.Now().UTC()
	}
	err := t.Tx().QueryRow(ctx, `INSERT INTO sales (stock_item_id, customer_id, quantity, price, total_amount, prescription_ref, note, sale_date, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, 0))
		RETURNING id, sale_date, updated_at`,
		sale.StockItemID, sale.CustomerID, sale.Quantity, sale.Price, sale.TotalAmount, sale.PrescriptionRef, sale.Note, saleDate, sale.CreatedBy).
		Scan(&sale.ID, &sale.SaleDate, &sale.UpdatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Sale{}, ErrCustomerNotFound
		}
		return Sale{}, fmt.Errorf("sales: insert sale: %w", err)
	}
	return sale, nil
}

func (t *txRepo) UpdateSale(ctx context.Context, sale Sale) (Sale, error) {
	err := t.Tx().QueryRow(ctx, `UPDATE sales SET quantity=$1, total_amount=$2, note=$3, updated_at=NOW() WHERE id=$4 RETURNING updated_at`,
		sale.Quantity, sale.TotalAmount, sale.Note, sale.ID).Scan(&sale.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, ErrNotFound
	}
	if err != nil {
		return Sale{}, fmt.Errorf("sales: update sale: %w", err)
	}
	return sale, nil
}

func (t *txRepo) DeleteSale(ctx context.Context, id int64) error {
	tag, err := t.Tx().Exec(ctx, `DELETE FROM sales WHERE id=$1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrHasReturns
		}
		return fmt.Errorf("sales: delete sale: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) LockReturn(ctx context.Context, id int64) (Return, error) {
	row := t.Tx().QueryRow(ctx, `SELECT r.id, r.sale_id, r.stock_item_id, r.quantity, r.refund_amount, r.reason, r.returned_at, COALESCE(r.created_by, 0)
		FROM sale_returns r WHERE r.id=$1 FOR UPDATE`, id)
	ret, err := scanReturn(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Return{}, ErrReturnNotFound
	}
	return ret, err
}

func (t *txRepo) InsertReturn(ctx context.Context, ret Return) (Return, error) {
	err := t.Tx().QueryRow(ctx, `INSERT INTO sale_returns (sale_id, stock_item_id, quantity, refund_amount, reason, created_by)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, 0))
		RETURNING id, returned_at`,
		ret.SaleID, ret.StockItemID, ret.Quantity, ret.RefundAmount, ret.Reason, ret.CreatedBy).Scan(&ret.ID, &ret.ReturnedAt)
	if err != nil {
		return Return{}, fmt.Errorf("sales: insert return: %w", err)
	}
	return ret, nil
}

func (t *txRepo) DeleteReturn(ctx context.Context, id int64) error {
	tag, err := t.Tx().Exec(ctx, `DELETE FROM sale_returns WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("sales: delete return: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReturnNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner) (Sale, error) {
	var s Sale
	err := row.Scan(&s.ID, &s.StockItemID, &s.StockItemName, &s.CustomerID, &s.Quantity, &s.ReturnedQuantity,
		&s.Price, &s.TotalAmount, &s.PrescriptionRef, &s.Note, &s.SaleDate, &s.CreatedBy, &s.UpdatedAt)
	return s, err
}

func scanReturn(row rowScanner) (Return, error) {
	var r Return
	err := row.Scan(&r.ID, &r.SaleID, &r.StockItemID, &r.Quantity, &r.RefundAmount, &r.Reason, &r.ReturnedAt, &r.CreatedBy)
	return r, err
}
