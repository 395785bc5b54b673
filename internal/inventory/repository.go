package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pharmaops/pharmaops/internal/platform/db"
)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	LockItem(ctx context.Context, id int64) (StockItem, error)
	AdjustQuantity(ctx context.Context, id, delta int64) (int64, error)
	InsertMovement(ctx context.Context, m Movement) (Movement, error)
	InsertItem(ctx context.Context, item StockItem) (StockItem, error)
	UpdateItem(ctx context.Context, id int64, input UpdateInput) (StockItem, error)
	CountReferences(ctx context.Context, id int64) (int, error)
	DeleteItem(ctx context.Context, id int64) error
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

// invoiceConstraint names the unique index guarding invoice numbers.
const invoiceConstraint = "stock_items_invoice_number_key"

const itemColumns = `id, name, generic_name, manufacturer, category, invoice_number, quantity, unit_price, sell_price,
	requires_prescription, reorder_level, expiry_date, supplier_id, COALESCE(created_by, 0), created_at, updated_at`

// WithTx executes the callback inside a read-committed transaction; rows are serialized with FOR UPDATE.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxLevel(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, NewTxStore(tx))
	})
}

// Get loads a stock item by id.
func (r *Repository) Get(ctx context.Context, id int64) (StockItem, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM stock_items WHERE id=$1`, id)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockItem{}, ErrNotFound
	}
	return item, err
}

// InvoiceExists reports whether an invoice number is already assigned.
func (r *Repository) InvoiceExists(ctx context.Context, invoice string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM stock_items WHERE invoice_number=$1)`, invoice).Scan(&exists)
	return exists, err
}

// List returns stock items matching filters with the unpaginated total.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]StockItem, int, error) {
	where := []string{"1=1"}
	args := []any{}
	if s := strings.TrimSpace(filters.Search); s != "" {
		args = append(args, "%"+s+"%")
		n := strconv.Itoa(len(args))
		where = append(where, "(name ILIKE $"+n+" OR generic_name ILIKE $"+n+" OR invoice_number ILIKE $"+n+")")
	}
	if filters.LowStockOnly {
		where = append(where, "quantity <= reorder_level")
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_items WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("inventory: count items: %w", err)
	}

	page, perPage := filters.Page, filters.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)
	query := `SELECT ` + itemColumns + ` FROM stock_items WHERE ` + clause +
		` ORDER BY ` + sortOrder(filters.SortBy, filters.SortDesc) +
		` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("inventory: list items: %w", err)
	}
	defer rows.Close()

	var items []StockItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

// StockCard lists movements for an item, newest last.
func (r *Repository) StockCard(ctx context.Context, filter StockCardFilter) ([]Movement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	var from, to *time.Time
	if !filter.From.IsZero() {
		from = &filter.From
	}
	if !filter.To.IsZero() {
		to = &filter.To
	}
	rows, err := r.pool.Query(ctx, `SELECT id, stock_item_id, movement_type, delta, balance_after, ref_type, COALESCE(ref_id, 0), note, COALESCE(actor_id, 0), created_at
		FROM inventory_movements
		WHERE stock_item_id=$1
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at, id
		LIMIT $4`, filter.StockItemID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("inventory: stock card: %w", err)
	}
	defer rows.Close()

	var out []Movement
	for rows.Next() {
		var m Movement
		var mt string
		if err := rows.Scan(&m.ID, &m.StockItemID, &mt, &m.Delta, &m.BalanceAfter, &m.RefType, &m.RefID, &m.Note, &m.ActorID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Type = MovementType(mt)
		out = append(out, m)
	}
	return out, rows.Err()
}

// StockLevels returns the current quantity of every item ordered by id.
func (r *Repository) StockLevels(ctx context.Context, lowOnly bool) ([]StockLevel, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, quantity, reorder_level, expiry_date
		FROM stock_items
		WHERE NOT $1::boolean OR quantity <= reorder_level
		ORDER BY id`, lowOnly)
	if err != nil {
		return nil, fmt.Errorf("inventory: stock levels: %w", err)
	}
	defer rows.Close()

	var out []StockLevel
	for rows.Next() {
		var l StockLevel
		if err := rows.Scan(&l.StockItemID, &l.Name, &l.Quantity, &l.ReorderLevel, &l.ExpiryDate); err != nil {
			return nil, err
		}
		l.LowStock = l.Quantity <= l.ReorderLevel
		out = append(out, l)
	}
	return out, rows.Err()
}

// TxStore implements TxRepository on a pgx transaction. Other packages embed it to lock
// and move stock inside their own transactions.
type TxStore struct {
	tx pgx.Tx
}

// NewTxStore wraps tx.
func NewTxStore(tx pgx.Tx) *TxStore {
	return &TxStore{tx: tx}
}

// Tx exposes the underlying transaction.
func (s *TxStore) Tx() pgx.Tx {
	return s.tx
}

// LockItem reads a stock item with FOR UPDATE.
func (s *TxStore) LockItem(ctx context.Context, id int64) (StockItem, error) {
	row := s.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM stock_items WHERE id=$1 FOR UPDATE`, id)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockItem{}, ErrNotFound
	}
	return item, err
}

// AdjustQuantity applies delta guarded by the non-negative condition and returns the new quantity.
func (s *TxStore) AdjustQuantity(ctx context.Context, id, delta int64) (int64, error) {
	var qty int64
	err := s.tx.QueryRow(ctx, `UPDATE stock_items SET quantity = quantity + $1, updated_at = NOW()
		WHERE id=$2 AND quantity + $1 >= 0
		RETURNING quantity`, delta, id).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrInsufficientStock
	}
	if err != nil {
		return 0, fmt.Errorf("inventory: adjust quantity: %w", err)
	}
	return qty, nil
}

// InsertMovement appends a stock card line.
func (s *TxStore) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	err := s.tx.QueryRow(ctx, `INSERT INTO inventory_movements (stock_item_id, movement_type, delta, balance_after, ref_type, ref_id, note, actor_id)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, 0), $7, NULLIF($8, 0))
		RETURNING id, created_at`,
		m.StockItemID, string(m.Type), m.Delta, m.BalanceAfter, m.RefType, m.RefID, m.Note, m.ActorID).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return Movement{}, fmt.Errorf("inventory: insert movement: %w", err)
	}
	return m, nil
}

// InsertItem creates a stock item.
func (s *TxStore) InsertItem(ctx context.Context, item StockItem) (StockItem, error) {
	row := s.tx.QueryRow(ctx, `INSERT INTO stock_items (name, generic_name, manufacturer, category, invoice_number, quantity, unit_price, sell_price,
			requires_prescription, reorder_level, expiry_date, supplier_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULLIF($13, 0))
		RETURNING `+itemColumns,
		item.Name, item.GenericName, item.Manufacturer, item.Category, item.InvoiceNumber, item.Quantity, item.UnitPrice, item.SellPrice,
		item.RequiresPrescription, item.ReorderLevel, item.ExpiryDate, item.SupplierID, item.CreatedBy)
	created, err := scanItem(row)
	if err != nil {
		if db.IsUniqueViolation(err, invoiceConstraint) {
			return StockItem{}, ErrDuplicateInvoice
		}
		return StockItem{}, fmt.Errorf("inventory: insert item: %w", err)
	}
	return created, nil
}

// UpdateItem overwrites descriptive fields.
func (s *TxStore) UpdateItem(ctx context.Context, id int64, in UpdateInput) (StockItem, error) {
	row := s.tx.QueryRow(ctx, `UPDATE stock_items SET name=$1, generic_name=$2, manufacturer=$3, category=$4, unit_price=$5, sell_price=$6,
			requires_prescription=$7, reorder_level=$8, expiry_date=$9, supplier_id=$10, updated_at=NOW()
		WHERE id=$11
		RETURNING `+itemColumns,
		in.Name, in.GenericName, in.Manufacturer, in.Category, in.UnitPrice, in.SellPrice,
		in.RequiresPrescription, in.ReorderLevel, in.ExpiryDate, in.SupplierID, id)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockItem{}, ErrNotFound
	}
	return item, err
}

// CountReferences counts sales, returns and credits pointing at the item.
func (s *TxStore) CountReferences(ctx context.Context, id int64) (int, error) {
	var n int
	err := s.tx.QueryRow(ctx, `SELECT
		(SELECT COUNT(*) FROM sales WHERE stock_item_id=$1) +
		(SELECT COUNT(*) FROM sale_returns WHERE stock_item_id=$1) +
		(SELECT COUNT(*) FROM credit_records WHERE stock_item_id=$1)`, id).Scan(&n)
	return n, err
}

// DeleteItem removes the item and its stock card.
func (s *TxStore) DeleteItem(ctx context.Context, id int64) error {
	tag, err := s.tx.Exec(ctx, `DELETE FROM stock_items WHERE id=$1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (StockItem, error) {
	var it StockItem
	err := row.Scan(&it.ID, &it.Name, &it.GenericName, &it.Manufacturer, &it.Category, &it.InvoiceNumber, &it.Quantity,
		&it.UnitPrice, &it.SellPrice, &it.RequiresPrescription, &it.ReorderLevel, &it.ExpiryDate, &it.SupplierID,
		&it.CreatedBy, &it.CreatedAt, &it.UpdatedAt)
	return it, err
}

func sortOrder(sortBy string, desc bool) string {
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	switch sortBy {
	case "quantity":
		return "quantity " + dir + ", id"
	case "expiry_date":
		return "expiry_date " + dir + " NULLS LAST, id"
	case "created_at":
		return "created_at " + dir + ", id"
	default:
		return "name " + dir + ", id"
	}
}
