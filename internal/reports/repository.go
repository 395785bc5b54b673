package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// RepositoryPort exposes the sales reads used by Service.
type RepositoryPort interface {
	SaleRows(ctx context.Context, r Range) ([]SaleRow, error)
	SalesTotals(ctx context.Context, r Range) (int, decimal.Decimal, error)
}

// Repository reads sales from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

const netSales = `
	FROM sales s
	JOIN stock_items i ON i.id = s.stock_item_id
	LEFT JOIN (
		SELECT sale_id, SUM(quantity) AS qty, SUM(refund_amount) AS refund
		FROM sale_returns GROUP BY sale_id
	) r ON r.sale_id = s.id
	WHERE ($1::timestamptz IS NULL OR s.sale_date >= $1)
	  AND ($2::timestamptz IS NULL OR s.sale_date < $2)`

// SaleRows returns each sale in range net of returns, in insertion order.
func (r *Repository) SaleRows(ctx context.Context, rng Range) ([]SaleRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT s.id, s.stock_item_id, i.name,
		s.quantity - COALESCE(r.qty, 0), s.total_amount - COALESCE(r.refund, 0)`+netSales+`
	ORDER BY s.id`, bound(rng.From), bound(rng.To))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SaleRow
	for rows.Next() {
		var row SaleRow
		if err := rows.Scan(&row.SaleID, &row.StockItemID, &row.Name, &row.Quantity, &row.Amount); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// SalesTotals counts sales in range and sums their net revenue.
func (r *Repository) SalesTotals(ctx context.Context, rng Range) (int, decimal.Decimal, error) {
	var count int
	var revenue decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(s.total_amount - COALESCE(r.refund, 0)), 0)`+netSales,
		bound(rng.From), bound(rng.To)).Scan(&count, &revenue)
	return count, revenue, err
}

func bound(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}
