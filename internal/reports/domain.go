// Package reports computes read-only summaries over sales and stock.
package reports

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pharmaops/pharmaops/internal/credits"
	"github.com/pharmaops/pharmaops/internal/inventory"
	"github.com/pharmaops/pharmaops/internal/shared"
)

// DefaultTopN is used when a caller does not ask for a ranking size.
const DefaultTopN = 5

const maxTopN = 100

// SaleRow is one sale net of its returns.
type SaleRow struct {
	SaleID      int64           `json:"sale_id"`
	StockItemID int64           `json:"stock_item_id"`
	Name        string          `json:"name"`
	Quantity    int64           `json:"quantity"`
	Amount      decimal.Decimal `json:"amount"`
}

// ItemTotal aggregates sales of one stock item.
type ItemTotal struct {
	StockItemID int64           `json:"stock_item_id"`
	Name        string          `json:"name"`
	TotalSales  int64           `json:"total_sales"`
	Revenue     decimal.Decimal `json:"revenue"`
}

// Range bounds a report. To is exclusive.
type Range struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Validate rejects inverted ranges.
func (r Range) Validate() error {
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return fmt.Errorf("reports: range end before start: %w", shared.ErrValidation)
	}
	return nil
}

// Summary is the aggregate view over a set of sales.
type Summary struct {
	Range         Range                  `json:"range"`
	SalesCount    int                    `json:"sales_count"`
	TotalQuantity int64                  `json:"total_quantity"`
	TotalRevenue  decimal.Decimal        `json:"total_revenue"`
	PerItem       []ItemTotal            `json:"per_item"`
	Top           []ItemTotal            `json:"top"`
	Bottom        []ItemTotal            `json:"bottom"`
	Stock         []inventory.StockLevel `json:"stock"`
}

// Summarize folds sale rows into per-item totals and rankings. The top list is ordered
// by total sales descending, the bottom list holds only items with sales, ascending.
// Equal totals are ordered by stock item id. Stock is passed through untouched.
func Summarize(rows []SaleRow, stock []inventory.StockLevel, n int) Summary {
	n = normalizeTopN(n)
	byItem := make(map[int64]*ItemTotal)
	out := Summary{TotalRevenue: decimal.Zero, Stock: stock}
	for _, row := range rows {
		out.SalesCount++
		out.TotalQuantity += row.Quantity
		out.TotalRevenue = out.TotalRevenue.Add(row.Amount)
		t, ok := byItem[row.StockItemID]
		if !ok {
			t = &ItemTotal{StockItemID: row.StockItemID, Name: row.Name, Revenue: decimal.Zero}
			byItem[row.StockItemID] = t
		}
		t.TotalSales += row.Quantity
		t.Revenue = t.Revenue.Add(row.Amount)
	}

	out.PerItem = make([]ItemTotal, 0, len(byItem))
	for _, t := range byItem {
		out.PerItem = append(out.PerItem, *t)
	}
	sort.Slice(out.PerItem, func(i, j int) bool { return out.PerItem[i].StockItemID < out.PerItem[j].StockItemID })

	desc := make([]ItemTotal, len(out.PerItem))
	copy(desc, out.PerItem)
	sort.SliceStable(desc, func(i, j int) bool { return desc[i].TotalSales > desc[j].TotalSales })
	out.Top = head(desc, n)

	asc := make([]ItemTotal, 0, len(out.PerItem))
	for _, t := range out.PerItem {
		if t.TotalSales > 0 {
			asc = append(asc, t)
		}
	}
	sort.SliceStable(asc, func(i, j int) bool { return asc[i].TotalSales < asc[j].TotalSales })
	out.Bottom = head(asc, n)
	return out
}

func head(items []ItemTotal, n int) []ItemTotal {
	if len(items) > n {
		items = items[:n]
	}
	return items
}

func normalizeTopN(n int) int {
	if n <= 0 {
		return DefaultTopN
	}
	if n > maxTopN {
		return maxTopN
	}
	return n
}

// Dashboard gathers headline counters.
type Dashboard struct {
	Range         Range                          `json:"range"`
	SalesCount    int                            `json:"sales_count"`
	Revenue       decimal.Decimal                `json:"revenue"`
	Expenses      decimal.Decimal                `json:"expenses"`
	NetRevenue    decimal.Decimal                `json:"net_revenue"`
	LowStockCount int                            `json:"low_stock_count"`
	Outstanding   map[credits.Kind]credits.Totals `json:"outstanding"`
}
