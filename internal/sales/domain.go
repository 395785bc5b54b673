package sales

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pharmaops/pharmaops/internal/shared"
)

// Sale records one stock item sold in one transaction.
type Sale struct {
	ID               int64           `json:"id"`
	StockItemID      int64           `json:"stock_item_id"`
	StockItemName    string          `json:"stock_item_name,omitempty"`
	CustomerID       *int64          `json:"customer_id,omitempty"`
	Quantity         int64           `json:"quantity"`
	ReturnedQuantity int64           `json:"returned_quantity"`
	Price            decimal.Decimal `json:"price"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	PrescriptionRef  string          `json:"prescription_ref,omitempty"`
	Note             string          `json:"note,omitempty"`
	SaleDate         time.Time       `json:"sale_date"`
	CreatedBy        int64           `json:"created_by,omitempty"`
	UpdatedAt        time.Time       `json:"updated_at"`
	RemainingStock   *int64          `json:"remaining_stock,omitempty"`
}

// Return records stock handed back against a sale.
type Return struct {
	ID           int64           `json:"id"`
	SaleID       int64           `json:"sale_id"`
	StockItemID  int64           `json:"stock_item_id"`
	Quantity     int64           `json:"quantity"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
	Reason       string          `json:"reason,omitempty"`
	ReturnedAt   time.Time       `json:"returned_at"`
	CreatedBy    int64           `json:"created_by,omitempty"`
}

// SellInput describes a new sale.
type SellInput struct {
	StockItemID     int64      `json:"stock_item_id" validate:"required,gt=0"`
	Quantity        int64      `json:"quantity"`
	CustomerID      *int64     `json:"customer_id" validate:"omitempty,gt=0"`
	PrescriptionRef string     `json:"prescription_ref" validate:"max=500"`
	Note            string     `json:"note" validate:"max=500"`
	SaleDate        *time.Time `json:"sale_date"`
}

// EditInput changes the sold quantity of an existing sale.
type EditInput struct {
	Quantity int64   `json:"quantity"`
	Note     *string `json:"note" validate:"omitempty,max=500"`
}

// ReturnInput describes stock handed back by a customer.
type ReturnInput struct {
	SaleID   int64  `json:"sale_id" validate:"required,gt=0"`
	Quantity int64  `json:"quantity"`
	Reason   string `json:"reason" validate:"max=500"`
}

// ListFilters narrows sale and return listings. To is exclusive.
type ListFilters struct {
	From        time.Time
	To          time.Time
	StockItemID int64
	CustomerID  int64
	SaleID      int64
	Page        int
	PerPage     int
}

var (
	// ErrNotFound indicates a missing sale.
	ErrNotFound = fmt.Errorf("sales: sale %w", shared.ErrNotFound)
	// ErrReturnNotFound indicates a missing return.
	ErrReturnNotFound = fmt.Errorf("sales: return %w", shared.ErrNotFound)
	// ErrCustomerNotFound indicates an unknown customer reference.
	ErrCustomerNotFound = fmt.Errorf("sales: customer %w", shared.ErrNotFound)
	// ErrInvalidQuantity indicates a non-positive quantity or one outside the returnable range.
	ErrInvalidQuantity = fmt.Errorf("sales: %w", shared.ErrInvalidQuantity)
	// ErrPrescriptionRequired indicates a prescription-only item sold without evidence.
	ErrPrescriptionRequired = fmt.Errorf("sales: %w", shared.ErrPrescriptionRequired)
	// ErrHasReturns indicates a sale cannot be deleted while returns reference it.
	ErrHasReturns = fmt.Errorf("sales: sale has returns: %w", shared.ErrConflict)
)

// LineTotal computes quantity × price.
func LineTotal(quantity int64, price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(quantity))
}
