package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pharmaops/pharmaops/internal/shared"
)

// MovementType enumerates quantity changes recorded on the stock card.
type MovementType string

const (
	// MovementOpening records the quantity a stock item was created with.
	MovementOpening MovementType = "OPENING"
	// MovementRestock records a positive delivery.
	MovementRestock MovementType = "RESTOCK"
	// MovementAdjust records a manual signed correction.
	MovementAdjust MovementType = "ADJUST"
	// MovementSale records a sale decrement.
	MovementSale MovementType = "SALE"
	// MovementSaleEdit records the delta of an edited sale.
	MovementSaleEdit MovementType = "SALE_EDIT"
	// MovementSaleDelete records stock restored by deleting a sale.
	MovementSaleDelete MovementType = "SALE_DELETE"
	// MovementReturn records stock restored by a customer return.
	MovementReturn MovementType = "RETURN"
	// MovementReturnDelete records the reversal of a return.
	MovementReturnDelete MovementType = "RETURN_DELETE"
)

// StockItem is a sellable medicine with its on-hand quantity.
type StockItem struct {
	ID                   int64           `json:"id"`
	Name                 string          `json:"name"`
	GenericName          string          `json:"generic_name"`
	Manufacturer         string          `json:"manufacturer"`
	Category             string          `json:"category"`
	InvoiceNumber        string          `json:"invoice_number"`
	Quantity             int64           `json:"quantity"`
	UnitPrice            decimal.Decimal `json:"unit_price"`
	SellPrice            decimal.Decimal `json:"sell_price"`
	RequiresPrescription bool            `json:"requires_prescription"`
	ReorderLevel         int64           `json:"reorder_level"`
	ExpiryDate           *time.Time      `json:"expiry_date,omitempty"`
	SupplierID           *int64          `json:"supplier_id,omitempty"`
	CreatedBy            int64           `json:"created_by,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// LowStock reports whether the item is at or below its reorder level.
func (s StockItem) LowStock() bool {
	return s.Quantity <= s.ReorderLevel
}

// Movement is one stock card line.
type Movement struct {
	ID           int64        `json:"id"`
	StockItemID  int64        `json:"stock_item_id"`
	Type         MovementType `json:"type"`
	Delta        int64        `json:"delta"`
	BalanceAfter int64        `json:"balance_after"`
	RefType      string       `json:"ref_type,omitempty"`
	RefID        int64        `json:"ref_id,omitempty"`
	Note         string       `json:"note,omitempty"`
	ActorID      int64        `json:"actor_id,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// StockLevel is the report view of a stock item.
type StockLevel struct {
	StockItemID  int64      `json:"stock_item_id"`
	Name         string     `json:"name"`
	Quantity     int64      `json:"quantity"`
	ReorderLevel int64      `json:"reorder_level"`
	LowStock     bool       `json:"low_stock"`
	ExpiryDate   *time.Time `json:"expiry_date,omitempty"`
}

// CreateInput describes a new stock item.
type CreateInput struct {
	Name                 string          `json:"name" validate:"required,max=200"`
	GenericName          string          `json:"generic_name" validate:"max=200"`
	Manufacturer         string          `json:"manufacturer" validate:"max=200"`
	Category             string          `json:"category" validate:"max=100"`
	Quantity             int64           `json:"quantity" validate:"gte=0"`
	UnitPrice            decimal.Decimal `json:"unit_price"`
	SellPrice            decimal.Decimal `json:"sell_price"`
	RequiresPrescription bool            `json:"requires_prescription"`
	ReorderLevel         *int64          `json:"reorder_level" validate:"omitempty,gte=0"`
	ExpiryDate           *time.Time      `json:"expiry_date"`
	SupplierID           *int64          `json:"supplier_id" validate:"omitempty,gt=0"`
}

// UpdateInput describes editable descriptive fields. Quantity changes go through movements.
type UpdateInput struct {
	Name                 string          `json:"name" validate:"required,max=200"`
	GenericName          string          `json:"generic_name" validate:"max=200"`
	Manufacturer         string          `json:"manufacturer" validate:"max=200"`
	Category             string          `json:"category" validate:"max=100"`
	UnitPrice            decimal.Decimal `json:"unit_price"`
	SellPrice            decimal.Decimal `json:"sell_price"`
	RequiresPrescription bool            `json:"requires_prescription"`
	ReorderLevel         int64           `json:"reorder_level" validate:"gte=0"`
	ExpiryDate           *time.Time      `json:"expiry_date"`
	SupplierID           *int64          `json:"supplier_id" validate:"omitempty,gt=0"`
}

// AdjustmentInput is a restock (positive) or signed manual adjustment.
type AdjustmentInput struct {
	StockItemID int64  `json:"-"`
	Quantity    int64  `json:"quantity"`
	Note        string `json:"note" validate:"max=500"`
	ActorID     int64  `json:"-"`
}

// ListFilters narrows stock item listings.
type ListFilters struct {
	Search       string
	LowStockOnly bool
	Page         int
	PerPage      int
	SortBy       string
	SortDesc     bool
}

// StockCardFilter filters card entries.
type StockCardFilter struct {
	StockItemID int64
	From        time.Time
	To          time.Time
	Limit       int
}

var (
	// ErrNotFound indicates missing stock item.
	ErrNotFound = fmt.Errorf("inventory: stock item %w", shared.ErrNotFound)
	// ErrInsufficientStock triggered when a movement would result in negative quantity.
	ErrInsufficientStock = fmt.Errorf("inventory: %w", shared.ErrInsufficientStock)
	// ErrInvalidQuantity indicates an invalid quantity.
	ErrInvalidQuantity = fmt.Errorf("inventory: %w", shared.ErrInvalidQuantity)
	// ErrInvalidPrice indicates a negative price.
	ErrInvalidPrice = fmt.Errorf("inventory: price must be >= 0: %w", shared.ErrInvalidAmount)
	// ErrInUse indicates the item is referenced by sales, returns or credits.
	ErrInUse = fmt.Errorf("inventory: stock item is referenced: %w", shared.ErrConflict)
	// ErrDuplicateInvoice signals an invoice number collision detected on insert.
	ErrDuplicateInvoice = fmt.Errorf("inventory: invoice number taken: %w", shared.ErrConflict)
)

// ApplyDelta returns the quantity after applying delta, refusing to go below zero.
func ApplyDelta(current, delta int64) (int64, error) {
	next := current + delta
	if next < 0 {
		return current, ErrInsufficientStock
	}
	return next, nil
}

func validatePrices(unit, sell decimal.Decimal) error {
	if unit.IsNegative() || sell.IsNegative() {
		return ErrInvalidPrice
	}
	return nil
}
