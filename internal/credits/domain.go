// Package credits keeps the ledger of credit extended to customers and received from suppliers.
package credits

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pharmaops/pharmaops/internal/shared"
)

// Kind distinguishes the counterparty side of a credit record.
type Kind string

const (
	KindCustomer Kind = "CUSTOMER"
	KindSupplier Kind = "SUPPLIER"
)

// ParseKind accepts the enum value or its plural route form.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "customer", "customers":
		return KindCustomer, nil
	case "supplier", "suppliers":
		return KindSupplier, nil
	default:
		return "", fmt.Errorf("credits: unknown counterparty kind %q: %w", raw, shared.ErrValidation)
	}
}

// Status is the payment state derived from paid versus credit amount.
type Status string

const (
	StatusUnpaid        Status = "UNPAID"
	StatusPartiallyPaid Status = "PARTIALLY_PAID"
	StatusPaid          Status = "PAID"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusUnpaid, StatusPartiallyPaid, StatusPaid:
		return true
	}
	return false
}

// Classify derives the status. Rules are evaluated in order: nothing paid is UNPAID,
// paid reaching the total is PAID, anything else is PARTIALLY_PAID.
func Classify(paid, total decimal.Decimal) Status {
	switch {
	case paid.IsZero():
		return StatusUnpaid
	case paid.GreaterThanOrEqual(total):
		return StatusPaid
	default:
		return StatusPartiallyPaid
	}
}

// Credit is one ledger entry.
type Credit struct {
	ID               int64           `json:"id"`
	Kind             Kind            `json:"kind"`
	CounterpartyID   int64           `json:"counterparty_id"`
	CounterpartyName string          `json:"counterparty_name,omitempty"`
	StockItemID      *int64          `json:"stock_item_id,omitempty"`
	CreditAmount     decimal.Decimal `json:"credit_amount"`
	PaidAmount       decimal.Decimal `json:"paid_amount"`
	UnpaidAmount     decimal.Decimal `json:"unpaid_amount"`
	Status           Status          `json:"status"`
	StatusOverridden bool            `json:"status_overridden"`
	CreditDate       time.Time       `json:"credit_date"`
	Note             string          `json:"note,omitempty"`
	PaymentFile      string          `json:"payment_file,omitempty"`
	CreatedBy        int64           `json:"created_by,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// withUnpaid fills the derived unpaid amount.
func (c Credit) withUnpaid() Credit {
	c.UnpaidAmount = c.CreditAmount.Sub(c.PaidAmount)
	return c
}

// Payment is one recorded change of the paid total.
type Payment struct {
	ID          int64           `json:"id"`
	CreditID    int64           `json:"credit_id"`
	Amount      decimal.Decimal `json:"amount"`
	PaidTotal   decimal.Decimal `json:"paid_total"`
	PaymentFile string          `json:"payment_file,omitempty"`
	PaidAt      time.Time       `json:"paid_at"`
	ActorID     int64           `json:"actor_id,omitempty"`
}

// IssueInput describes a new credit.
type IssueInput struct {
	CounterpartyID int64           `json:"counterparty_id" validate:"required,gt=0"`
	StockItemID    *int64          `json:"stock_item_id" validate:"omitempty,gt=0"`
	CreditAmount   decimal.Decimal `json:"credit_amount"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	CreditDate     *time.Time      `json:"credit_date"`
	Note           string          `json:"note" validate:"max=500"`
}

// PaymentInput sets the cumulative amount paid so far.
type PaymentInput struct {
	PaidAmount  decimal.Decimal `json:"paid_amount"`
	PaymentFile string          `json:"-"`
}

// UpdateInput edits a credit. Status applies only for principals allowed to override.
type UpdateInput struct {
	CreditAmount *decimal.Decimal `json:"credit_amount"`
	PaidAmount   *decimal.Decimal `json:"paid_amount"`
	CreditDate   *time.Time       `json:"credit_date"`
	Note         *string          `json:"note" validate:"omitempty,max=500"`
	Status       *Status          `json:"status"`
}

// ReportFilter selects ledger rows. To is exclusive.
type ReportFilter struct {
	Kind           Kind
	From           time.Time
	To             time.Time
	CounterpartyID int64
	Status         Status
	Page           int
	PerPage        int
}

// Totals sums a set of credits.
type Totals struct {
	TotalCredit  decimal.Decimal `json:"total_credit"`
	TotalPaid    decimal.Decimal `json:"total_paid"`
	TotalPending decimal.Decimal `json:"total_pending"`
}

// Report is a page of credits with page and grand totals.
type Report struct {
	Rows       []Credit          `json:"rows"`
	PageTotals Totals            `json:"page_totals"`
	Totals     Totals            `json:"totals"`
	Pagination shared.Pagination `json:"pagination"`
}

// Sum folds credits into totals.
func Sum(rows []Credit) Totals {
	t := Totals{TotalCredit: decimal.Zero, TotalPaid: decimal.Zero}
	for _, r := range rows {
		t.TotalCredit = t.TotalCredit.Add(r.CreditAmount)
		t.TotalPaid = t.TotalPaid.Add(r.PaidAmount)
	}
	t.TotalPending = t.TotalCredit.Sub(t.TotalPaid)
	return t
}

var (
	// ErrNotFound indicates a missing credit record.
	ErrNotFound = fmt.Errorf("credits: record %w", shared.ErrNotFound)
	// ErrCounterpartyNotFound indicates an unknown customer or supplier.
	ErrCounterpartyNotFound = fmt.Errorf("credits: counterparty %w", shared.ErrNotFound)
	// ErrInvalidAmount indicates a negative amount.
	ErrInvalidAmount = fmt.Errorf("credits: amounts must be >= 0: %w", shared.ErrInvalidAmount)
	// ErrStockItemNotFound indicates the credit references an unknown stock item.
	ErrStockItemNotFound = fmt.Errorf("credits: stock item %w", shared.ErrNotFound)
	// ErrOverrideForbidden indicates a status override without permission.
	ErrOverrideForbidden = fmt.Errorf("credits: status override not permitted: %w", shared.ErrForbidden)
	// ErrInvalidStatus indicates an unknown status value.
	ErrInvalidStatus = fmt.Errorf("credits: invalid status: %w", shared.ErrValidation)
)

func validateAmounts(credit, paid decimal.Decimal) error {
	if credit.IsNegative() || paid.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}
