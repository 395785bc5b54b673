// Package expenses records operating costs (rent, utilities, wages) that net
// against sales revenue on the dashboard.
package expenses

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pharmaops/pharmaops/internal/shared"
)

// Expense is one operating cost entry.
type Expense struct {
	ID          int64           `json:"id"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	ExpenseDate time.Time       `json:"expense_date"`
	CreatedBy   int64           `json:"created_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Input carries the editable fields of an expense.
type Input struct {
	Category    string          `json:"category" validate:"required,max=100"`
	Description string          `json:"description" validate:"max=500"`
	Amount      decimal.Decimal `json:"amount"`
	ExpenseDate *time.Time      `json:"expense_date"`
}

// ListFilters narrows List results. To is exclusive.
type ListFilters struct {
	From     time.Time
	To       time.Time
	Category string
	Page     int
	PerPage  int
}

// Page is a list result with the sum over the whole filter.
type Page struct {
	Data       []Expense         `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
	Total      decimal.Decimal   `json:"total"`
}

var (
	// ErrNotFound indicates a missing expense.
	ErrNotFound = fmt.Errorf("expenses: expense %w", shared.ErrNotFound)
	// ErrInvalidAmount rejects zero or negative amounts.
	ErrInvalidAmount = fmt.Errorf("expenses: amount must be positive: %w", shared.ErrInvalidAmount)
	// ErrCategoryRequired rejects blank categories.
	ErrCategoryRequired = fmt.Errorf("expenses: category required: %w", shared.ErrValidation)
)

func (in Input) normalize(now time.Time) (Input, error) {
	in.Category = strings.ToLower(strings.TrimSpace(in.Category))
	in.Description = strings.TrimSpace(in.Description)
	if in.Category == "" {
		return Input{}, ErrCategoryRequired
	}
	if !in.Amount.IsPositive() {
		return Input{}, ErrInvalidAmount
	}
	if in.ExpenseDate == nil || in.ExpenseDate.IsZero() {
		d := now.UTC()
		in.ExpenseDate = &d
	}
	return in, nil
}
