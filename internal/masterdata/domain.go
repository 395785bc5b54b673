// Package masterdata manages the customer and supplier directories.
package masterdata

import (
	"fmt"
	"time"

	"github.com/pharmaops/pharmaops/internal/shared"
)

// Directory describes one counterparty table.
type Directory struct {
	// Name is the singular noun used in logs and audit entries.
	Name string
	// Table is the backing table.
	Table string
	// CreditKind matches credit_records.kind for rows owned by this directory.
	CreditKind string
}

var (
	// Customers is the directory of buyers.
	Customers = Directory{Name: "customer", Table: "customers", CreditKind: "CUSTOMER"}
	// Suppliers is the directory of vendors.
	Suppliers = Directory{Name: "supplier", Table: "suppliers", CreditKind: "SUPPLIER"}
)

// Party is a customer or supplier record.
type Party struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PartyInput carries create and update payloads.
type PartyInput struct {
	Name    string `json:"name" validate:"required,max=200"`
	Phone   string `json:"phone" validate:"max=40"`
	Email   string `json:"email" validate:"omitempty,email,max=200"`
	Address string `json:"address" validate:"max=500"`
}

// ListFilters narrows directory listings.
type ListFilters struct {
	Search  string
	Page    int
	PerPage int
}

var (
	// ErrNotFound indicates a missing counterparty.
	ErrNotFound = fmt.Errorf("masterdata: counterparty %w", shared.ErrNotFound)
	// ErrInUse indicates the counterparty still owns credit records.
	ErrInUse = fmt.Errorf("masterdata: counterparty has credit records: %w", shared.ErrConflict)
	// ErrNameRequired indicates a blank name.
	ErrNameRequired = fmt.Errorf("masterdata: name is required: %w", shared.ErrValidation)
)
