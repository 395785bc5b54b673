package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pharmaops/pharmaops/internal/identifier"
	"github.com/pharmaops/pharmaops/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (StockItem, error)
	List(ctx context.Context, filters ListFilters) ([]StockItem, int, error)
	InvoiceExists(ctx context.Context, invoice string) (bool, error)
	StockCard(ctx context.Context, filter StockCardFilter) ([]Movement, error)
	StockLevels(ctx context.Context, lowOnly bool) ([]StockLevel, error)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	InvoiceMaxAttempts int
	// DefaultReorderLevel applies when a new item omits its reorder level.
	DefaultReorderLevel int64
}

// Service coordinates stock item operations.
type Service struct {
	repo      RepositoryPort
	audit     shared.AuditRecorder
	logger    *slog.Logger
	generator *identifier.Generator
	reorder   int64
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, logger *slog.Logger, cfg ServiceConfig, opts ...identifier.Option) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]identifier.Option{identifier.WithMaxAttempts(cfg.InvoiceMaxAttempts)}, opts...)
	return &Service{
		repo:      repo,
		audit:     audit,
		logger:    logger,
		generator: identifier.New(repo.InvoiceExists, opts...),
		reorder:   cfg.DefaultReorderLevel,
	}
}

// Create registers a stock item with a freshly generated invoice number.
func (s *Service) Create(ctx context.Context, input CreateInput, actorID int64) (StockItem, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return StockItem{}, fmt.Errorf("inventory: name required: %w", shared.ErrValidation)
	}
	if input.Quantity < 0 {
		return StockItem{}, ErrInvalidQuantity
	}
	if err := validatePrices(input.UnitPrice, input.SellPrice); err != nil {
		return StockItem{}, err
	}
	reorder := s.reorder
	if input.ReorderLevel != nil {
		if *input.ReorderLevel < 0 {
			return StockItem{}, fmt.Errorf("inventory: reorder level must be >= 0: %w", shared.ErrValidation)
		}
		reorder = *input.ReorderLevel
	}

	var created StockItem
	for attempt := 0; attempt < s.generator.MaxAttempts(); attempt++ {
		invoice, err := s.generator.Generate(ctx)
		if err != nil {
			return StockItem{}, err
		}
		item := StockItem{
			Name:                 input.Name,
			GenericName:          strings.TrimSpace(input.GenericName),
			Manufacturer:         strings.TrimSpace(input.Manufacturer),
			Category:             strings.TrimSpace(input.Category),
			InvoiceNumber:        invoice,
			Quantity:             input.Quantity,
			UnitPrice:            input.UnitPrice,
			SellPrice:            input.SellPrice,
			RequiresPrescription: input.RequiresPrescription,
			ReorderLevel:         reorder,
			ExpiryDate:           input.ExpiryDate,
			SupplierID:           input.SupplierID,
			CreatedBy:            actorID,
		}
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			created, err = tx.InsertItem(ctx, item)
			if err != nil {
				return err
			}
			if created.Quantity == 0 {
				return nil
			}
			_, err = tx.InsertMovement(ctx, Movement{
				StockItemID:  created.ID,
				Type:         MovementOpening,
				Delta:        created.Quantity,
				BalanceAfter: created.Quantity,
				RefType:      "stock_item",
				RefID:        created.ID,
				ActorID:      actorID,
			})
			return err
		})
		if errors.Is(err, ErrDuplicateInvoice) {
			s.logger.Warn("invoice number collided on insert", slog.String("invoice_number", invoice))
			continue
		}
		if err != nil {
			return StockItem{}, err
		}
		s.record(ctx, actorID, "inventory:create", created.ID, map[string]any{
			"invoice_number": created.InvoiceNumber,
			"quantity":       created.Quantity,
		})
		return created, nil
	}
	return StockItem{}, identifier.ErrExhaustedRetries
}

// Get returns one stock item.
func (s *Service) Get(ctx context.Context, id int64) (StockItem, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of stock items.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]StockItem, shared.Pagination, error) {
	filters.Page, filters.PerPage = shared.NormalizePage(filters.Page, filters.PerPage)
	items, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filters.Page, filters.PerPage, total), nil
}

// Update edits descriptive fields and prices.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput, actorID int64) (StockItem, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return StockItem{}, fmt.Errorf("inventory: name required: %w", shared.ErrValidation)
	}
	if err := validatePrices(input.UnitPrice, input.SellPrice); err != nil {
		return StockItem{}, err
	}
	var updated StockItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockItem(ctx, id); err != nil {
			return err
		}
		var err error
		updated, err = tx.UpdateItem(ctx, id, input)
		return err
	})
	if err != nil {
		return StockItem{}, err
	}
	s.record(ctx, actorID, "inventory:update", id, map[string]any{"name": updated.Name})
	return updated, nil
}

// Restock posts a positive delivery.
func (s *Service) Restock(ctx context.Context, input AdjustmentInput) (Movement, error) {
	if input.Quantity <= 0 {
		return Movement{}, ErrInvalidQuantity
	}
	return s.postMovement(ctx, MovementRestock, input)
}

// Adjust posts a signed manual correction.
func (s *Service) Adjust(ctx context.Context, input AdjustmentInput) (Movement, error) {
	if input.Quantity == 0 {
		return Movement{}, ErrInvalidQuantity
	}
	if strings.TrimSpace(input.Note) == "" {
		return Movement{}, fmt.Errorf("inventory: adjustment note required: %w", shared.ErrValidation)
	}
	return s.postMovement(ctx, MovementAdjust, input)
}

func (s *Service) postMovement(ctx context.Context, kind MovementType, input AdjustmentInput) (Movement, error) {
	var posted Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.LockItem(ctx, input.StockItemID)
		if err != nil {
			return err
		}
		if _, err := ApplyDelta(item.Quantity, input.Quantity); err != nil {
			return err
		}
		balance, err := tx.AdjustQuantity(ctx, item.ID, input.Quantity)
		if err != nil {
			return err
		}
		posted, err = tx.InsertMovement(ctx, Movement{
			StockItemID:  item.ID,
			Type:         kind,
			Delta:        input.Quantity,
			BalanceAfter: balance,
			Note:         input.Note,
			ActorID:      input.ActorID,
		})
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	s.record(ctx, input.ActorID, "inventory:"+strings.ToLower(string(kind)), input.StockItemID, map[string]any{
		"delta":   input.Quantity,
		"balance": posted.BalanceAfter,
		"note":    input.Note,
	})
	return posted, nil
}

// Delete removes a stock item that nothing references.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockItem(ctx, id); err != nil {
			return err
		}
		refs, err := tx.CountReferences(ctx, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return ErrInUse
		}
		return tx.DeleteItem(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "inventory:delete", id, nil)
	return nil
}

// StockCard lists movements for an item.
func (s *Service) StockCard(ctx context.Context, filter StockCardFilter) ([]Movement, error) {
	if filter.StockItemID <= 0 {
		return nil, fmt.Errorf("inventory: stock item required: %w", shared.ErrValidation)
	}
	if _, err := s.repo.Get(ctx, filter.StockItemID); err != nil {
		return nil, err
	}
	return s.repo.StockCard(ctx, filter)
}

// StockLevels returns current quantities, optionally only those at or below reorder level.
func (s *Service) StockLevels(ctx context.Context, lowOnly bool) ([]StockLevel, error) {
	return s.repo.StockLevels(ctx, lowOnly)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_item",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
