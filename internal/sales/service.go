package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pharmaops/pharmaops/internal/inventory"
	"github.com/pharmaops/pharmaops/internal/shared"
)

// idempotencyModule namespaces sale request keys.
const idempotencyModule = "sales"

// Invalidator drops cached aggregates derived from sales.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Recorder observes sale outcomes.
type Recorder interface {
	ObserveSale(outcome string)
}

// Dependencies groups optional collaborators of Service.
type Dependencies struct {
	Audit       shared.AuditRecorder
	Idempotency shared.IdempotencyGuard
	Invalidator Invalidator
	Metrics     Recorder
	Logger      *slog.Logger
}

// Service applies stock-changing sale operations.
type Service struct {
	repo        RepositoryPort
	audit       shared.AuditRecorder
	idempotency shared.IdempotencyGuard
	invalidator Invalidator
	metrics     Recorder
	logger      *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, deps Dependencies) *Service {
	s := &Service{
		repo:        repo,
		audit:       deps.Audit,
		idempotency: deps.Idempotency,
		invalidator: deps.Invalidator,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
	}
	if s.audit == nil {
		s.audit = shared.NopAudit{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Sell decrements stock and records the sale atomically. A non-empty idempotencyKey
// rejects replays of the same request.
func (s *Service) Sell(ctx context.Context, input SellInput, actorID int64, idempotencyKey string) (Sale, error) {
	if input.Quantity <= 0 {
		s.observe(ErrInvalidQuantity)
		return Sale{}, ErrInvalidQuantity
	}
	if input.StockItemID <= 0 {
		return Sale{}, fmt.Errorf("sales: stock item required: %w", shared.ErrValidation)
	}

	if idempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, idempotencyKey, idempotencyModule); err != nil {
			return Sale{}, err
		}
	}

	var sale Sale
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.LockItem(ctx, input.StockItemID)
		if err != nil {
			return err
		}
		if item.RequiresPrescription && strings.TrimSpace(input.PrescriptionRef) == "" {
			return ErrPrescriptionRequired
		}
		if _, err := inventory.ApplyDelta(item.Quantity, -input.Quantity); err != nil {
			return err
		}
		balance, err := tx.AdjustQuantity(ctx, item.ID, -input.Quantity)
		if err != nil {
			return err
		}
		draft := Sale{
			StockItemID:     item.ID,
			StockItemName:   item.Name,
			CustomerID:      input.CustomerID,
			Quantity:        input.Quantity,
			Price:           item.SellPrice,
			TotalAmount:     LineTotal(input.Quantity, item.SellPrice),
			PrescriptionRef: strings.TrimSpace(input.PrescriptionRef),
			Note:            strings.TrimSpace(input.Note),
			CreatedBy:       actorID,
		}
		if input.SaleDate != nil {
			draft.SaleDate = input.SaleDate.UTC()
		}
		sale, err = tx.InsertSale(ctx, draft)
		if err != nil {
			return err
		}
		sale.RemainingStock = &balance
		_, err = tx.InsertMovement(ctx, inventory.Movement{
			StockItemID:  item.ID,
			Type:         inventory.MovementSale,
			Delta:        -input.Quantity,
			BalanceAfter: balance,
			RefType:      "sale",
			RefID:        sale.ID,
			ActorID:      actorID,
		})
		return err
	})
	s.observe(err)
	if err != nil {
		if idempotencyKey != "" && s.idempotency != nil {
			if delErr := s.idempotency.Delete(ctx, idempotencyKey, idempotencyModule); delErr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		return Sale{}, err
	}
	s.afterWrite(ctx, actorID, "sales:create", "sale", sale.ID, map[string]any{
		"stock_item_id": sale.StockItemID,
		"quantity":      sale.Quantity,
		"total_amount":  sale.TotalAmount.String(),
	})
	return sale, nil
}

// Edit changes the sold quantity, moving only the delta in stock.
func (s *Service) Edit(ctx context.Context, saleID int64, input EditInput, actorID int64) (Sale, error) {
	if input.Quantity <= 0 {
		return Sale{}, ErrInvalidQuantity
	}
	var (
		updated Sale
		delta   int64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.LockSale(ctx, saleID)
		if err != nil {
			return err
		}
		if input.Quantity < sale.ReturnedQuantity {
			return fmt.Errorf("%w: quantity below returned %d", ErrInvalidQuantity, sale.ReturnedQuantity)
		}
		item, err := tx.LockItem(ctx, sale.StockItemID)
		if err != nil {
			return err
		}
		delta = input.Quantity - sale.Quantity
		balance := item.Quantity
		if delta != 0 {
			if _, err := inventory.ApplyDelta(item.Quantity, -delta); err != nil {
				return err
			}
			balance, err = tx.AdjustQuantity(ctx, item.ID, -delta)
			if err != nil {
				return err
			}
			if _, err := tx.InsertMovement(ctx, inventory.Movement{
				StockItemID:  item.ID,
				Type:         inventory.MovementSaleEdit,
				Delta:        -delta,
				BalanceAfter: balance,
				RefType:      "sale",
				RefID:        sale.ID,
				ActorID:      actorID,
			}); err != nil {
				return err
			}
		}
		sale.Quantity = input.Quantity
		sale.TotalAmount = LineTotal(input.Quantity, sale.Price)
		if input.Note != nil {
			sale.Note = strings.TrimSpace(*input.Note)
		}
		updated, err = tx.UpdateSale(ctx, sale)
		if err != nil {
			return err
		}
		updated.RemainingStock = &balance
		return nil
	})
	if err != nil {
		return Sale{}, err
	}
	s.afterWrite(ctx, actorID, "sales:edit", "sale", saleID, map[string]any{
		"quantity": updated.Quantity,
		"delta":    delta,
	})
	return updated, nil
}

// Delete removes a sale and restores its quantity to stock.
func (s *Service) Delete(ctx context.Context, saleID, actorID int64) error {
	var restored int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.LockSale(ctx, saleID)
		if err != nil {
			return err
		}
		if sale.ReturnedQuantity > 0 {
			return ErrHasReturns
		}
		item, err := tx.LockItem(ctx, sale.StockItemID)
		if err != nil {
			return err
		}
		balance, err := tx.AdjustQuantity(ctx, item.ID, sale.Quantity)
		if err != nil {
			return err
		}
		if err := tx.DeleteSale(ctx, sale.ID); err != nil {
			return err
		}
		restored = sale.Quantity
		_, err = tx.InsertMovement(ctx, inventory.Movement{
			StockItemID:  item.ID,
			Type:         inventory.MovementSaleDelete,
			Delta:        sale.Quantity,
			BalanceAfter: balance,
			RefType:      "sale",
			RefID:        sale.ID,
			ActorID:      actorID,
		})
		return err
	})
	if err != nil {
		return err
	}
	s.afterWrite(ctx, actorID, "sales:delete", "sale", saleID, map[string]any{"restored": restored})
	return nil
}

// Get returns one sale.
func (s *Service) Get(ctx context.Context, id int64) (Sale, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of sales.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Sale, shared.Pagination, error) {
	filters.Page, filters.PerPage = shared.NormalizePage(filters.Page, filters.PerPage)
	out, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return out, shared.NewPagination(filters.Page, filters.PerPage, total), nil
}

// CreateReturn puts returned quantity back into stock.
func (s *Service) CreateReturn(ctx context.Context, input ReturnInput, actorID int64) (Return, error) {
	if input.Quantity <= 0 {
		return Return{}, ErrInvalidQuantity
	}
	var created Return
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.LockSale(ctx, input.SaleID)
		if err != nil {
			return err
		}
		if returnable := sale.Quantity - sale.ReturnedQuantity; input.Quantity > returnable {
			return fmt.Errorf("%w: only %d returnable", ErrInvalidQuantity, returnable)
		}
		item, err := tx.LockItem(ctx, sale.StockItemID)
		if err != nil {
			return err
		}
		balance, err := tx.AdjustQuantity(ctx, item.ID, input.Quantity)
		if err != nil {
			return err
		}
		created, err = tx.InsertReturn(ctx, Return{
			SaleID:       sale.ID,
			StockItemID:  item.ID,
			Quantity:     input.Quantity,
			RefundAmount: LineTotal(input.Quantity, sale.Price),
			Reason:       strings.TrimSpace(input.Reason),
			CreatedBy:    actorID,
		})
		if err != nil {
			return err
		}
		_, err = tx.InsertMovement(ctx, inventory.Movement{
			StockItemID:  item.ID,
			Type:         inventory.MovementReturn,
			Delta:        input.Quantity,
			BalanceAfter: balance,
			RefType:      "sale_return",
			RefID:        created.ID,
			ActorID:      actorID,
		})
		return err
	})
	if err != nil {
		return Return{}, err
	}
	s.afterWrite(ctx, actorID, "returns:create", "sale_return", created.ID, map[string]any{
		"sale_id":  created.SaleID,
		"quantity": created.Quantity,
	})
	return created, nil
}

// DeleteReturn reverses a return, taking its quantity out of stock again.
func (s *Service) DeleteReturn(ctx context.Context, returnID, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ret, err := tx.LockReturn(ctx, returnID)
		if err != nil {
			return err
		}
		if _, err := tx.LockSale(ctx, ret.SaleID); err != nil {
			return err
		}
		item, err := tx.LockItem(ctx, ret.StockItemID)
		if err != nil {
			return err
		}
		if _, err := inventory.ApplyDelta(item.Quantity, -ret.Quantity); err != nil {
			return err
		}
		balance, err := tx.AdjustQuantity(ctx, item.ID, -ret.Quantity)
		if err != nil {
			return err
		}
		if err := tx.DeleteReturn(ctx, ret.ID); err != nil {
			return err
		}
		_, err = tx.InsertMovement(ctx, inventory.Movement{
			StockItemID:  item.ID,
			Type:         inventory.MovementReturnDelete,
			Delta:        -ret.Quantity,
			BalanceAfter: balance,
			RefType:      "sale_return",
			RefID:        ret.ID,
			ActorID:      actorID,
		})
		return err
	})
	if err != nil {
		return err
	}
	s.afterWrite(ctx, actorID, "returns:delete", "sale_return", returnID, nil)
	return nil
}

// ListReturns returns a page of returns.
func (s *Service) ListReturns(ctx context.Context, filters ListFilters) ([]Return, shared.Pagination, error) {
	filters.Page, filters.PerPage = shared.NormalizePage(filters.Page, filters.PerPage)
	out, total, err := s.repo.ListReturns(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return out, shared.NewPagination(filters.Page, filters.PerPage, total), nil
}

func (s *Service) afterWrite(ctx context.Context, actorID int64, action, entity string, id int64, meta map[string]any) {
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx); err != nil {
			s.logger.Warn("invalidate sales aggregates", slog.Any("error", err))
		}
	}
}

func (s *Service) observe(err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveSale(Outcome(err))
}

// Outcome labels a sale result for metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, shared.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, shared.ErrPrescriptionRequired):
		return "prescription_required"
	case errors.Is(err, shared.ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
