package credits

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pharmaops/pharmaops/internal/shared"
)

// Service applies credit ledger operations.
type Service struct {
	repo   RepositoryPort
	audit  shared.AuditRecorder
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// Issue records new credit for a counterparty.
func (s *Service) Issue(ctx context.Context, kind Kind, input IssueInput, actorID int64) (Credit, error) {
	if err := validateAmounts(input.CreditAmount, input.PaidAmount); err != nil {
		return Credit{}, err
	}
	if input.CounterpartyID <= 0 {
		return Credit{}, fmt.Errorf("credits: counterparty required: %w", shared.ErrValidation)
	}

	var created Credit
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.CounterpartyExists(ctx, kind, input.CounterpartyID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCounterpartyNotFound
		}
		draft := Credit{
			Kind:           kind,
			CounterpartyID: input.CounterpartyID,
			StockItemID:    input.StockItemID,
			CreditAmount:   input.CreditAmount,
			PaidAmount:     input.PaidAmount,
			Status:         Classify(input.PaidAmount, input.CreditAmount),
			Note:           strings.TrimSpace(input.Note),
			CreatedBy:      actorID,
		}
		if input.CreditDate != nil {
			draft.CreditDate = input.CreditDate.UTC()
		}
		created, err = tx.InsertCredit(ctx, draft)
		if err != nil {
			return err
		}
		if created.PaidAmount.IsPositive() {
			_, err = tx.InsertPayment(ctx, Payment{
				CreditID:  created.ID,
				Amount:    created.PaidAmount,
				PaidTotal: created.PaidAmount,
				ActorID:   actorID,
			})
		}
		return err
	})
	if err != nil {
		return Credit{}, err
	}
	created = created.withUnpaid()
	s.record(ctx, actorID, "credits:issue", created, map[string]any{
		"credit_amount": created.CreditAmount.String(),
		"paid_amount":   created.PaidAmount.String(),
	})
	return created, nil
}

// RecordPayment sets the cumulative paid amount and recomputes the status in the same
// transaction. Any earlier manual status override is cleared.
func (s *Service) RecordPayment(ctx context.Context, kind Kind, id int64, input PaymentInput, actorID int64) (Credit, error) {
	if input.PaidAmount.IsNegative() {
		return Credit{}, ErrInvalidAmount
	}
	var updated Credit
	var delta decimal.Decimal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockCredit(ctx, kind, id)
		if err != nil {
			return err
		}
		if err := validateAmounts(current.CreditAmount, input.PaidAmount); err != nil {
			return err
		}
		delta = input.PaidAmount.Sub(current.PaidAmount)
		current.PaidAmount = input.PaidAmount
		current.Status = Classify(current.PaidAmount, current.CreditAmount)
		current.StatusOverridden = false
		if input.PaymentFile != "" {
			current.PaymentFile = input.PaymentFile
		}
		updated, err = tx.UpdateCredit(ctx, current)
		if err != nil {
			return err
		}
		_, err = tx.InsertPayment(ctx, Payment{
			CreditID:    id,
			Amount:      delta,
			PaidTotal:   input.PaidAmount,
			PaymentFile: input.PaymentFile,
			ActorID:     actorID,
		})
		return err
	})
	if err != nil {
		return Credit{}, err
	}
	updated = updated.withUnpaid()
	s.record(ctx, actorID, "credits:payment", updated, map[string]any{
		"paid_amount": updated.PaidAmount.String(),
		"delta":       delta.String(),
		"status":      string(updated.Status),
	})
	return updated, nil
}

// Update edits amounts, date or note. A supplied status is applied as a manual
// override when canOverride is set and rejected otherwise.
func (s *Service) Update(ctx context.Context, kind Kind, id int64, input UpdateInput, actorID int64, canOverride bool) (Credit, error) {
	if input.Status != nil {
		if !input.Status.Valid() {
			return Credit{}, ErrInvalidStatus
		}
		if !canOverride {
			return Credit{}, ErrOverrideForbidden
		}
	}
	var updated Credit
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockCredit(ctx, kind, id)
		if err != nil {
			return err
		}
		if input.CreditAmount != nil {
			current.CreditAmount = *input.CreditAmount
		}
		paidBefore := current.PaidAmount
		if input.PaidAmount != nil {
			current.PaidAmount = *input.PaidAmount
		}
		if err := validateAmounts(current.CreditAmount, current.PaidAmount); err != nil {
			return err
		}
		if input.CreditDate != nil {
			current.CreditDate = input.CreditDate.UTC()
		}
		if input.Note != nil {
			current.Note = strings.TrimSpace(*input.Note)
		}
		if input.Status != nil {
			current.Status = *input.Status
			current.StatusOverridden = true
		} else {
			current.Status = Classify(current.PaidAmount, current.CreditAmount)
			current.StatusOverridden = false
		}
		updated, err = tx.UpdateCredit(ctx, current)
		if err != nil {
			return err
		}
		if !current.PaidAmount.Equal(paidBefore) {
			_, err = tx.InsertPayment(ctx, Payment{
				CreditID:  id,
				Amount:    current.PaidAmount.Sub(paidBefore),
				PaidTotal: current.PaidAmount,
				ActorID:   actorID,
			})
		}
		return err
	})
	if err != nil {
		return Credit{}, err
	}
	updated = updated.withUnpaid()
	s.record(ctx, actorID, "credits:update", updated, map[string]any{
		"credit_amount":     updated.CreditAmount.String(),
		"paid_amount":       updated.PaidAmount.String(),
		"status":            string(updated.Status),
		"status_overridden": updated.StatusOverridden,
	})
	return updated, nil
}

// Delete removes a credit record.
func (s *Service) Delete(ctx context.Context, kind Kind, id, actorID int64) error {
	var removed Credit
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		removed, err = tx.LockCredit(ctx, kind, id)
		if err != nil {
			return err
		}
		return tx.DeleteCredit(ctx, kind, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "credits:delete", removed, map[string]any{
		"credit_amount": removed.CreditAmount.String(),
		"paid_amount":   removed.PaidAmount.String(),
	})
	return nil
}

// Get returns one credit.
func (s *Service) Get(ctx context.Context, kind Kind, id int64) (Credit, error) {
	return s.repo.Get(ctx, kind, id)
}

// Payments returns the payment history of a credit.
func (s *Service) Payments(ctx context.Context, kind Kind, id int64) ([]Payment, error) {
	if _, err := s.repo.Get(ctx, kind, id); err != nil {
		return nil, err
	}
	return s.repo.Payments(ctx, id)
}

// Report returns the filtered page plus page-scoped and grand totals.
func (s *Service) Report(ctx context.Context, filter ReportFilter) (Report, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return Report{}, ErrInvalidStatus
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return Report{}, fmt.Errorf("credits: date range end before start: %w", shared.ErrValidation)
	}
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	rows, total, grand, err := s.repo.Report(ctx, filter)
	if err != nil {
		return Report{}, err
	}
	if rows == nil {
		rows = []Credit{}
	}
	return Report{
		Rows:       rows,
		PageTotals: Sum(rows),
		Totals:     grand,
		Pagination: shared.NewPagination(filter.Page, filter.PerPage, total),
	}, nil
}

// Outstanding sums the ledger per counterparty kind.
func (s *Service) Outstanding(ctx context.Context) (map[Kind]Totals, error) {
	return s.repo.Outstanding(ctx)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, c Credit, meta map[string]any) {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["kind"] = string(c.Kind)
	meta["counterparty_id"] = c.CounterpartyID
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "credit_record",
		EntityID: strconv.FormatInt(c.ID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
