package expenses

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pharmaops/pharmaops/internal/shared"
)

// Service applies expense rules on top of a repository.
type Service struct {
	repo   RepositoryPort
	audit  shared.AuditRecorder
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates an expense service.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger.With(slog.String("module", "expenses")), now: time.Now}
}

// List returns a page of expenses and the amount total over the whole filter.
func (s *Service) List(ctx context.Context, filters ListFilters) (Page, error) {
	if !filters.From.IsZero() && !filters.To.IsZero() && filters.To.Before(filters.From) {
		return Page{}, fmt.Errorf("expenses: to before from: %w", shared.ErrValidation)
	}
	filters.Page, filters.PerPage = shared.NormalizePage(filters.Page, filters.PerPage)
	rows, total, sum, err := s.repo.List(ctx, filters)
	if err != nil {
		return Page{}, err
	}
	if rows == nil {
		rows = []Expense{}
	}
	return Page{
		Data:       rows,
		Pagination: shared.NewPagination(filters.Page, filters.PerPage, total),
		Total:      sum,
	}, nil
}

// Get loads an expense.
func (s *Service) Get(ctx context.Context, id int64) (Expense, error) {
	if id <= 0 {
		return Expense{}, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// Create validates and stores an expense.
func (s *Service) Create(ctx context.Context, input Input, actorID int64) (Expense, error) {
	input, err := input.normalize(s.now())
	if err != nil {
		return Expense{}, err
	}
	e, err := s.repo.Create(ctx, input, actorID)
	if err != nil {
		return Expense{}, err
	}
	s.record(ctx, actorID, "create", e)
	return e, nil
}

// Update replaces an expense's editable fields.
func (s *Service) Update(ctx context.Context, id int64, input Input, actorID int64) (Expense, error) {
	if id <= 0 {
		return Expense{}, ErrNotFound
	}
	input, err := input.normalize(s.now())
	if err != nil {
		return Expense{}, err
	}
	e, err := s.repo.Update(ctx, id, input)
	if err != nil {
		return Expense{}, err
	}
	s.record(ctx, actorID, "update", e)
	return e, nil
}

// Delete removes an expense.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	if id <= 0 {
		return ErrNotFound
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "delete", Expense{ID: id})
	return nil
}

// TotalBetween sums expenses dated in [from, to).
func (s *Service) TotalBetween(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	return s.repo.Total(ctx, from, to)
}

func (s *Service) record(ctx context.Context, actorID int64, verb string, e Expense) {
	action := "expenses:" + verb
	var meta map[string]any
	if e.Category != "" {
		meta = map[string]any{"category": e.Category, "amount": e.Amount.StringFixed(2)}
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "expense",
		EntityID: strconv.FormatInt(e.ID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
