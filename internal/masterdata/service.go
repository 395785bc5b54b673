package masterdata

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pharmaops/pharmaops/internal/shared"
)

// Service applies directory rules on top of a repository.
type Service struct {
	dir    Directory
	repo   RepositoryPort
	audit  shared.AuditRecorder
	logger *slog.Logger
}

// NewService creates a directory service.
func NewService(dir Directory, repo RepositoryPort, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{dir: dir, repo: repo, audit: audit, logger: logger.With(slog.String("directory", dir.Table))}
}

// List returns a page of parties.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Party, shared.Pagination, error) {
	filters.Search = strings.TrimSpace(filters.Search)
	filters.Page, filters.PerPage = shared.NormalizePage(filters.Page, filters.PerPage)
	rows, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return rows, shared.NewPagination(filters.Page, filters.PerPage, total), nil
}

// Get loads a party.
func (s *Service) Get(ctx context.Context, id int64) (Party, error) {
	if id <= 0 {
		return Party{}, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// Create validates and stores a party.
func (s *Service) Create(ctx context.Context, input PartyInput, actorID int64) (Party, error) {
	input, err := normalize(input)
	if err != nil {
		return Party{}, err
	}
	p, err := s.repo.Create(ctx, input)
	if err != nil {
		return Party{}, err
	}
	s.record(ctx, actorID, "create", p.ID, map[string]any{"name": p.Name})
	return p, nil
}

// Update replaces a party's editable fields.
func (s *Service) Update(ctx context.Context, id int64, input PartyInput, actorID int64) (Party, error) {
	input, err := normalize(input)
	if err != nil {
		return Party{}, err
	}
	p, err := s.repo.Update(ctx, id, input)
	if err != nil {
		return Party{}, err
	}
	s.record(ctx, actorID, "update", p.ID, map[string]any{"name": p.Name})
	return p, nil
}

// Delete removes a party that owns no credit records.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "delete", id, nil)
	return nil
}

func normalize(in PartyInput) (PartyInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Address = strings.TrimSpace(in.Address)
	if in.Name == "" {
		return in, ErrNameRequired
	}
	return in, nil
}

func (s *Service) record(ctx context.Context, actorID int64, verb string, id int64, meta map[string]any) {
	action := s.dir.Table + ":" + verb
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   s.dir.Name,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
