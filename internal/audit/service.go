// Package audit reads back the audit trail written by shared.AuditLogger.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// RepositoryPort is the read side of audit_logs.
type RepositoryPort interface {
	TimelineWindow(ctx context.Context, arg WindowParams) ([]TimelineRecord, error)
	TimelineAll(ctx context.Context, arg AllParams) ([]TimelineRecord, error)
}

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// Service coordinates audit timeline reads.
type Service struct {
	repo RepositoryPort
}

// NewService creates the audit timeline service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of audit entries, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	rows, err := s.repo.TimelineWindow(ctx, WindowParams{
		FromAt:     toPgTime(filters.From),
		ToAt:       toPgTime(filters.To),
		Actor:      optionalText(filters.Actor),
		Entity:     optionalText(filters.Entity),
		Action:     optionalText(filters.Action),
		OffsetRows: int32((page - 1) * pageSize),
		LimitRows:  int32(pageSize + 1),
	})
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: mapRows(rows), Paging: paging}, nil
}

// Export returns the whole filtered timeline without paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	rows, err := s.repo.TimelineAll(ctx, AllParams{
		FromAt: toPgTime(filters.From),
		ToAt:   toPgTime(filters.To),
		Actor:  optionalText(filters.Actor),
		Entity: optionalText(filters.Entity),
		Action: optionalText(filters.Action),
	})
	if err != nil {
		return nil, err
	}
	return mapRows(rows), nil
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}

func mapRows(rows []TimelineRecord) []TimelineRow {
	out := make([]TimelineRow, 0, len(rows))
	for _, rec := range rows {
		row := TimelineRow{
			ID:       rec.ID,
			Action:   rec.Action,
			Entity:   rec.Entity,
			EntityID: rec.EntityID,
			Meta:     decodeMeta(rec.Meta),
			Actor:    "system",
		}
		if rec.At.Valid {
			row.At = rec.At.Time
		}
		if rec.ActorID.Valid {
			row.ActorID = rec.ActorID.Int64
		}
		if rec.Actor.Valid && rec.Actor.String != "" {
			row.Actor = rec.Actor.String
		}
		out = append(out, row)
	}
	return out
}
