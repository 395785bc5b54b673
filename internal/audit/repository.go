package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WindowParams selects one page of the timeline.
type WindowParams struct {
	FromAt     pgtype.Timestamptz
	ToAt       pgtype.Timestamptz
	Actor      pgtype.Text
	Entity     pgtype.Text
	Action     pgtype.Text
	OffsetRows int32
	LimitRows  int32
}

// AllParams selects the whole filtered timeline.
type AllParams struct {
	FromAt pgtype.Timestamptz
	ToAt   pgtype.Timestamptz
	Actor  pgtype.Text
	Entity pgtype.Text
	Action pgtype.Text
}

// TimelineRecord is the raw row returned by the store.
type TimelineRecord struct {
	ID       int64
	At       pgtype.Timestamptz
	ActorID  pgtype.Int8
	Actor    pgtype.Text
	Action   string
	Entity   string
	EntityID string
	Meta     []byte
}

// Repository reads audit_logs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const timelineSelect = `SELECT l.id, l.occurred_at, l.actor_id, u.email, l.action, l.entity, l.entity_id, l.meta
FROM audit_logs l
LEFT JOIN users u ON u.id = l.actor_id
WHERE ($1::timestamptz IS NULL OR l.occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR l.occurred_at < $2)
  AND ($3::text IS NULL OR u.email ILIKE '%' || $3 || '%' OR u.name ILIKE '%' || $3 || '%')
  AND ($4::text IS NULL OR l.entity = $4)
  AND ($5::text IS NULL OR l.action ILIKE $5 || '%')
ORDER BY l.occurred_at DESC, l.id DESC`

// TimelineWindow returns LimitRows rows starting at OffsetRows.
func (r *Repository) TimelineWindow(ctx context.Context, arg WindowParams) ([]TimelineRecord, error) {
	rows, err := r.pool.Query(ctx, timelineSelect+` OFFSET $6 LIMIT $7`,
		arg.FromAt, arg.ToAt, arg.Actor, arg.Entity, arg.Action, arg.OffsetRows, arg.LimitRows)
	if err != nil {
		return nil, fmt.Errorf("audit: timeline window: %w", err)
	}
	return collect(rows)
}

// TimelineAll returns every row matching the filters.
func (r *Repository) TimelineAll(ctx context.Context, arg AllParams) ([]TimelineRecord, error) {
	rows, err := r.pool.Query(ctx, timelineSelect, arg.FromAt, arg.ToAt, arg.Actor, arg.Entity, arg.Action)
	if err != nil {
		return nil, fmt.Errorf("audit: timeline all: %w", err)
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]TimelineRecord, error) {
	defer rows.Close()
	out := make([]TimelineRecord, 0)
	for rows.Next() {
		var rec TimelineRecord
		if err := rows.Scan(&rec.ID, &rec.At, &rec.ActorID, &rec.Actor, &rec.Action, &rec.Entity, &rec.EntityID, &rec.Meta); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func decodeMeta(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil || len(meta) == 0 {
		return nil
	}
	return meta
}
