package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReportsWarmup rebuilds today's sales summary into the report cache.
	TaskReportsWarmup = "reports:warmup"
	// TaskLowStockScan counts stock items at or below their reorder level.
	TaskLowStockScan = "inventory:low_stock_scan"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// DefaultIdempotencyRetention is how long idempotency keys are kept.
const DefaultIdempotencyRetention = 72 * time.Hour

// Observer records the outcome of a job run.
type Observer interface {
	ObserveJob(task string, err error)
}

// ReportsWarmupPayload carries the reason a warmup was requested.
type ReportsWarmupPayload struct {
	Reason string `json:"reason,omitempty"`
}

// NewReportsWarmupTask constructs a reports warmup task.
func NewReportsWarmupTask(reason string) (*asynq.Task, error) {
	return newTask(TaskReportsWarmup, ReportsWarmupPayload{Reason: reason})
}

// LowStockScanPayload is empty for now; the threshold lives on each item.
type LowStockScanPayload struct{}

// NewLowStockScanTask constructs a low stock scan task.
func NewLowStockScanTask() (*asynq.Task, error) {
	return newTask(TaskLowStockScan, LowStockScanPayload{})
}

// IdempotencyCleanupPayload sets the retention window in hours.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs a cleanup task for keys older than retention.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, IdempotencyCleanupPayload{RetentionHours: int(retention / time.Hour)})
}

func newTask(kind string, payload any) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(kind, body, asynq.Queue(QueueDefault)), nil
}

func decode(t *asynq.Task, dst any) error {
	if len(t.Payload()) == 0 {
		return nil
	}
	if err := json.Unmarshal(t.Payload(), dst); err != nil {
		return fmt.Errorf("jobs: decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return nil
}

func observe(o Observer, task string, err error) {
	if o != nil {
		o.ObserveJob(task, err)
	}
}
