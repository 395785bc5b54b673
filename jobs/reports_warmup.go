package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Warmer rebuilds cached reports.
type Warmer interface {
	Warmup(ctx context.Context) error
}

// ReportsWarmupJob pre-populates the report cache for the current day.
type ReportsWarmupJob struct {
	Reports Warmer
	Logger  *slog.Logger
	Metrics Observer
	Timeout time.Duration
}

// NewReportsWarmupJob wires dependencies for the warmup handler.
func NewReportsWarmupJob(reports Warmer, logger *slog.Logger, metrics Observer) *ReportsWarmupJob {
	return &ReportsWarmupJob{Reports: reports, Logger: logger, Metrics: metrics, Timeout: 30 * time.Second}
}

// Handle processes reports warmup tasks.
func (j *ReportsWarmupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Reports == nil {
		return errors.New("reports warmup: handler not configured")
	}
	defer func() { observe(j.Metrics, TaskReportsWarmup, err) }()

	var payload ReportsWarmupPayload
	if err = decode(t, &payload); err != nil {
		return err
	}
	logger := jobLogger(j.Logger, TaskReportsWarmup).With(slog.String("reason", payload.Reason))

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	start := time.Now()
	if err = j.Reports.Warmup(ctx); err != nil {
		logger.Error("warm reports", slog.Any("error", err))
		return err
	}
	logger.Info("completed reports warmup", slog.Duration("duration", time.Since(start)))
	return nil
}

func jobLogger(l *slog.Logger, task string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With(slog.String("job", task))
}
