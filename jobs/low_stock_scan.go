package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/pharmaops/pharmaops/internal/inventory"
)

// StockSource lists stock levels.
type StockSource interface {
	StockLevels(ctx context.Context, lowOnly bool) ([]inventory.StockLevel, error)
}

// LowStockGauge publishes the number of low stock items.
type LowStockGauge interface {
	SetLowStock(n int)
}

// LowStockScanJob counts items at or below their reorder level.
type LowStockScanJob struct {
	Stock   StockSource
	Gauge   LowStockGauge
	Logger  *slog.Logger
	Metrics Observer
}

// NewLowStockScanJob wires dependencies for the low stock scan.
func NewLowStockScanJob(stock StockSource, gauge LowStockGauge, logger *slog.Logger, metrics Observer) *LowStockScanJob {
	return &LowStockScanJob{Stock: stock, Gauge: gauge, Logger: logger, Metrics: metrics}
}

// Handle processes low stock scan tasks.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Stock == nil {
		return errors.New("low stock scan: handler not configured")
	}
	defer func() { observe(j.Metrics, TaskLowStockScan, err) }()

	var payload LowStockScanPayload
	if err = decode(t, &payload); err != nil {
		return err
	}
	logger := jobLogger(j.Logger, TaskLowStockScan)

	levels, err := j.Stock.StockLevels(ctx, true)
	if err != nil {
		logger.Error("load stock levels", slog.Any("error", err))
		return err
	}
	if j.Gauge != nil {
		j.Gauge.SetLowStock(len(levels))
	}
	for _, level := range levels {
		logger.Warn("low stock",
			slog.Int64("stock_item_id", level.StockItemID),
			slog.String("name", level.Name),
			slog.Int64("quantity", level.Quantity),
			slog.Int64("reorder_level", level.ReorderLevel))
	}
	logger.Info("completed low stock scan", slog.Int("items", len(levels)))
	return nil
}
