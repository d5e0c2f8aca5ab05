package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-stock/internal/dashboard"
	jobmetrics "github.com/odyssey-erp/odyssey-stock/internal/jobs"
)

// LowStockSource lists products below the low-stock threshold.
type LowStockSource interface {
	LowStock(ctx context.Context) ([]dashboard.LowStockItem, error)
	Threshold() float64
}

// LowStockGauge publishes the number of low-stock products.
type LowStockGauge interface {
	SetLowStock(count int)
}

// LowStockScanJob refreshes the low-stock gauge.
type LowStockScanJob struct {
	base
	Source LowStockSource
	Gauge  LowStockGauge
}

// NewLowStockScanJob wires dependencies for the scan handler.
func NewLowStockScanJob(source LowStockSource, gauge LowStockGauge, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{base: base{Logger: logger, Metrics: metrics}, Source: source, Gauge: gauge}
}

// Handle executes the scan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Source == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := j.now()
	tracker := j.metrics().Track(TaskLowStockScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	logger := j.logger(TaskLowStockScan)

	items, err := j.Source.LowStock(ctx)
	if err != nil {
		resultErr = err
		logger.Error("load low stock products", slog.Any("error", err))
		return resultErr
	}
	for _, item := range items {
		logger.Warn("product below threshold",
			slog.String("sku", item.SKU),
			slog.Float64("current_stock", item.CurrentStock),
			slog.String("unit", string(item.Unit)))
	}
	if j.Gauge != nil {
		j.Gauge.SetLowStock(len(items))
	}
	j.metrics().AddItems(TaskLowStockScan, len(items))
	logger.Info("completed low stock scan",
		slog.Int("products", len(items)),
		slog.Float64("threshold", j.Source.Threshold()),
		slog.Duration("duration", time.Since(start)))
	return resultErr
}
