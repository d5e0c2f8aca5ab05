package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-stock/internal/incoming"
	jobmetrics "github.com/odyssey-erp/odyssey-stock/internal/jobs"
)

// OverdueSource lists pending orders past their expected arrival.
type OverdueSource interface {
	Overdue(ctx context.Context, asOf time.Time) ([]incoming.Order, error)
}

// OverdueScanJob reports late incoming orders.
type OverdueScanJob struct {
	base
	Orders OverdueSource
}

// NewOverdueScanJob wires dependencies for the scan handler.
func NewOverdueScanJob(orders OverdueSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueScanJob {
	return &OverdueScanJob{base: base{Logger: logger, Metrics: metrics}, Orders: orders}
}

// Handle executes the scan.
func (j *OverdueScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Orders == nil {
		return errors.New("overdue scan: handler not configured")
	}
	var payload OverdueScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	asOf := payload.AsOf
	if asOf.IsZero() {
		asOf = j.now()
	}

	tracker := j.metrics().Track(TaskOverdueScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	logger := j.logger(TaskOverdueScan)

	orders, err := j.Orders.Overdue(ctx, asOf)
	if err != nil {
		resultErr = err
		logger.Error("load overdue orders", slog.Any("error", err))
		return resultErr
	}
	for _, o := range orders {
		days := int(asOf.Sub(*o.ExpectedArrivalDate).Hours() / 24)
		logger.Warn("incoming order overdue",
			slog.String("order_id", o.ID.String()),
			slog.String("sku", o.ProductSKU),
			slog.Float64("quantity", o.OrderedQuantity),
			slog.String("expected", o.ExpectedArrivalDate.Format("2006-01-02")),
			slog.Int("days_late", days))
	}
	j.metrics().AddItems(TaskOverdueScan, len(orders))
	logger.Info("completed overdue scan", slog.Int("orders", len(orders)))
	return resultErr
}
