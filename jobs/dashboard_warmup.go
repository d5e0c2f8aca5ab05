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

// SummaryBuilder produces the cached dashboard summary.
type SummaryBuilder interface {
	Summary(ctx context.Context) (dashboard.Summary, error)
}

// DashboardWarmupJob keeps the dashboard cache populated.
type DashboardWarmupJob struct {
	base
	Dashboard SummaryBuilder
}

// NewDashboardWarmupJob wires dependencies for the warmup handler.
func NewDashboardWarmupJob(d SummaryBuilder, logger *slog.Logger, metrics *jobmetrics.Metrics) *DashboardWarmupJob {
	return &DashboardWarmupJob{base: base{Logger: logger, Metrics: metrics}, Dashboard: d}
}

// Handle warms the cache.
func (j *DashboardWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Dashboard == nil {
		return errors.New("dashboard warmup: handler not configured")
	}
	var payload DashboardWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := j.now()
	tracker := j.metrics().Track(TaskDashboardWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	logger := j.logger(TaskDashboardWarmup)

	warmCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	summary, err := j.Dashboard.Summary(warmCtx)
	if err != nil {
		resultErr = err
		logger.Error("warm dashboard", slog.Any("error", err))
		return resultErr
	}
	logger.Info("completed dashboard warmup",
		slog.Int("active_products", summary.ActiveProducts),
		slog.Int("low_stock", len(summary.LowStock)),
		slog.Duration("duration", time.Since(start)))
	return resultErr
}
