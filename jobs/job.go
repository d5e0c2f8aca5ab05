package jobs

import (
	"log/slog"
	"time"

	jobmetrics "github.com/odyssey-erp/odyssey-stock/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// base carries the ambient dependencies shared by every job handler.
type base struct {
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

func (b base) logger(job string) *slog.Logger {
	if b.Logger != nil {
		return b.Logger.With(slog.String("job", job))
	}
	return slog.Default().With(slog.String("job", job))
}

func (b base) metrics() *jobmetrics.Metrics {
	if b.Metrics != nil {
		return b.Metrics
	}
	return defaultJobMetrics
}

func (b base) now() time.Time {
	if b.clock != nil {
		return b.clock()
	}
	return time.Now().UTC()
}
