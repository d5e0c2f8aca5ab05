package dashboard

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/cache"
)

// RepositoryPort abstracts the aggregate queries.
type RepositoryPort interface {
	CountActiveProducts(ctx context.Context) (int, error)
	PendingIncoming(ctx context.Context) (PendingTotals, error)
	CountAssemblies(ctx context.Context, from, to time.Time) (int, error)
	LowStock(ctx context.Context, threshold float64) ([]LowStockItem, error)
}

// MovementLister returns the latest ledger rows.
type MovementLister interface {
	ListMovements(ctx context.Context, filter inventory.MovementFilter) ([]inventory.MovementView, error)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	LowStockThreshold float64
	Location          *time.Location
	Logger            *slog.Logger
	Now               func() time.Time
}

// Service assembles and caches the dashboard summary.
type Service struct {
	repo      RepositoryPort
	movements MovementLister
	cache     *cache.Cache
	group     singleflight.Group
	threshold float64
	loc       *time.Location
	logger    *slog.Logger
	now       func() time.Time
}

// DefaultLowStockThreshold applies when the configured threshold is unset.
const DefaultLowStockThreshold = 100

const keyBase = "stock:dashboard"

// NewService builds Service. A nil cache disables caching.
func NewService(repo RepositoryPort, movements MovementLister, c *cache.Cache, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	threshold := cfg.LowStockThreshold
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	return &Service{
		repo:      repo,
		movements: movements,
		cache:     c,
		threshold: threshold,
		loc:       loc,
		logger:    logger,
		now:       now,
	}
}

// Threshold returns the configured low-stock threshold.
func (s *Service) Threshold() float64 { return s.threshold }

// Summary returns the cached summary, building it on a miss. Concurrent
// misses for the same key share one build.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	today := s.now().In(s.loc).Format("2006-01-02")
	key, err := s.cache.BuildKey(ctx, keyBase, today)
	if err != nil {
		return Summary{}, err
	}
	ch := s.group.DoChan(key, func() (any, error) {
		var out Summary
		err := s.cache.FetchJSON(context.WithoutCancel(ctx), key, &out, func(ctx context.Context) (any, error) {
			return s.build(ctx)
		})
		return out, err
	})
	select {
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Summary{}, res.Err
		}
		return res.Val.(Summary), nil
	}
}

// LowStock lists products below the threshold without touching the cache.
func (s *Service) LowStock(ctx context.Context) ([]LowStockItem, error) {
	return s.repo.LowStock(ctx, s.threshold)
}

func (s *Service) build(ctx context.Context) (Summary, error) {
	now := s.now()
	start, _ := inventory.DayRange(now.In(s.loc), time.Time{}, s.loc)
	out := Summary{LowStockThreshold: s.threshold, GeneratedAt: now.UTC()}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.repo.CountActiveProducts(ctx)
		out.ActiveProducts = n
		return err
	})
	g.Go(func() error {
		totals, err := s.repo.PendingIncoming(ctx)
		out.PendingIncoming = totals
		return err
	})
	g.Go(func() error {
		n, err := s.repo.CountAssemblies(ctx, start, start.AddDate(0, 0, 1))
		out.AssembliesToday = n
		return err
	})
	g.Go(func() error {
		items, err := s.repo.LowStock(ctx, s.threshold)
		out.LowStock = items
		return err
	})
	g.Go(func() error {
		items, err := s.movements.ListMovements(ctx, inventory.MovementFilter{Limit: inventory.DefaultMovementLimit})
		out.RecentMovements = items
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	if out.LowStock == nil {
		out.LowStock = []LowStockItem{}
	}
	if out.RecentMovements == nil {
		out.RecentMovements = []inventory.MovementView{}
	}
	s.logger.Debug("dashboard summary built",
		slog.Int("active_products", out.ActiveProducts),
		slog.Int("low_stock", len(out.LowStock)))
	return out, nil
}
