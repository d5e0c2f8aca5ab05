package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-stock/internal/audit"
	"github.com/odyssey-erp/odyssey-stock/internal/bom"
	"github.com/odyssey-erp/odyssey-stock/internal/catalog"
	"github.com/odyssey-erp/odyssey-stock/internal/dashboard"
	"github.com/odyssey-erp/odyssey-stock/internal/incoming"
	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/observability"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Services holds the wired domain services shared by the server, the worker
// and the CLI.
type Services struct {
	Audit       *shared.AuditLogger
	Timeline    *audit.Service
	Idempotency *shared.IdempotencyStore
	Cache       *cache.Cache
	Catalog     *catalog.Service
	Inventory   *inventory.Service
	BOM         *bom.Service
	Incoming    *incoming.Service
	Dashboard   *dashboard.Service
}

// BuildServices wires repositories and services. redisClient may be nil, in
// which case caching and order locks are disabled.
func BuildServices(cfg *Config, logger *slog.Logger, pool *pgxpool.Pool, redisClient *redis.Client, metrics *observability.Metrics) *Services {
	loc := cfg.Location()
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	var dashboardCache *cache.Cache
	if redisClient != nil {
		dashboardCache = cache.NewCache(redisClient, cfg.DashboardCacheTTL)
	}
	var invalidator shared.Invalidator
	if dashboardCache != nil {
		invalidator = dashboardCache
	}

	incomingService := incoming.NewService(incoming.NewRepository(pool), auditLogger, cache.NewLocker(redisClient), incoming.ServiceConfig{
		Location:    loc,
		Metrics:     metrics,
		Invalidator: invalidator,
		Logger:      logger,
	})

	inventoryService := inventory.NewService(inventory.NewRepository(pool), auditLogger, idempotencyStore, inventory.ServiceConfig{
		AllowNegativeStock: cfg.AllowNegativeStock,
		Pending:            incomingService,
		Metrics:            metrics,
		Invalidator:        invalidator,
		Logger:             logger,
	})

	catalogService := catalog.NewService(catalog.NewRepository(pool), auditLogger, catalog.ServiceConfig{
		DefaultMinStock:    cfg.DefaultMinStock,
		AllowNegativeStock: cfg.AllowNegativeStock,
		Metrics:            metrics,
		Invalidator:        invalidator,
		Logger:             logger,
	})

	bomService := bom.NewService(bom.NewRepository(pool), auditLogger, idempotencyStore, bom.ServiceConfig{
		AllowNegativeStock: cfg.AllowNegativeStock,
		Metrics:            metrics,
		Invalidator:        invalidator,
		Logger:             logger,
	})

	dashboardService := dashboard.NewService(dashboard.NewRepository(pool), inventoryService, dashboardCache, dashboard.ServiceConfig{
		LowStockThreshold: cfg.LowStockThreshold,
		Location:          loc,
		Logger:            logger,
	})

	return &Services{
		Audit:       auditLogger,
		Timeline:    audit.NewService(audit.NewRepository(pool)),
		Idempotency: idempotencyStore,
		Cache:       dashboardCache,
		Catalog:     catalogService,
		Inventory:   inventoryService,
		BOM:         bomService,
		Incoming:    incomingService,
		Dashboard:   dashboardService,
	}
}
