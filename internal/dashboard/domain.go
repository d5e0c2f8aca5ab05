// Package dashboard builds the warehouse landing page summary.
package dashboard

import (
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/units"
)

// LowStockItem is an active product below the low-stock threshold.
type LowStockItem struct {
	ProductID    uuid.UUID  `json:"product_id"`
	SKU          string     `json:"sku"`
	Name         string     `json:"name"`
	Unit         units.Unit `json:"unit"`
	CurrentStock float64    `json:"current_stock"`
	MinStock     float64    `json:"min_stock"`
}

// PendingTotals aggregates pending incoming orders.
type PendingTotals struct {
	Orders   int     `json:"orders"`
	Quantity float64 `json:"quantity"`
}

// Summary is the dashboard payload.
type Summary struct {
	ActiveProducts    int                      `json:"active_products"`
	PendingIncoming   PendingTotals            `json:"pending_incoming"`
	AssembliesToday   int                      `json:"assemblies_today"`
	LowStockThreshold float64                  `json:"low_stock_threshold"`
	LowStock          []LowStockItem           `json:"low_stock"`
	RecentMovements   []inventory.MovementView `json:"recent_movements"`
	GeneratedAt       time.Time                `json:"generated_at"`
}
