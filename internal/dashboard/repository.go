package dashboard

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-stock/internal/units"
)

// Repository runs dashboard aggregate queries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CountActiveProducts counts products that are not deactivated.
func (r *Repository) CountActiveProducts(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE active`).Scan(&n)
	return n, err
}

// PendingIncoming sums pending incoming orders.
func (r *Repository) PendingIncoming(ctx context.Context) (PendingTotals, error) {
	var out PendingTotals
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(ordered_quantity), 0)::float8
FROM incoming_orders WHERE status = 'pending'`).Scan(&out.Orders, &out.Quantity)
	return out, err
}

// CountAssemblies counts assembly movements within [from, to).
func (r *Repository) CountAssemblies(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM movements
WHERE type = 'ASSEMBLY' AND occurred_at >= $1 AND occurred_at < $2`, from, to).Scan(&n)
	return n, err
}

// LowStock lists active products below threshold, lowest stock first.
func (r *Repository) LowStock(ctx context.Context, threshold float64) ([]LowStockItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, sku, name, unit, current_stock, min_stock
FROM products
WHERE active AND current_stock < $1
ORDER BY current_stock ASC, name ASC`, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LowStockItem
	for rows.Next() {
		var (
			item LowStockItem
			unit string
		)
		if err := rows.Scan(&item.ProductID, &item.SKU, &item.Name, &unit, &item.CurrentStock, &item.MinStock); err != nil {
			return nil, err
		}
		item.Unit = units.Unit(unit)
		out = append(out, item)
	}
	return out, rows.Err()
}
