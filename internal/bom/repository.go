package bom

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
	"github.com/odyssey-erp/odyssey-stock/internal/units"
)

// TxRepository combines recipe storage with the stock ledger.
type TxRepository interface {
	inventory.TxRepository
	ReplaceRecipe(ctx context.Context, finishedID uuid.UUID, lines []Line) error
}

// Repository persists BOM data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	inventory.TxRepository
	tx pgx.Tx
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("bom repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxRepository: inventory.NewTxRepository(tx), tx: tx})
	})
}

func (r *txRepository) ReplaceRecipe(ctx context.Context, finishedID uuid.UUID, lines []Line) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM bom_items WHERE final_product_id=$1`, finishedID); err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for i, line := range lines {
		unit, _ := units.Parse(line.Unit)
		batch.Queue(`INSERT INTO bom_items (id, final_product_id, material_id, quantity_per_unit, unit, position) VALUES ($1,$2,$3,$4,$5,$6)`,
			uuid.New(), finishedID, line.MaterialID, line.Quantity, string(unit), i)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

// LoadProducts reads products without locking them.
func (r *Repository) LoadProducts(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]inventory.StockItem, error) {
	out := make(map[uuid.UUID]inventory.StockItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	rows, err := r.pool.Query(ctx, `SELECT id, sku, name, unit, current_stock, min_stock, active FROM products WHERE id = ANY($1::uuid[])`, strs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			item inventory.StockItem
			unit string
		)
		if err := rows.Scan(&item.ID, &item.SKU, &item.Name, &unit, &item.CurrentStock, &item.MinStock, &item.Active); err != nil {
			return nil, err
		}
		item.Unit = units.Unit(unit)
		out[item.ID] = item
	}
	return out, rows.Err()
}

// Recipe returns the stored lines for a finished product.
func (r *Repository) Recipe(ctx context.Context, finishedID uuid.UUID) ([]RecipeLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT b.material_id, p.sku, p.name, b.quantity_per_unit, b.unit, p.unit, p.current_stock, p.active, b.position
FROM bom_items b
JOIN products p ON p.id = b.material_id
WHERE b.final_product_id=$1
ORDER BY b.position ASC`, finishedID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []RecipeLine{}
	for rows.Next() {
		var (
			line              RecipeLine
			unit, storageUnit string
		)
		if err := rows.Scan(&line.MaterialID, &line.SKU, &line.Name, &line.Quantity, &unit, &storageUnit, &line.Available, &line.Active, &line.Position); err != nil {
			return nil, err
		}
		line.Unit = units.Unit(unit)
		line.StorageUnit = units.Unit(storageUnit)
		out = append(out, line)
	}
	return out, rows.Err()
}
