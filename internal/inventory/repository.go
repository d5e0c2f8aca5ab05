package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
	"github.com/odyssey-erp/odyssey-stock/internal/units"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the stock operations available inside a transaction.
// Other modules embed it in their own transactional repositories.
type TxRepository interface {
	// LockProducts loads and row-locks the given products in id order.
	// Unknown ids are absent from the result.
	LockProducts(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]StockItem, error)
	SetStock(ctx context.Context, productID uuid.UUID, qty float64) error
	InsertMovement(ctx context.Context, mv Movement) error
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const stockItemColumns = `id, sku, name, unit, current_stock, min_stock, active`

func scanStockItem(row pgx.Row) (StockItem, error) {
	var (
		item StockItem
		unit string
	)
	if err := row.Scan(&item.ID, &item.SKU, &item.Name, &unit, &item.CurrentStock, &item.MinStock, &item.Active); err != nil {
		return StockItem{}, err
	}
	item.Unit = units.Unit(unit)
	return item, nil
}

func (r *txRepository) LockProducts(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]StockItem, error) {
	out := make(map[uuid.UUID]StockItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.tx.Query(ctx, `SELECT `+stockItemColumns+` FROM products WHERE id = ANY($1::uuid[]) ORDER BY id FOR UPDATE`, uuidStrings(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		item, err := scanStockItem(rows)
		if err != nil {
			return nil, err
		}
		out[item.ID] = item
	}
	return out, rows.Err()
}

func (r *txRepository) SetStock(ctx context.Context, productID uuid.UUID, qty float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE products SET current_stock=$2, updated_at=NOW() WHERE id=$1`, productID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *txRepository) InsertMovement(ctx context.Context, mv Movement) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO movements (id, product_id, type, quantity, qty_before, qty_after, description, ref_module, ref_id, actor, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		mv.ID, mv.ProductID, string(mv.Type), mv.Quantity, mv.QtyBefore, mv.QtyAfter, mv.Description, mv.RefModule, mv.RefID, mv.Actor, mv.OccurredAt)
	return err
}

// GetItem loads a product without locking it.
func (r *Repository) GetItem(ctx context.Context, id uuid.UUID) (StockItem, error) {
	item, err := scanStockItem(r.pool.QueryRow(ctx, `SELECT `+stockItemColumns+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return StockItem{}, ErrProductNotFound
	}
	return item, err
}

// ListMovements returns movements newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]MovementView, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.ProductID != uuid.Nil {
		add("m.product_id = $%d", filter.ProductID)
	}
	if filter.Type != "" {
		add("m.type = $%d", string(filter.Type))
	}
	if !filter.From.IsZero() {
		add("m.occurred_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("m.occurred_at <= $%d", filter.To)
	}
	if !filter.IncludeInactive {
		where = append(where, "p.active")
	}
	query := `SELECT m.id, m.product_id, m.type, m.quantity, m.qty_before, m.qty_after, m.description, m.ref_module, m.ref_id, m.actor, m.occurred_at,
       p.sku, p.name, p.unit
FROM movements m
JOIN products p ON p.id = m.product_id`
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf("\nORDER BY m.occurred_at DESC, m.created_at DESC\nLIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []MovementView{}
	for rows.Next() {
		var (
			v        MovementView
			mvType   string
			prodUnit string
		)
		if err := rows.Scan(&v.ID, &v.ProductID, &mvType, &v.Quantity, &v.QtyBefore, &v.QtyAfter, &v.Description, &v.RefModule, &v.RefID, &v.Actor, &v.OccurredAt,
			&v.ProductSKU, &v.ProductName, &prodUnit); err != nil {
			return nil, err
		}
		v.Type = MovementType(mvType)
		v.ProductUnit = units.Unit(prodUnit)
		out = append(out, v)
	}
	return out, rows.Err()
}

// StockCard returns the movements of one product oldest first.
func (r *Repository) StockCard(ctx context.Context, filter StockCardFilter) ([]StockCardEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, type, occurred_at, quantity, qty_before, qty_after, description, actor
FROM movements
WHERE product_id=$1 AND occurred_at BETWEEN COALESCE($2, '-infinity'::timestamptz) AND COALESCE($3, 'infinity'::timestamptz)
ORDER BY occurred_at ASC, created_at ASC
LIMIT $4`, filter.ProductID, nullTime(filter.From), nullTime(filter.To), filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cards := []StockCardEntry{}
	for rows.Next() {
		var (
			entry  StockCardEntry
			mvType string
			qty    float64
		)
		if err := rows.Scan(&entry.MovementID, &mvType, &entry.OccurredAt, &qty, &entry.QtyBefore, &entry.BalanceQty, &entry.Description, &entry.Actor); err != nil {
			return nil, err
		}
		entry.Type = MovementType(mvType)
		if qty >= 0 {
			entry.QtyIn = qty
		} else {
			entry.QtyOut = -qty
		}
		cards = append(cards, entry)
	}
	return cards, rows.Err()
}

// Overview lists active products for the inventory page.
func (r *Repository) Overview(ctx context.Context, filter OverviewFilter) ([]OverviewRow, error) {
	args := []any{}
	where := []string{"active"}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR sku ILIKE $%d)", len(args), len(args)))
	}
	if filter.Supplier != "" {
		args = append(args, filter.Supplier)
		where = append(where, fmt.Sprintf("supplier = $%d", len(args)))
	}
	if filter.Nature != "" {
		args = append(args, filter.Nature)
		where = append(where, fmt.Sprintf("nature = $%d", len(args)))
	}
	rows, err := r.pool.Query(ctx, `SELECT id, sku, name, unit, supplier, nature, location, current_stock, min_stock
FROM products
WHERE `+strings.Join(where, " AND ")+`
ORDER BY name ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []OverviewRow{}
	for rows.Next() {
		var (
			row  OverviewRow
			unit string
		)
		if err := rows.Scan(&row.ProductID, &row.SKU, &row.Name, &unit, &row.Supplier, &row.Nature, &row.Location, &row.CurrentStock, &row.MinStock); err != nil {
			return nil, err
		}
		row.Unit = units.Unit(unit)
		out = append(out, row)
	}
	return out, rows.Err()
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
