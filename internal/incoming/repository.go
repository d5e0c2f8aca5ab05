package incoming

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
	"github.com/odyssey-erp/odyssey-stock/internal/units"
)

// Repository persists incoming orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional order and stock operations.
type TxRepository interface {
	inventory.TxRepository
	InsertOrder(ctx context.Context, o Order) error
	// LockOrder loads and row-locks an order.
	LockOrder(ctx context.Context, id uuid.UUID) (Order, error)
	SetStatus(ctx context.Context, id uuid.UUID, status Status, arrivedAt *time.Time, at time.Time) error
}

type txRepository struct {
	inventory.TxRepository
	tx pgx.Tx
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("incoming repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxRepository: inventory.NewTxRepository(tx), tx: tx})
	})
}

const orderSelect = `SELECT o.id, o.product_id, p.sku, p.name, p.unit, o.ordered_quantity, o.order_date,
	o.expected_arrival_date, o.notes, o.status, o.arrived_at, o.created_at, o.updated_at
FROM incoming_orders o
JOIN products p ON p.id = o.product_id`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o      Order
		unit   string
		status string
	)
	if err := row.Scan(&o.ID, &o.ProductID, &o.ProductSKU, &o.ProductName, &unit, &o.OrderedQuantity, &o.OrderDate,
		&o.ExpectedArrivalDate, &o.Notes, &status, &o.ArrivedAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return Order{}, err
	}
	o.ProductUnit = units.Unit(unit)
	o.Status = Status(status)
	return withLabel(o), nil
}

func collectOrders(rows pgx.Rows) ([]Order, error) {
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *txRepository) InsertOrder(ctx context.Context, o Order) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO incoming_orders (id, product_id, ordered_quantity, order_date, expected_arrival_date, notes, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		o.ID, o.ProductID, o.OrderedQuantity, o.OrderDate, o.ExpectedArrivalDate, o.Notes, string(o.Status), o.CreatedAt)
	return err
}

func (r *txRepository) LockOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	o, err := scanOrder(r.tx.QueryRow(ctx, orderSelect+` WHERE o.id = $1 FOR UPDATE OF o`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	return o, err
}

func (r *txRepository) SetStatus(ctx context.Context, id uuid.UUID, status Status, arrivedAt *time.Time, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE incoming_orders SET status = $2, arrived_at = $3, updated_at = $4 WHERE id = $1`,
		id, string(status), arrivedAt, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// ListPending returns pending orders, soonest expected first.
func (r *Repository) ListPending(ctx context.Context) ([]Order, error) {
	rows, err := r.pool.Query(ctx, orderSelect+` WHERE o.status = 'pending'
ORDER BY o.expected_arrival_date ASC NULLS LAST, o.order_date, o.created_at`)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

// Overdue returns pending orders expected before asOf.
func (r *Repository) Overdue(ctx context.Context, asOf time.Time) ([]Order, error) {
	rows, err := r.pool.Query(ctx, orderSelect+` WHERE o.status = 'pending' AND o.expected_arrival_date < $1
ORDER BY o.expected_arrival_date, o.order_date`, asOf)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

// PendingByProduct sums pending quantities per product.
func (r *Repository) PendingByProduct(ctx context.Context) (map[uuid.UUID]float64, error) {
	rows, err := r.pool.Query(ctx, `SELECT product_id, SUM(ordered_quantity) FROM incoming_orders WHERE status = 'pending' GROUP BY product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[uuid.UUID]float64{}
	for rows.Next() {
		var (
			id  uuid.UUID
			qty float64
		)
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		out[id] = qty
	}
	return out, rows.Err()
}
