package catalog

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/units"
)

// TxRepository combines product inserts with the stock ledger.
type TxRepository interface {
	inventory.TxRepository
	InsertProduct(ctx context.Context, p Product) error
	SetMinStock(ctx context.Context, id uuid.UUID, minStock float64) error
}

// Repository persists products in PostgreSQL.
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
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxRepository: inventory.NewTxRepository(tx), tx: tx})
	})
}

func (r *txRepository) InsertProduct(ctx context.Context, p Product) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO products (id, sku, name, description, nature, supplier, location, unit, min_stock, current_stock, initial_quantity,
    production_price, client_price, professional_price, active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$16)`,
		p.ID, p.SKU, p.Name, p.Description, p.Nature, p.Supplier, p.Location, string(p.Unit), p.MinStock, p.CurrentStock, p.InitialQuantity,
		p.ProductionPrice, p.ClientPrice, p.ProfessionalPrice, p.Active, p.CreatedAt)
	if shared.IsUniqueViolation(err) {
		return ErrDuplicateSKU
	}
	return err
}

const productColumns = `id, sku, name, description, nature, supplier, location, unit, min_stock, current_stock, initial_quantity,
    production_price, client_price, professional_price, active, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p    Product
		unit string
	)
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Nature, &p.Supplier, &p.Location, &unit, &p.MinStock, &p.CurrentStock, &p.InitialQuantity,
		&p.ProductionPrice, &p.ClientPrice, &p.ProfessionalPrice, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Product{}, err
	}
	p.Unit = units.Unit(unit)
	return p, nil
}

// Get loads one product.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

// List returns one page of products and the total row count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	var (
		where []string
		args  []any
	)
	switch filter.Status {
	case StatusInactive:
		where = append(where, "NOT active")
	case StatusAll:
	default:
		where = append(where, "active")
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		n := strconv.Itoa(len(args))
		where = append(where, "(name ILIKE $"+n+" OR sku ILIKE $"+n+")")
	}
	if filter.Supplier != "" {
		args = append(args, filter.Supplier)
		where = append(where, "supplier = $"+strconv.Itoa(len(args)))
	}
	if filter.Nature != "" {
		args = append(args, filter.Nature)
		where = append(where, "nature = $"+strconv.Itoa(len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + productColumns + ` FROM products` + clause + ` ORDER BY ` + sortOrder(filter.SortBy, filter.SortDir)
	if filter.PerPage > 0 {
		args = append(args, filter.PerPage, (filter.Page-1)*filter.PerPage)
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

// Facets lists distinct suppliers and natures among active products.
func (r *Repository) Facets(ctx context.Context) (Facets, error) {
	f := Facets{Suppliers: []string{}, Natures: []string{}}
	var err error
	if f.Suppliers, err = r.distinct(ctx, "supplier"); err != nil {
		return Facets{}, err
	}
	if f.Natures, err = r.distinct(ctx, "nature"); err != nil {
		return Facets{}, err
	}
	return f, nil
}

// column is one of a fixed set, never user input.
func (r *Repository) distinct(ctx context.Context, column string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT `+column+` FROM products WHERE active AND `+column+` <> '' ORDER BY 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Update writes the descriptive fields of p.
func (r *Repository) Update(ctx context.Context, p Product) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET sku=$2, name=$3, description=$4, nature=$5, supplier=$6, location=$7, unit=$8, min_stock=$9,
    production_price=$10, client_price=$11, professional_price=$12, updated_at=NOW()
WHERE id=$1`, p.ID, p.SKU, p.Name, p.Description, p.Nature, p.Supplier, p.Location, string(p.Unit), p.MinStock,
		p.ProductionPrice, p.ClientPrice, p.ProfessionalPrice)
	if shared.IsUniqueViolation(err) {
		return ErrDuplicateSKU
	}
	return affected(tag, err)
}

// SetMinStock updates the reorder threshold.
func (r *txRepository) SetMinStock(ctx context.Context, id uuid.UUID, minStock float64) error {
	return affected(r.tx.Exec(ctx, `UPDATE products SET min_stock=$2, updated_at=NOW() WHERE id=$1`, id, minStock))
}

// SetActive toggles the active flag.
func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return affected(r.pool.Exec(ctx, `UPDATE products SET active=$2, updated_at=NOW() WHERE id=$1`, id, active))
}

// CountReferences counts BOM lines and movements pointing at the product.
func (r *Repository) CountReferences(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT
    (SELECT COUNT(*) FROM bom_items WHERE final_product_id=$1 OR material_id=$1) +
    (SELECT COUNT(*) FROM movements WHERE product_id=$1) +
    (SELECT COUNT(*) FROM incoming_orders WHERE product_id=$1)`, id).Scan(&n)
	return n, err
}

// Delete removes a product. Foreign keys still guard against references
// created after CountReferences ran.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return ErrProductInUse
	}
	return affected(tag, err)
}

func affected(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == "desc" {
		dir = "DESC"
	}
	switch sortBy {
	case "sku":
		return "sku " + dir
	case "current_stock":
		return "current_stock " + dir + ", name ASC"
	case "supplier":
		return "supplier " + dir + ", name ASC"
	case "created_at":
		return "created_at " + dir
	default:
		return "name " + dir
	}
}
