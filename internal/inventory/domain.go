package inventory

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/units"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementIn represents a load (goods received, initial stock).
	MovementIn MovementType = "IN"
	// MovementOut represents an unload or a material consumed by assembly.
	MovementOut MovementType = "OUT"
	// MovementAssembly records finished goods produced from a BOM.
	MovementAssembly MovementType = "ASSEMBLY"
	// MovementAdjust indicates a manual stock correction.
	MovementAdjust MovementType = "ADJUST"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementIn, MovementOut, MovementAssembly, MovementAdjust:
		return true
	}
	return false
}

// Epsilon is the tolerance applied to stock balances.
const Epsilon = 1e-4

// StockItem is the stock-relevant slice of a product row.
type StockItem struct {
	ID           uuid.UUID
	SKU          string
	Name         string
	Unit         units.Unit
	CurrentStock float64
	MinStock     float64
	Active       bool
}

// StockChange describes a single signed change applied to a product.
type StockChange struct {
	Type        MovementType
	Delta       float64
	Description string
	RefModule   string
	RefID       string
	Actor       string
	OccurredAt  time.Time
}

// Movement is one ledger row.
type Movement struct {
	ID          uuid.UUID    `json:"id"`
	ProductID   uuid.UUID    `json:"product_id"`
	Type        MovementType `json:"type"`
	Quantity    float64      `json:"quantity"`
	QtyBefore   float64      `json:"qty_before"`
	QtyAfter    float64      `json:"qty_after"`
	Description string       `json:"description"`
	RefModule   string       `json:"ref_module,omitempty"`
	RefID       string       `json:"ref_id,omitempty"`
	Actor       string       `json:"actor"`
	OccurredAt  time.Time    `json:"occurred_at"`
}

// MovementView is a movement joined with its product for listings.
type MovementView struct {
	Movement
	ProductSKU  string     `json:"product_sku"`
	ProductName string     `json:"product_name"`
	ProductUnit units.Unit `json:"product_unit"`
}

// MovementFilter narrows ListMovements.
type MovementFilter struct {
	ProductID       uuid.UUID
	Type            MovementType
	From            time.Time
	To              time.Time
	IncludeInactive bool
	Limit           int
}

const (
	// DefaultMovementLimit applies to "recent movements" listings.
	DefaultMovementLimit = 10
	// MaxMovementLimit caps movement listings and stock cards.
	MaxMovementLimit = 500
)

// StockCardFilter filters card entries of one product.
type StockCardFilter struct {
	ProductID uuid.UUID
	From      time.Time
	To        time.Time
	Limit     int
}

// StockCardEntry describes one line of a product stock card.
type StockCardEntry struct {
	MovementID  uuid.UUID    `json:"movement_id"`
	Type        MovementType `json:"type"`
	OccurredAt  time.Time    `json:"occurred_at"`
	QtyIn       float64      `json:"qty_in"`
	QtyOut      float64      `json:"qty_out"`
	QtyBefore   float64      `json:"qty_before"`
	BalanceQty  float64      `json:"balance_qty"`
	Description string       `json:"description"`
	Actor       string       `json:"actor"`
}

// StockCard is the stock card of one product.
type StockCard struct {
	ProductID uuid.UUID        `json:"product_id"`
	SKU       string           `json:"sku"`
	Name      string           `json:"name"`
	Unit      units.Unit       `json:"unit"`
	Current   float64          `json:"current_stock"`
	Entries   []StockCardEntry `json:"entries"`
}

// Stock statuses derived from current and minimum stock.
const (
	StatusOutOfStock = "out_of_stock"
	StatusLow        = "low"
	StatusAvailable  = "available"
)

// StockStatus classifies a stock level against its minimum.
func StockStatus(current, minStock float64) string {
	switch {
	case current <= 0:
		return StatusOutOfStock
	case current <= minStock:
		return StatusLow
	default:
		return StatusAvailable
	}
}

// OverviewFilter filters the inventory overview.
type OverviewFilter struct {
	Search   string
	Supplier string
	Nature   string
}

// OverviewRow is one active product on the inventory page.
type OverviewRow struct {
	ProductID    uuid.UUID  `json:"product_id"`
	SKU          string     `json:"sku"`
	Name         string     `json:"name"`
	Unit         units.Unit `json:"unit"`
	Supplier     string     `json:"supplier"`
	Nature       string     `json:"nature"`
	Location     string     `json:"location"`
	CurrentStock float64    `json:"current_stock"`
	MinStock     float64    `json:"min_stock"`
	Incoming     float64    `json:"incoming"`
	Status       string     `json:"stock_status"`
}

// PostMovementInput is a manual load or unload.
type PostMovementInput struct {
	ProductID      uuid.UUID
	Type           MovementType
	Quantity       float64
	Notes          string
	Actor          string
	IdempotencyKey string
}

// AdjustInput sets a product stock to an absolute value.
type AdjustInput struct {
	ProductID uuid.UUID
	NewStock  float64
	Note      string
	Actor     string
}

var (
	// ErrInvalidQuantity indicates a zero or negative quantity where a positive one is required.
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	// ErrInvalidMovementType rejects movement types not allowed for the operation.
	ErrInvalidMovementType = fmt.Errorf("%w: invalid movement type", shared.ErrValidation)
	// ErrProductInactive rejects movements on deactivated products.
	ErrProductInactive = fmt.Errorf("%w: product is inactive", shared.ErrValidation)
	// ErrProductNotFound indicates an unknown product id.
	ErrProductNotFound = fmt.Errorf("product %w", shared.ErrNotFound)
	// ErrInsufficientStock is wrapped by InsufficientStockError.
	ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", shared.ErrConflict)
)

// InsufficientStockError reports the available and requested quantity of
// a refused change.
type InsufficientStockError struct {
	ProductID uuid.UUID
	SKU       string
	Name      string
	Unit      units.Unit
	Available float64
	Requested float64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %s %s, requested %s %s",
		e.Name, formatQty(e.Available), e.Unit, formatQty(e.Requested), e.Unit)
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Unwrap exposes ErrInsufficientStock to errors.Is.
func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// AsInsufficientStock extracts an InsufficientStockError from err.
func AsInsufficientStock(err error) (*InsufficientStockError, bool) {
	var target *InsufficientStockError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
