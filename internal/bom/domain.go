// Package bom assembles finished products from their bill of materials.
//
// Every line is converted into the material's storage unit and multiplied by
// the quantity to produce. Stock is verified for all materials before
// anything is written, and the whole assembly (recipe, material
// consumption, finished goods) commits in a single transaction.
package bom

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/units"
)

// Line is one material of a bill of materials, per unit of finished product.
type Line struct {
	MaterialID uuid.UUID `json:"material_id"`
	Quantity   float64   `json:"quantity"`
	Unit       string    `json:"unit"`
}

// AssemblyInput requests production of a finished product.
type AssemblyInput struct {
	FinishedProductID uuid.UUID
	QuantityToProduce float64
	Lines             []Line
	Actor             string
	IdempotencyKey    string
}

// Requirement is the aggregated need for one material, in its storage unit.
type Requirement struct {
	MaterialID uuid.UUID  `json:"material_id"`
	SKU        string     `json:"sku"`
	Name       string     `json:"name"`
	Unit       units.Unit `json:"unit"`
	PerUnit    float64    `json:"per_unit"`
	Required   float64    `json:"required"`
	Available  float64    `json:"available"`
}

// Short reports whether available stock does not cover the requirement.
func (r Requirement) Short() bool {
	return r.Available+inventory.Epsilon < r.Required
}

// Shortage describes a material that cannot cover its requirement.
type Shortage struct {
	MaterialID uuid.UUID  `json:"material_id"`
	SKU        string     `json:"sku"`
	Name       string     `json:"name"`
	Unit       units.Unit `json:"unit"`
	Required   float64    `json:"required"`
	Available  float64    `json:"available"`
	Missing    float64    `json:"missing"`
}

// ProductRef identifies a product in results.
type ProductRef struct {
	ID   uuid.UUID  `json:"id"`
	SKU  string     `json:"sku"`
	Name string     `json:"name"`
	Unit units.Unit `json:"unit"`
}

// Plan is the dry-run result of an assembly.
type Plan struct {
	FinishedProduct   ProductRef    `json:"finished_product"`
	QuantityToProduce float64       `json:"quantity_to_produce"`
	Requirements      []Requirement `json:"requirements"`
	Shortages         []Shortage    `json:"shortages"`
	Feasible          bool          `json:"feasible"`
}

// Assembly is a committed production run.
type Assembly struct {
	ID               uuid.UUID            `json:"id"`
	FinishedProduct  ProductRef           `json:"finished_product"`
	QuantityProduced float64              `json:"quantity_produced"`
	FinishedStock    float64              `json:"finished_stock"`
	Requirements     []Requirement        `json:"requirements"`
	Movements        []inventory.Movement `json:"movements"`
	AssembledAt      time.Time            `json:"assembled_at"`
}

// RecipeLine is a stored BOM line with material details.
type RecipeLine struct {
	MaterialID  uuid.UUID  `json:"material_id"`
	SKU         string     `json:"sku"`
	Name        string     `json:"name"`
	Quantity    float64    `json:"quantity"`
	Unit        units.Unit `json:"unit"`
	StorageUnit units.Unit `json:"storage_unit"`
	Available   float64    `json:"available"`
	Active      bool       `json:"active"`
	Position    int        `json:"position"`
}

// Recipe is the last BOM used for a finished product.
type Recipe struct {
	FinishedProduct ProductRef   `json:"finished_product"`
	Lines           []RecipeLine `json:"lines"`
}

// ErrInsufficientMaterials is wrapped by ShortageError.
var ErrInsufficientMaterials = fmt.Errorf("%w: insufficient materials", shared.ErrConflict)

// ShortageError lists every material that blocks an assembly.
type ShortageError struct {
	Shortages []Shortage
}

func (e *ShortageError) Error() string {
	parts := make([]string, len(e.Shortages))
	for i, s := range e.Shortages {
		parts[i] = fmt.Sprintf("%s (required %s %s, available %s %s)",
			s.Name, formatQty(s.Required), s.Unit, formatQty(s.Available), s.Unit)
	}
	return "insufficient materials: " + strings.Join(parts, "; ")
}

// Unwrap exposes ErrInsufficientMaterials.
func (e *ShortageError) Unwrap() error { return ErrInsufficientMaterials }

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func refOf(item inventory.StockItem) ProductRef {
	return ProductRef{ID: item.ID, SKU: item.SKU, Name: item.Name, Unit: item.Unit}
}
