// Package catalog manages the product master: creation with opening stock,
// descriptive edits, stock level corrections and the deactivate/delete
// lifecycle.
package catalog

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/units"
)

// Product is a catalog entry.
type Product struct {
	ID                uuid.UUID  `json:"id"`
	SKU               string     `json:"sku"`
	Name              string     `json:"name"`
	Description       string     `json:"description"`
	Nature            string     `json:"nature"`
	Supplier          string     `json:"supplier"`
	Location          string     `json:"location"`
	Unit              units.Unit `json:"unit"`
	MinStock          float64    `json:"min_stock"`
	CurrentStock      float64    `json:"current_stock"`
	InitialQuantity   float64    `json:"initial_quantity"`
	ProductionPrice   *float64   `json:"production_price"`
	ClientPrice       *float64   `json:"client_price"`
	ProfessionalPrice *float64   `json:"professional_price"`
	Active            bool       `json:"active"`
	StockStatus       string     `json:"stock_status"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Details are the descriptive, user-editable product fields.
type Details struct {
	SKU               string
	Name              string
	Description       string
	Nature            string
	Supplier          string
	Location          string
	Unit              string
	MinStock          *float64
	ProductionPrice   *float64
	ClientPrice       *float64
	ProfessionalPrice *float64
}

// CreateInput creates a product with an optional opening stock.
type CreateInput struct {
	Details
	InitialQuantity float64
	Actor           string
}

// StockLevelsInput corrects current and/or minimum stock.
type StockLevelsInput struct {
	CurrentStock *float64
	MinStock     *float64
	Note         string
	Actor        string
}

// Status filters for List.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusAll      = "all"
)

// ListFilter narrows List.
type ListFilter struct {
	Search   string
	Status   string
	Supplier string
	Nature   string
	SortBy   string
	SortDir  string
	Page     int
	PerPage  int
}

// Facets are the distinct filter values among active products.
type Facets struct {
	Suppliers []string `json:"suppliers"`
	Natures   []string `json:"natures"`
}

var (
	// ErrProductNotFound indicates an unknown product id.
	ErrProductNotFound = fmt.Errorf("product %w", shared.ErrNotFound)
	// ErrDuplicateSKU indicates the SKU is already used.
	ErrDuplicateSKU = fmt.Errorf("%w: sku already exists", shared.ErrDuplicate)
	// ErrProductInUse blocks deleting products referenced by BOM lines or movements.
	ErrProductInUse = fmt.Errorf("%w: product is used in a bill of materials or has movements, deactivate it instead", shared.ErrConflict)
)
