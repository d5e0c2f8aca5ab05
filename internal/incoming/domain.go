// Package incoming tracks goods ordered from suppliers until they arrive.
package incoming

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/units"
)

// Status enumerates order states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusArrived   Status = "arrived"
	StatusCancelled Status = "cancelled"
)

// Label returns the text shown to warehouse operators.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "In arrivo"
	case StatusArrived:
		return "Arrivato"
	case StatusCancelled:
		return "Annullato"
	}
	return string(s)
}

// Order is goods expected from a supplier.
type Order struct {
	ID                  uuid.UUID  `json:"id"`
	ProductID           uuid.UUID  `json:"product_id"`
	ProductSKU          string     `json:"product_sku"`
	ProductName         string     `json:"product_name"`
	ProductUnit         units.Unit `json:"product_unit"`
	OrderedQuantity     float64    `json:"ordered_quantity"`
	OrderDate           time.Time  `json:"order_date"`
	ExpectedArrivalDate *time.Time `json:"expected_arrival_date,omitempty"`
	Notes               string     `json:"notes"`
	Status              Status     `json:"status"`
	StatusLabel         string     `json:"status_label"`
	ArrivedAt           *time.Time `json:"arrived_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// CreateInput registers an order. A nil OrderDate means today.
type CreateInput struct {
	ProductID           uuid.UUID
	OrderedQuantity     float64
	OrderDate           *time.Time
	ExpectedArrivalDate *time.Time
	Notes               string
	Actor               string
}

// Arrival is the result of receiving an order.
type Arrival struct {
	Order    Order              `json:"order"`
	Movement inventory.Movement `json:"movement"`
}

var (
	// ErrOrderNotFound is returned for unknown ids.
	ErrOrderNotFound = fmt.Errorf("%w: incoming order not found", shared.ErrNotFound)
	// ErrOrderNotPending blocks transitions from arrived or cancelled orders.
	ErrOrderNotPending = fmt.Errorf("%w: incoming order is not pending", shared.ErrConflict)
	// ErrOrderBusy is returned while another request processes the same order.
	ErrOrderBusy = fmt.Errorf("%w: incoming order is being processed", shared.ErrConflict)
)

// civilDate truncates t to its calendar day in loc, expressed as UTC midnight
// to match DATE columns.
func civilDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// sortPending orders by expected arrival ascending; undated orders go last.
func sortPending(orders []Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		a, b := orders[i].ExpectedArrivalDate, orders[j].ExpectedArrivalDate
		switch {
		case a == nil && b == nil:
			return orders[i].OrderDate.Before(orders[j].OrderDate)
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.Before(*b)
		}
		return orders[i].OrderDate.Before(orders[j].OrderDate)
	})
}

func withLabel(o Order) Order {
	o.StatusLabel = o.Status.Label()
	return o
}
