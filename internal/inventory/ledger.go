package inventory

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Ledger applies stock changes inside a caller-owned transaction. Every
// caller that changes stock (manual movements, catalog, assembly, arrivals)
// goes through ApplyChange so the product balance and the movement ledger
// never diverge.
type Ledger struct {
	AllowNegative bool
	Now           func() time.Time
}

// ApplyChange writes item's new stock and the matching movement. item must
// have been loaded with LockProducts in the same transaction; on success its
// CurrentStock is updated in place.
func (l Ledger) ApplyChange(ctx context.Context, tx TxRepository, item *StockItem, change StockChange) (Movement, error) {
	if math.Abs(change.Delta) < Epsilon {
		return Movement{}, ErrInvalidQuantity
	}
	if !change.Type.Valid() {
		return Movement{}, ErrInvalidMovementType
	}
	before := item.CurrentStock
	after := before + change.Delta
	if !l.AllowNegative && after < -Epsilon {
		return Movement{}, &InsufficientStockError{
			ProductID: item.ID,
			SKU:       item.SKU,
			Name:      item.Name,
			Unit:      item.Unit,
			Available: before,
			Requested: -change.Delta,
		}
	}
	if math.Abs(after) < Epsilon {
		after = 0
	}
	actor := change.Actor
	if actor == "" {
		actor = shared.SystemActor
	}
	occurred := change.OccurredAt
	if occurred.IsZero() {
		occurred = l.now()
	}
	mv := Movement{
		ID:          uuid.New(),
		ProductID:   item.ID,
		Type:        change.Type,
		Quantity:    change.Delta,
		QtyBefore:   before,
		QtyAfter:    after,
		Description: change.Description,
		RefModule:   change.RefModule,
		RefID:       change.RefID,
		Actor:       actor,
		OccurredAt:  occurred,
	}
	if err := tx.SetStock(ctx, item.ID, after); err != nil {
		return Movement{}, err
	}
	if err := tx.InsertMovement(ctx, mv); err != nil {
		return Movement{}, err
	}
	item.CurrentStock = after
	return mv, nil
}

// Adjust locks the product and books the difference to input.NewStock as an
// ADJUST movement. It returns nil when the stock already matches.
func (l Ledger) Adjust(ctx context.Context, tx TxRepository, input AdjustInput) (*Movement, error) {
	if input.ProductID == uuid.Nil {
		return nil, fmt.Errorf("%w: product required", shared.ErrValidation)
	}
	if math.IsNaN(input.NewStock) || math.IsInf(input.NewStock, 0) {
		return nil, ErrInvalidQuantity
	}
	if input.NewStock < 0 && !l.AllowNegative {
		return nil, fmt.Errorf("%w: stock cannot be negative", shared.ErrValidation)
	}
	items, err := tx.LockProducts(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}
	item, ok := items[input.ProductID]
	if !ok {
		return nil, ErrProductNotFound
	}
	delta := input.NewStock - item.CurrentStock
	if math.Abs(delta) < Epsilon {
		return nil, nil
	}
	description := input.Note
	if description == "" {
		description = fmt.Sprintf("Stock correction - %s", item.Name)
	}
	mv, err := l.ApplyChange(ctx, tx, &item, StockChange{
		Type:        MovementAdjust,
		Delta:       delta,
		Description: description,
		RefModule:   "adjustment",
		Actor:       input.Actor,
	})
	if err != nil {
		return nil, err
	}
	return &mv, nil
}

func (l Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}
