package catalog

import (
	"context"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/inventory/inventorytest"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/units"
)

type memoryRepo struct {
	store    *inventorytest.Store
	products map[uuid.UUID]Product
	refs     map[uuid.UUID]int
}

type memoryTx struct {
	*inventorytest.Tx
	repo     *memoryRepo
	staged   []Product
	minStock map[uuid.UUID]float64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{store: inventorytest.NewStore(), products: map[uuid.UUID]Product{}, refs: map[uuid.UUID]int{}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	var committed *memoryTx
	err := r.store.Run(func(tx *inventorytest.Tx) error {
		mtx := &memoryTx{Tx: tx, repo: r, minStock: map[uuid.UUID]float64{}}
		if err := fn(ctx, mtx); err != nil {
			return err
		}
		committed = mtx
		return nil
	})
	if err != nil {
		return err
	}
	for _, p := range committed.staged {
		r.products[p.ID] = p
	}
	for id, v := range committed.minStock {
		p := r.products[id]
		p.MinStock = v
		r.products[id] = p
	}
	return nil
}

func (t *memoryTx) SetMinStock(_ context.Context, id uuid.UUID, minStock float64) error {
	if _, ok := t.repo.products[id]; !ok {
		return ErrProductNotFound
	}
	t.minStock[id] = minStock
	return nil
}

func (t *memoryTx) InsertProduct(_ context.Context, p Product) error {
	for _, existing := range t.repo.products {
		if existing.SKU == p.SKU {
			return ErrDuplicateSKU
		}
	}
	t.Put(inventory.StockItem{ID: p.ID, SKU: p.SKU, Name: p.Name, Unit: p.Unit, CurrentStock: p.CurrentStock, MinStock: p.MinStock, Active: p.Active})
	t.staged = append(t.staged, p)
	return nil
}

func (r *memoryRepo) Get(_ context.Context, id uuid.UUID) (Product, error) {
	p, ok := r.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	if item, ok := r.store.Item(id); ok {
		p.CurrentStock = item.CurrentStock
	}
	return p, nil
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	all := []Product{}
	for id := range r.products {
		p, _ := r.Get(ctx, id)
		switch filter.Status {
		case StatusActive:
			if !p.Active {
				continue
			}
		case StatusInactive:
			if p.Active {
				continue
			}
		}
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	start := (filter.Page - 1) * filter.PerPage
	if start > len(all) {
		start = len(all)
	}
	end := start + filter.PerPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (r *memoryRepo) Facets(context.Context) (Facets, error) { return Facets{}, nil }

func (r *memoryRepo) Update(_ context.Context, p Product) error {
	if _, ok := r.products[p.ID]; !ok {
		return ErrProductNotFound
	}
	r.products[p.ID] = p
	return nil
}

func (r *memoryRepo) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	p, ok := r.products[id]
	if !ok {
		return ErrProductNotFound
	}
	p.Active = active
	r.products[id] = p
	item, _ := r.store.Item(id)
	item.Active = active
	r.store.Put(item)
	return nil
}

func (r *memoryRepo) CountReferences(_ context.Context, id uuid.UUID) (int, error) {
	n := r.refs[id]
	for _, mv := range r.store.Movements() {
		if mv.ProductID == id {
			n++
		}
	}
	return n, nil
}

func (r *memoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.products[id]; !ok {
		return ErrProductNotFound
	}
	delete(r.products, id)
	return nil
}

func newTestService() (*Service, *memoryRepo) {
	repo := newMemoryRepo()
	return NewService(repo, nil, ServiceConfig{DefaultMinStock: 100}), repo
}

func ptr(v float64) *float64 { return &v }

func TestCreateBooksInitialStock(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	p, err := svc.Create(ctx, CreateInput{
		Details:         Details{SKU: " gin-01 ", Name: "London Dry Gin", Unit: "L", ClientPrice: ptr(21.5)},
		InitialQuantity: 12,
		Actor:           "maria",
	})
	require.NoError(t, err)
	require.Equal(t, "GIN-01", p.SKU)
	require.Equal(t, units.Liter, p.Unit)
	require.Equal(t, 100.0, p.MinStock)
	require.Equal(t, 12.0, p.CurrentStock)
	require.True(t, p.Active)
	require.Equal(t, inventory.StatusLow, p.StockStatus)

	movements := repo.store.Movements()
	require.Len(t, movements, 1)
	require.Equal(t, inventory.MovementIn, movements[0].Type)
	require.Equal(t, "Initial stock", movements[0].Description)
	require.Equal(t, 12.0, movements[0].QtyAfter)
	require.Equal(t, "maria", movements[0].Actor)

	plain, err := svc.Create(ctx, CreateInput{Details: Details{SKU: "cap", Name: "Cap", MinStock: ptr(5)}})
	require.NoError(t, err)
	require.Equal(t, units.Piece, plain.Unit)
	require.Equal(t, 5.0, plain.MinStock)
	require.Equal(t, inventory.StatusOutOfStock, plain.StockStatus)
	require.Len(t, repo.store.Movements(), 1)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{
		Details:         Details{SKU: " ", Unit: "gallon", ClientPrice: ptr(-1)},
		InitialQuantity: -3,
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	verr, ok := shared.AsValidation(err)
	require.True(t, ok)
	require.Contains(t, verr.Fields, "sku")
	require.Contains(t, verr.Fields, "name")
	require.Contains(t, verr.Fields, "unit")
	require.Contains(t, verr.Fields, "client_price")
	require.Contains(t, verr.Fields, "initial_quantity")

	_, err = svc.Create(ctx, CreateInput{Details: Details{SKU: "dup", Name: "One"}})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{Details: Details{SKU: "DUP", Name: "Two"}})
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestUpdateStockLevels(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	p, err := svc.Create(ctx, CreateInput{Details: Details{SKU: "lime", Name: "Lime", Unit: "kg"}, InitialQuantity: 4})
	require.NoError(t, err)

	updated, err := svc.UpdateStockLevels(ctx, p.ID, StockLevelsInput{CurrentStock: ptr(2.5), MinStock: ptr(1)})
	require.NoError(t, err)
	require.Equal(t, 2.5, updated.CurrentStock)
	require.Equal(t, 1.0, updated.MinStock)
	require.Equal(t, inventory.StatusAvailable, updated.StockStatus)

	movements := repo.store.Movements()
	require.Len(t, movements, 2)
	require.Equal(t, inventory.MovementAdjust, movements[1].Type)
	require.Equal(t, -1.5, movements[1].Quantity)

	_, err = svc.UpdateStockLevels(ctx, p.ID, StockLevelsInput{})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.UpdateStockLevels(ctx, p.ID, StockLevelsInput{MinStock: ptr(1)})
	require.NoError(t, err, "min stock alone writes no movement")
	require.Len(t, repo.store.Movements(), 2)
	_, err = svc.UpdateStockLevels(ctx, uuid.New(), StockLevelsInput{MinStock: ptr(1)})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpdateStockLevelsIsAllOrNothing(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	p, err := svc.Create(ctx, CreateInput{Details: Details{SKU: "soda", Name: "Soda", Unit: "l"}, InitialQuantity: 6})
	require.NoError(t, err)
	require.Equal(t, 100.0, p.MinStock)

	_, err = svc.UpdateStockLevels(ctx, p.ID, StockLevelsInput{CurrentStock: ptr(-5), MinStock: ptr(2)})
	require.ErrorIs(t, err, shared.ErrValidation)

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 100.0, got.MinStock, "min stock must roll back with the failed adjustment")
	require.Equal(t, 6.0, got.CurrentStock)
	require.Len(t, repo.store.Movements(), 1)
}

func TestDeleteRequiresUnusedProduct(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	used, err := svc.Create(ctx, CreateInput{Details: Details{SKU: "used", Name: "Used"}, InitialQuantity: 1})
	require.NoError(t, err)
	inBOM, err := svc.Create(ctx, CreateInput{Details: Details{SKU: "bom", Name: "In BOM"}})
	require.NoError(t, err)
	repo.refs[inBOM.ID] = 1
	unused, err := svc.Create(ctx, CreateInput{Details: Details{SKU: "new", Name: "Unused"}})
	require.NoError(t, err)

	require.ErrorIs(t, svc.Delete(ctx, used.ID, ""), ErrProductInUse)
	require.ErrorIs(t, svc.Delete(ctx, inBOM.ID, ""), shared.ErrConflict)
	require.NoError(t, svc.Delete(ctx, unused.ID, ""))
	_, err = svc.Get(ctx, unused.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	deactivated, err := svc.SetActive(ctx, used.ID, false, "")
	require.NoError(t, err)
	require.False(t, deactivated.Active)

	active, page, err := svc.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, 1, page.Total)

	all, _, err := svc.List(ctx, ListFilter{Status: StatusAll})
	require.NoError(t, err)
	require.Len(t, all, 2)

	_, _, err = svc.List(ctx, ListFilter{Status: "archived"})
	require.ErrorIs(t, err, shared.ErrValidation)

	reactivated, err := svc.SetActive(ctx, used.ID, true, "")
	require.NoError(t, err)
	require.True(t, reactivated.Active)
}

func TestUpdateKeepsStock(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	p, err := svc.Create(ctx, CreateInput{Details: Details{SKU: "syr", Name: "Syrup", Unit: "cl"}, InitialQuantity: 70})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, p.ID, Details{SKU: "syr-2", Name: "Sugar syrup", Unit: "cl", Supplier: " Acme "}, "")
	require.NoError(t, err)
	require.Equal(t, "SYR-2", updated.SKU)
	require.Equal(t, "Acme", updated.Supplier)
	require.Equal(t, 70.0, updated.CurrentStock)
	require.Equal(t, 100.0, updated.MinStock)
}

func TestUpdateRefusesUnitChangeOnceUsed(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	gin, err := svc.Create(ctx, CreateInput{Details: Details{SKU: "gin", Name: "Gin", Unit: "l"}, InitialQuantity: 2})
	require.NoError(t, err)

	_, err = svc.Update(ctx, gin.ID, Details{SKU: "gin", Name: "Gin", Unit: "ml"}, "")
	verr, ok := shared.AsValidation(err)
	require.True(t, ok, "expected validation error, got %v", err)
	require.Contains(t, verr.Fields, "unit")
	got, err := svc.Get(ctx, gin.ID)
	require.NoError(t, err)
	require.Equal(t, units.Liter, got.Unit)
	require.Equal(t, 2.0, got.CurrentStock)

	fresh, err := svc.Create(ctx, CreateInput{Details: Details{SKU: "vodka", Name: "Vodka", Unit: "l"}})
	require.NoError(t, err)
	updated, err := svc.Update(ctx, fresh.ID, Details{SKU: "vodka", Name: "Vodka", Unit: "cl"}, "")
	require.NoError(t, err)
	require.Equal(t, units.Centiliter, updated.Unit)

	repo.refs[fresh.ID] = 1
	_, err = svc.Update(ctx, fresh.ID, Details{SKU: "vodka", Name: "Vodka", Unit: "ml"}, "")
	require.ErrorIs(t, err, shared.ErrValidation)
}
