package incoming

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/inventory/inventorytest"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/units"
)

type memoryRepo struct {
	store  *inventorytest.Store
	mu     sync.Mutex
	orders map[uuid.UUID]Order
}

type memoryTx struct {
	*inventorytest.Tx
	orders map[uuid.UUID]Order
}

func (t *memoryTx) InsertOrder(_ context.Context, o Order) error {
	t.orders[o.ID] = o
	return nil
}

func (t *memoryTx) LockOrder(_ context.Context, id uuid.UUID) (Order, error) {
	o, ok := t.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (t *memoryTx) SetStatus(_ context.Context, id uuid.UUID, status Status, arrivedAt *time.Time, at time.Time) error {
	o, ok := t.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status, o.ArrivedAt, o.UpdatedAt = status, arrivedAt, at
	t.orders[id] = o
	return nil
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	staged := make(map[uuid.UUID]Order, len(r.orders))
	for id, o := range r.orders {
		staged[id] = o
	}
	err := r.store.Run(func(tx *inventorytest.Tx) error {
		return fn(ctx, &memoryTx{Tx: tx, orders: staged})
	})
	if err != nil {
		return err
	}
	r.orders = staged
	return nil
}

func (r *memoryRepo) pending() []Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Order
	for _, o := range r.orders {
		if o.Status == StatusPending {
			out = append(out, withLabel(o))
		}
	}
	return out
}

func (r *memoryRepo) ListPending(context.Context) ([]Order, error) {
	return r.pending(), nil
}

func (r *memoryRepo) Overdue(_ context.Context, asOf time.Time) ([]Order, error) {
	var out []Order
	for _, o := range r.pending() {
		if o.ExpectedArrivalDate != nil && o.ExpectedArrivalDate.Before(asOf) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *memoryRepo) PendingByProduct(context.Context) (map[uuid.UUID]float64, error) {
	out := map[uuid.UUID]float64{}
	for _, o := range r.pending() {
		out[o.ProductID] += o.OrderedQuantity
	}
	return out, nil
}

func (r *memoryRepo) order(id uuid.UUID) Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[id]
}

type recordingMetrics struct {
	mu        sync.Mutex
	arrivals  int
	movements map[string]int
}

func (m *recordingMetrics) RecordArrival() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.arrivals++
}

func (m *recordingMetrics) RecordMovement(t string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.movements[t]++
}

type countingBump struct{ n int }

func (c *countingBump) Bump(context.Context) error {
	c.n++
	return nil
}

var cet = time.FixedZone("CET", 3600)

type fixture struct {
	svc     *Service
	repo    *memoryRepo
	mr      *miniredis.Miniredis
	locker  *cache.Locker
	metrics *recordingMetrics
	bump    *countingBump
	now     time.Time
	gin     inventory.StockItem
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := inventorytest.NewStore()
	f := &fixture{
		repo:    &memoryRepo{store: store, orders: map[uuid.UUID]Order{}},
		mr:      mr,
		locker:  cache.NewLocker(client),
		metrics: &recordingMetrics{movements: map[string]int{}},
		bump:    &countingBump{},
		now:     time.Date(2024, 3, 10, 23, 30, 0, 0, time.UTC),
	}
	f.gin = store.Put(inventory.StockItem{SKU: "GIN", Name: "Gin", Unit: units.Liter, CurrentStock: 2, Active: true})
	f.svc = NewService(f.repo, nil, f.locker, ServiceConfig{
		Location:    cet,
		Metrics:     f.metrics,
		Invalidator: f.bump,
		Now:         func() time.Time { return f.now },
	})
	return f
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, cet)
	return &t
}

func TestCreateDefaultsOrderDateToLocalToday(t *testing.T) {
	f := newFixture(t)

	order, err := f.svc.Create(context.Background(), CreateInput{ProductID: f.gin.ID, OrderedQuantity: 6, Notes: "  supplier A "})
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), order.OrderDate)
	require.Nil(t, order.ExpectedArrivalDate)
	require.Equal(t, StatusPending, order.Status)
	require.Equal(t, "In arrivo", order.StatusLabel)
	require.Equal(t, "supplier A", order.Notes)
	require.Equal(t, "GIN", order.ProductSKU)
	require.Equal(t, 1, f.bump.n)
	require.Empty(t, f.repo.store.Movements(), "ordering does not touch stock")
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	inactive := f.repo.store.Put(inventory.StockItem{SKU: "OLD", Name: "Old", Unit: units.Piece})
	ctx := context.Background()

	cases := []struct {
		name  string
		input CreateInput
		field string
	}{
		{"missing product", CreateInput{OrderedQuantity: 1}, "product_id"},
		{"zero quantity", CreateInput{ProductID: f.gin.ID}, "ordered_quantity"},
		{"expected before order", CreateInput{ProductID: f.gin.ID, OrderedQuantity: 1, OrderDate: day(2024, 3, 5), ExpectedArrivalDate: day(2024, 3, 4)}, "expected_arrival_date"},
		{"unknown product", CreateInput{ProductID: uuid.New(), OrderedQuantity: 1}, "product_id"},
		{"inactive product", CreateInput{ProductID: inactive.ID, OrderedQuantity: 1}, "product_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tc.input)
			verr, ok := shared.AsValidation(err)
			require.True(t, ok, "expected validation error, got %v", err)
			require.Contains(t, verr.Fields, tc.field)
		})
	}

	_, err := f.svc.Create(ctx, CreateInput{ProductID: f.gin.ID, OrderedQuantity: 1, OrderDate: day(2024, 3, 5), ExpectedArrivalDate: day(2024, 3, 5)})
	require.NoError(t, err, "same-day arrival is allowed")
}

func TestListPendingOrdersByExpectedDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	create := func(expected *time.Time) Order {
		o, err := f.svc.Create(ctx, CreateInput{ProductID: f.gin.ID, OrderedQuantity: 1, OrderDate: day(2024, 3, 1), ExpectedArrivalDate: expected})
		require.NoError(t, err)
		return o
	}
	undated := create(nil)
	late := create(day(2024, 4, 1))
	soon := create(day(2024, 3, 15))
	cancelled := create(day(2024, 3, 2))
	_, err := f.svc.Cancel(ctx, cancelled.ID, "anna")
	require.NoError(t, err)

	orders, err := f.svc.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 3)
	require.Equal(t, []uuid.UUID{soon.ID, late.ID, undated.ID}, []uuid.UUID{orders[0].ID, orders[1].ID, orders[2].ID})

	pending, err := f.svc.PendingByProduct(ctx)
	require.NoError(t, err)
	require.Equal(t, 3.0, pending[f.gin.ID])
}

func TestMarkArrivedLoadsStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, err := f.svc.Create(ctx, CreateInput{ProductID: f.gin.ID, OrderedQuantity: 6})
	require.NoError(t, err)

	arrival, err := f.svc.MarkArrived(ctx, order.ID, "marco")
	require.NoError(t, err)
	require.Equal(t, StatusArrived, arrival.Order.Status)
	require.Equal(t, "Arrivato", arrival.Order.StatusLabel)
	require.NotNil(t, arrival.Order.ArrivedAt)
	require.Equal(t, inventory.MovementIn, arrival.Movement.Type)
	require.Equal(t, 6.0, arrival.Movement.Quantity)
	require.Equal(t, 8.0, arrival.Movement.QtyAfter)
	require.Equal(t, "Arrival of ordered goods - Gin", arrival.Movement.Description)
	require.Equal(t, "incoming", arrival.Movement.RefModule)
	require.Equal(t, order.ID.String(), arrival.Movement.RefID)
	require.Equal(t, "marco", arrival.Movement.Actor)

	item, _ := f.repo.store.Item(f.gin.ID)
	require.Equal(t, 8.0, item.CurrentStock)
	require.Equal(t, StatusArrived, f.repo.order(order.ID).Status)
	require.Equal(t, 1, f.metrics.arrivals)
	require.Equal(t, 1, f.metrics.movements["IN"])
	require.False(t, f.mr.Exists(shared.IncomingOrderLockKey(order.ID.String())), "lock released")

	_, err = f.svc.MarkArrived(ctx, order.ID, "marco")
	require.ErrorIs(t, err, ErrOrderNotPending)
	_, err = f.svc.Cancel(ctx, order.ID, "marco")
	require.ErrorIs(t, err, ErrOrderNotPending)
	require.Len(t, f.repo.store.Movements(), 1)
}

func TestMarkArrivedBusyWhileLocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, err := f.svc.Create(ctx, CreateInput{ProductID: f.gin.ID, OrderedQuantity: 6})
	require.NoError(t, err)

	held, err := f.locker.Acquire(ctx, shared.IncomingOrderLockKey(order.ID.String()), time.Minute)
	require.NoError(t, err)

	_, err = f.svc.MarkArrived(ctx, order.ID, "marco")
	require.ErrorIs(t, err, ErrOrderBusy)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Empty(t, f.repo.store.Movements())
	require.Equal(t, StatusPending, f.repo.order(order.ID).Status)

	require.NoError(t, held.Release(ctx))
	_, err = f.svc.MarkArrived(ctx, order.ID, "marco")
	require.NoError(t, err)
}

func TestMarkArrivedConcurrentClicksLoadOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, err := f.svc.Create(ctx, CreateInput{ProductID: f.gin.ID, OrderedQuantity: 6})
	require.NoError(t, err)

	const clicks = 8
	errs := make([]error, clicks)
	var wg sync.WaitGroup
	for i := 0; i < clicks; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.MarkArrived(ctx, order.ID, "marco")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrOrderBusy), errors.Is(err, ErrOrderNotPending):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	item, _ := f.repo.store.Item(f.gin.ID)
	require.Equal(t, 8.0, item.CurrentStock)
	require.Len(t, f.repo.store.Movements(), 1)
}

func TestMarkArrivedUnknownOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.MarkArrived(context.Background(), uuid.New(), "marco")
	require.ErrorIs(t, err, ErrOrderNotFound)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCancelPendingOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, err := f.svc.Create(ctx, CreateInput{ProductID: f.gin.ID, OrderedQuantity: 6})
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, order.ID, "anna")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Nil(t, cancelled.ArrivedAt)
	require.Empty(t, f.repo.store.Movements())

	_, err = f.svc.MarkArrived(ctx, order.ID, "anna")
	require.ErrorIs(t, err, ErrOrderNotPending)
}

func TestOverdueUsesLocalDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	due, err := f.svc.Create(ctx, CreateInput{ProductID: f.gin.ID, OrderedQuantity: 1, OrderDate: day(2024, 3, 1), ExpectedArrivalDate: day(2024, 3, 10)})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, CreateInput{ProductID: f.gin.ID, OrderedQuantity: 1, OrderDate: day(2024, 3, 1), ExpectedArrivalDate: day(2024, 3, 11)})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, CreateInput{ProductID: f.gin.ID, OrderedQuantity: 1, OrderDate: day(2024, 3, 1)})
	require.NoError(t, err)

	overdue, err := f.svc.Overdue(ctx, f.now)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	require.Equal(t, due.ID, overdue[0].ID)
}
