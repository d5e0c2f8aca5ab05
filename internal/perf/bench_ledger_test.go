package perf

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/inventory/inventorytest"
	"github.com/odyssey-erp/odyssey-stock/internal/units"
)

func TestLedgerLatencyAndChain(t *testing.T) {
	store := inventorytest.NewStore()
	item := store.Put(inventory.StockItem{ID: uuid.New(), SKU: "GIN", Name: "Gin", Unit: units.Liter, CurrentStock: 100, Active: true})
	ledger := inventory.Ledger{}
	ctx := context.Background()

	const rounds = 2000
	samples := make([]time.Duration, 0, rounds)
	expected := item.CurrentStock
	for i := 0; i < rounds; i++ {
		change := inventory.StockChange{Type: inventory.MovementIn, Delta: 0.75}
		if i%3 == 0 {
			change = inventory.StockChange{Type: inventory.MovementOut, Delta: -1.25}
		}
		expected += change.Delta
		start := time.Now()
		err := store.Run(func(tx *inventorytest.Tx) error {
			locked, err := tx.LockProducts(ctx, item.ID)
			if err != nil {
				return err
			}
			current := locked[item.ID]
			_, err = ledger.ApplyChange(ctx, tx, &current, change)
			return err
		})
		samples = append(samples, time.Since(start))
		if err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
	}

	if p95 := percentile95(samples); p95 > 5*time.Millisecond {
		t.Fatalf("ledger latency regression: p95=%s", p95)
	}

	final, _ := store.Item(item.ID)
	if diff := final.CurrentStock - expected; diff > inventory.Epsilon || diff < -inventory.Epsilon {
		t.Fatalf("balance drift: got %f want %f", final.CurrentStock, expected)
	}
	movements := store.Movements()
	if len(movements) != rounds {
		t.Fatalf("expected %d movements, got %d", rounds, len(movements))
	}
	for i := 1; i < len(movements); i++ {
		if movements[i].QtyBefore != movements[i-1].QtyAfter {
			t.Fatalf("ledger chain broken at %d: before=%f previous after=%f", i, movements[i].QtyBefore, movements[i-1].QtyAfter)
		}
	}
}

func BenchmarkLedgerApplyChange(b *testing.B) {
	store := inventorytest.NewStore()
	item := store.Put(inventory.StockItem{ID: uuid.New(), SKU: "TONIC", Unit: units.Milliliter, Active: true})
	ledger := inventory.Ledger{AllowNegative: true}
	ctx := context.Background()
	change := inventory.StockChange{Type: inventory.MovementIn, Delta: 200}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = store.Run(func(tx *inventorytest.Tx) error {
			locked, _ := tx.LockProducts(ctx, item.ID)
			current := locked[item.ID]
			_, err := ledger.ApplyChange(ctx, tx, &current, change)
			return err
		})
	}
}

func BenchmarkConvert(b *testing.B) {
	pairs := [][2]units.Unit{
		{units.Centiliter, units.Liter},
		{units.Milliliter, units.Liter},
		{units.Gram, units.Kilogram},
		{units.Piece, units.Piece},
	}
	for i := 0; i < b.N; i++ {
		p := pairs[i%len(pairs)]
		if _, err := units.Convert(5, p[0], p[1]); err != nil {
			b.Fatal(err)
		}
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	return sorted[index]
}
