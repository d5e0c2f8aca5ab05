// Package inventorytest provides an in-memory stock store for tests of
// packages that write to the inventory ledger.
package inventorytest

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
)

// Store keeps products and movements in memory. Run gives callers
// all-or-nothing semantics similar to a database transaction.
type Store struct {
	mu        sync.Mutex
	products  map[uuid.UUID]inventory.StockItem
	movements []inventory.Movement

	// FailMovementAfter makes InsertMovement fail once this many movements
	// were written in a transaction. Zero disables it.
	FailMovementAfter int
	// FailErr is returned by the injected failure.
	FailErr error
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{products: make(map[uuid.UUID]inventory.StockItem)}
}

// Put inserts or replaces a product, assigning an id when missing.
func (s *Store) Put(item inventory.StockItem) inventory.StockItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	s.products[item.ID] = item
	return item
}

// Item returns the committed state of a product.
func (s *Store) Item(id uuid.UUID) (inventory.StockItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.products[id]
	return item, ok
}

// Items returns all committed products sorted by name.
func (s *Store) Items() []inventory.StockItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]inventory.StockItem, 0, len(s.products))
	for _, item := range s.products {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Movements returns the committed ledger in insertion order.
func (s *Store) Movements() []inventory.Movement {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]inventory.Movement, len(s.movements))
	copy(out, s.movements)
	return out
}

// Run executes fn against a copy of the state and commits it only when fn
// returns nil.
func (s *Store) Run(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &Tx{
		products:  make(map[uuid.UUID]inventory.StockItem, len(s.products)),
		failAfter: s.FailMovementAfter,
		failErr:   s.FailErr,
	}
	for id, item := range s.products {
		tx.products[id] = item
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.products = tx.products
	s.movements = append(s.movements, tx.movements...)
	return nil
}

// Tx is a pending in-memory transaction. It implements inventory.TxRepository.
type Tx struct {
	products  map[uuid.UUID]inventory.StockItem
	movements []inventory.Movement
	failAfter int
	failErr   error
	// Locked records LockProducts calls in order.
	Locked [][]uuid.UUID
}

var _ inventory.TxRepository = (*Tx)(nil)

// Put stages a product insert or replacement.
func (t *Tx) Put(item inventory.StockItem) {
	t.products[item.ID] = item
}

// LockProducts returns the staged products for ids.
func (t *Tx) LockProducts(_ context.Context, ids ...uuid.UUID) (map[uuid.UUID]inventory.StockItem, error) {
	t.Locked = append(t.Locked, append([]uuid.UUID(nil), ids...))
	out := make(map[uuid.UUID]inventory.StockItem, len(ids))
	for _, id := range ids {
		if item, ok := t.products[id]; ok {
			out[id] = item
		}
	}
	return out, nil
}

// SetStock stages a new balance.
func (t *Tx) SetStock(_ context.Context, productID uuid.UUID, qty float64) error {
	item, ok := t.products[productID]
	if !ok {
		return inventory.ErrProductNotFound
	}
	item.CurrentStock = qty
	t.products[productID] = item
	return nil
}

// InsertMovement stages a ledger row.
func (t *Tx) InsertMovement(_ context.Context, mv inventory.Movement) error {
	if t.failAfter > 0 && len(t.movements) >= t.failAfter {
		return t.failErr
	}
	t.movements = append(t.movements, mv)
	return nil
}
