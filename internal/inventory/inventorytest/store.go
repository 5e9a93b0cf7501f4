// Package inventorytest provides an in-memory inventory repository for tests.
package inventorytest

import (
	"context"
	"sort"
	"sync"

	"github.com/odyssey-erp/barstock/internal/inventory"
	"github.com/odyssey-erp/barstock/internal/shared"
)

// Store implements inventory.RepositoryPort in memory. Transactions run one
// at a time and only publish their writes on commit.
type Store struct {
	mu         sync.Mutex
	items      map[int64]inventory.StockItem
	prebatches map[int64]inventory.Prebatch
	events     []inventory.Event
	movements  []inventory.Movement
	keys       map[string]bool
	failures   map[string]error
	nextID     int64
	Commits    int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		items:      make(map[int64]inventory.StockItem),
		prebatches: make(map[int64]inventory.Prebatch),
		keys:       make(map[string]bool),
		failures:   make(map[string]error),
		nextID:     1000,
	}
}

// AddItem seeds an item.
func (s *Store) AddItem(item inventory.StockItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = item
}

// AddPrebatch seeds a prebatch.
func (s *Store) AddPrebatch(p inventory.Prebatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prebatches[p.ID] = p
}

// FailOn makes the named TxRepository method return err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = err
}

// Item returns the committed state of an item.
func (s *Store) Item(id int64) inventory.StockItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[id]
}

// Prebatch returns the committed state of a prebatch.
func (s *Store) Prebatch(id int64) inventory.Prebatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prebatches[id]
}

// Events returns committed events in insertion order.
func (s *Store) Events() []inventory.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]inventory.Event(nil), s.events...)
}

// Movements returns committed movements in insertion order.
func (s *Store) Movements() []inventory.Movement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]inventory.Movement(nil), s.movements...)
}

// WithTx runs fn against a staged copy and commits it when fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &tx{
		store:      s,
		items:      make(map[int64]inventory.StockItem),
		prebatches: make(map[int64]inventory.Prebatch),
		keys:       make(map[string]bool),
		nextID:     s.nextID,
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, item := range tx.items {
		s.items[id] = item
	}
	for id, p := range tx.prebatches {
		s.prebatches[id] = p
	}
	for k := range tx.keys {
		s.keys[k] = true
	}
	s.events = append(s.events, tx.events...)
	s.movements = append(s.movements, tx.movements...)
	s.nextID = tx.nextID
	s.Commits++
	return nil
}

// ListLowStock implements inventory.RepositoryPort.
func (s *Store) ListLowStock(_ context.Context) ([]inventory.StockItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inventory.StockItem
	for _, item := range s.items {
		if item.Active && item.StockUnits <= item.LowStockThreshold {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListPrebatches implements inventory.RepositoryPort.
func (s *Store) ListPrebatches(_ context.Context, activeOnly bool) ([]inventory.Prebatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inventory.Prebatch
	for _, p := range s.prebatches {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// ListMovements implements inventory.RepositoryPort.
func (s *Store) ListMovements(_ context.Context, filter inventory.MovementFilter) ([]inventory.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inventory.Movement
	for i := len(s.movements) - 1; i >= 0; i-- {
		if s.movements[i].Ref == filter.Ref {
			out = append(out, s.movements[i])
		}
	}
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

type tx struct {
	store      *Store
	items      map[int64]inventory.StockItem
	prebatches map[int64]inventory.Prebatch
	events     []inventory.Event
	movements  []inventory.Movement
	keys       map[string]bool
	nextID     int64
}

func (t *tx) fail(method string) error {
	return t.store.failures[method]
}

func (t *tx) id() int64 {
	t.nextID++
	return t.nextID
}

func (t *tx) LockItems(_ context.Context, ids []int64) ([]inventory.StockItem, error) {
	if err := t.fail("LockItems"); err != nil {
		return nil, err
	}
	var out []inventory.StockItem
	for _, id := range ids {
		if item, ok := t.items[id]; ok {
			out = append(out, item)
			continue
		}
		if item, ok := t.store.items[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (t *tx) LockPrebatches(_ context.Context, ids []int64) ([]inventory.Prebatch, error) {
	if err := t.fail("LockPrebatches"); err != nil {
		return nil, err
	}
	var out []inventory.Prebatch
	for _, id := range ids {
		if p, ok := t.prebatches[id]; ok {
			out = append(out, p)
			continue
		}
		if p, ok := t.store.prebatches[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *tx) InsertPrebatch(_ context.Context, p inventory.Prebatch) (int64, error) {
	if err := t.fail("InsertPrebatch"); err != nil {
		return 0, err
	}
	p.ID = t.id()
	t.prebatches[p.ID] = p
	return p.ID, nil
}

func (t *tx) InsertEvent(_ context.Context, e inventory.Event) (int64, error) {
	if err := t.fail("InsertEvent"); err != nil {
		return 0, err
	}
	e.ID = t.id()
	t.events = append(t.events, e)
	return e.ID, nil
}

func (t *tx) InsertMovements(_ context.Context, eventID int64, movements []inventory.Movement) error {
	if err := t.fail("InsertMovements"); err != nil {
		return err
	}
	for _, m := range movements {
		m.ID = t.id()
		m.EventID = eventID
		t.movements = append(t.movements, m)
	}
	return nil
}

func (t *tx) UpdateItemStock(_ context.Context, itemID int64, units float64) error {
	if err := t.fail("UpdateItemStock"); err != nil {
		return err
	}
	item, ok := t.items[itemID]
	if !ok {
		item, ok = t.store.items[itemID]
	}
	if !ok {
		return &inventory.NotFoundError{Entity: "item"}
	}
	item.StockUnits = units
	t.items[itemID] = item
	return nil
}

func (t *tx) UpdatePrebatchStock(_ context.Context, prebatchID int64, ml float64) error {
	if err := t.fail("UpdatePrebatchStock"); err != nil {
		return err
	}
	p, ok := t.prebatches[prebatchID]
	if !ok {
		p, ok = t.store.prebatches[prebatchID]
	}
	if !ok {
		return &inventory.NotFoundError{Entity: "prebatch"}
	}
	p.RemainingML = ml
	t.prebatches[prebatchID] = p
	return nil
}

func (t *tx) ClaimIdempotencyKey(_ context.Context, module, key string) error {
	k := module + ":" + key
	if t.store.keys[k] || t.keys[k] {
		return shared.ErrIdempotencyConflict
	}
	t.keys[k] = true
	return nil
}
