// Package memory provides an in-process transactional store implementing
// every repository of the inventory core. A transaction holds the store
// lock for its whole duration and restores a snapshot on rollback.
package memory

import (
	"context"
	"sync"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain/catalog"
	"stockledger/internal/domain/movements"
	"stockledger/internal/domain/validation"
)

type entryKey struct {
	item     id.ID
	location id.ID
}

// Store holds all in-memory state.
type Store struct {
	mu sync.Mutex

	items     map[id.ID]catalog.Item
	locations map[id.ID]catalog.Location
	entries   map[entryKey]entity.InventoryEntry
	records   []entity.MovementRecord
	outbox    []movements.Event
	rules     map[string]validation.RuleConfig
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		items:     make(map[id.ID]catalog.Item),
		locations: make(map[id.ID]catalog.Location),
		entries:   make(map[entryKey]entity.InventoryEntry),
	}
}

// txKey marks a context that already holds the lock of one store.
type txKey struct{}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// lock acquires the store lock unless ctx already holds it.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type snapshot struct {
	entries map[entryKey]entity.InventoryEntry
	records int
	outbox  int
	rules   map[string]validation.RuleConfig
}

func (s *Store) snapshot() snapshot {
	entries := make(map[entryKey]entity.InventoryEntry, len(s.entries))
	for k, v := range s.entries {
		entries[k] = v
	}
	return snapshot{
		entries: entries,
		records: len(s.records),
		outbox:  len(s.outbox),
		rules:   s.rules,
	}
}

func (s *Store) restore(snap snapshot) {
	s.entries = snap.entries
	s.records = s.records[:snap.records]
	s.outbox = s.outbox[:snap.outbox]
	s.rules = snap.rules
}

// Compile-time check that TxManager implements tx.ReadOnlyManager interface.
var _ tx.ReadOnlyManager = (*TxManager)(nil)

// TxManager runs functions under the store lock with rollback on error.
type TxManager struct {
	store *Store
}

// NewTxManager creates a transaction manager for store.
func NewTxManager(store *Store) *TxManager {
	return &TxManager{store: store}
}

// RunInTransaction executes fn atomically. Nested calls reuse the outer
// transaction. After-commit hooks run once the lock is released.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s := m.store
	if s.inTx(ctx) {
		return fn(ctx)
	}

	txCtx, hooks := tx.WithHooks(context.WithValue(ctx, txKey{}, s))

	err := func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		snap := s.snapshot()
		if err := fn(txCtx); err != nil {
			s.restore(snap)
			return err
		}
		return nil
	}()
	if err != nil {
		return err
	}

	hooks.Run(ctx)
	return nil
}

// ReadOnly executes fn under the store lock.
func (m *TxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.RunInTransaction(ctx, fn)
}
