package ledger

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain/catalog"
	"stockledger/pkg/logger"
)

// ChangeListener is notified whenever an entry changes. Calls happen after
// the enclosing transaction commits and are dropped on rollback.
type ChangeListener interface {
	EntryChanged(ctx context.Context, itemID, locationID id.ID)
}

// Service provides ledger operations with conservation guarantees.
type Service struct {
	repo      Repository
	txManager tx.Manager
	lookup    catalog.Lookup
	listeners []ChangeListener
	now       func() time.Time
}

// NewService creates a new ledger service.
func NewService(repo Repository, txManager tx.Manager, lookup catalog.Lookup) *Service {
	return &Service{
		repo:      repo,
		txManager: txManager,
		lookup:    lookup,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// AddListener registers a write-path listener.
func (s *Service) AddListener(l ChangeListener) {
	s.listeners = append(s.listeners, l)
}

// GetEntry returns the current entry and whether it exists.
func (s *Service) GetEntry(ctx context.Context, itemID, locationID id.ID) (entity.InventoryEntry, bool, error) {
	e, err := s.repo.GetEntry(ctx, itemID, locationID)
	if err != nil {
		return entity.InventoryEntry{}, false, fmt.Errorf("get entry: %w", err)
	}
	if e == nil {
		return entity.InventoryEntry{}, false, nil
	}
	return *e, true, nil
}

// Quantity returns the current quantity, zero when absent.
func (s *Service) Quantity(ctx context.Context, itemID, locationID id.ID) (int64, error) {
	e, ok, err := s.GetEntry(ctx, itemID, locationID)
	if err != nil || !ok {
		return 0, err
	}
	return e.Quantity, nil
}

// Upsert adds delta to the entry, creating it on first arrival and deleting
// it at zero. A result below zero fails with InsufficientQuantity and
// nothing is written.
func (s *Service) Upsert(ctx context.Context, itemID, locationID id.ID, delta int64) (entity.EntryTransition, error) {
	var result entity.EntryTransition

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetEntryForUpdate(ctx, itemID, locationID)
		if err != nil {
			return fmt.Errorf("lock entry: %w", err)
		}

		t, err := entity.ApplyDelta(current, itemID, locationID, delta, s.now())
		if err != nil {
			return err
		}
		if err := s.apply(ctx, t); err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return entity.EntryTransition{}, err
	}

	return result, nil
}

// SetQuantity sets the entry to quantity, computing the delta from the
// locked row. When expected is non-nil and differs from the stored
// quantity the call fails with ConcurrentModification.
func (s *Service) SetQuantity(ctx context.Context, itemID, locationID id.ID, quantity int64, expected *int64) (entity.EntryTransition, error) {
	if quantity < 0 {
		return entity.EntryTransition{}, apperror.NewInvalidMovement("quantity cannot be negative")
	}

	var result entity.EntryTransition

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetEntryForUpdate(ctx, itemID, locationID)
		if err != nil {
			return fmt.Errorf("lock entry: %w", err)
		}

		before := int64(0)
		if current != nil {
			before = current.Quantity
		}
		if expected != nil && *expected != before {
			return apperror.NewConcurrentModification("inventory_entry", itemID.String()+"@"+locationID.String()).
				WithDetail("expected_quantity", *expected).
				WithDetail("actual_quantity", before)
		}

		t, err := entity.ApplyDelta(current, itemID, locationID, quantity-before, s.now())
		if err != nil {
			return err
		}
		if err := s.apply(ctx, t); err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return entity.EntryTransition{}, err
	}

	return result, nil
}

// Move transfers quantity between two locations. The destination entry is
// merged into when it already holds the item. Both halves commit together.
func (s *Service) Move(ctx context.Context, itemID, fromID, toID id.ID, quantity int64) (entity.TransferPlan, error) {
	if fromID == toID {
		return entity.TransferPlan{}, apperror.NewInvalidMovement("source and destination are the same location")
	}
	if quantity <= 0 {
		return entity.TransferPlan{}, apperror.NewInvalidMovement("quantity must be positive")
	}

	var plan entity.TransferPlan

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		source, dest, err := s.lockPair(ctx, itemID, fromID, toID)
		if err != nil {
			return err
		}

		p, err := entity.PlanTransfer(source, dest, itemID, fromID, toID, quantity, s.now())
		if err != nil {
			return err
		}
		if err := s.apply(ctx, p.Source); err != nil {
			return err
		}
		if err := s.apply(ctx, p.Dest); err != nil {
			return err
		}
		plan = p
		return nil
	})
	if err != nil {
		return entity.TransferPlan{}, err
	}

	logger.Debug(ctx, "ledger move applied",
		"item_id", itemID,
		"from", fromID,
		"to", toID,
		"quantity", quantity,
	)

	return plan, nil
}

// lockPair locks both rows in location-id order so two opposing moves cannot deadlock.
func (s *Service) lockPair(ctx context.Context, itemID, fromID, toID id.ID) (source, dest *entity.InventoryEntry, err error) {
	first, second := fromID, toID
	swapped := bytes.Compare(fromID[:], toID[:]) > 0
	if swapped {
		first, second = toID, fromID
	}

	a, err := s.repo.GetEntryForUpdate(ctx, itemID, first)
	if err != nil {
		return nil, nil, fmt.Errorf("lock entry: %w", err)
	}
	b, err := s.repo.GetEntryForUpdate(ctx, itemID, second)
	if err != nil {
		return nil, nil, fmt.Errorf("lock entry: %w", err)
	}

	if swapped {
		return b, a, nil
	}
	return a, b, nil
}

func (s *Service) apply(ctx context.Context, t entity.EntryTransition) error {
	if t.Op == entity.EntryOpNone {
		return nil
	}
	if err := s.repo.Apply(ctx, t); err != nil {
		if apperror.IsAppError(err) {
			return err
		}
		return fmt.Errorf("apply %s: %w", t.Op, err)
	}
	itemID, locationID := t.ItemID, t.LocationID
	for _, l := range s.listeners {
		tx.AfterCommit(ctx, func(ctx context.Context) {
			l.EntryChanged(ctx, itemID, locationID)
		})
	}
	return nil
}

// ItemLocations returns every location currently holding the item.
func (s *Service) ItemLocations(ctx context.Context, itemID id.ID) ([]entity.InventoryEntry, error) {
	entries, err := s.repo.ListEntries(ctx, EntryFilter{ItemID: &itemID})
	if err != nil {
		return nil, fmt.Errorf("list item entries: %w", err)
	}
	return entries, nil
}

// LocationItems returns every item currently held at the location.
func (s *Service) LocationItems(ctx context.Context, locationID id.ID) ([]entity.InventoryEntry, error) {
	entries, err := s.repo.ListEntries(ctx, EntryFilter{LocationID: &locationID})
	if err != nil {
		return nil, fmt.Errorf("list location entries: %w", err)
	}
	return entries, nil
}

// LocationTotal returns the total quantity of all items at a location.
func (s *Service) LocationTotal(ctx context.Context, locationID id.ID) (int64, error) {
	entries, err := s.LocationItems(ctx, locationID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		total += e.Quantity
	}
	return total, nil
}
