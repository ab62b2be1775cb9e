// Package ledger_repo provides the PostgreSQL ledger of current quantities.
package ledger_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/postgres"
)

// LedgerRepo implements ledger.Repository over inv_entries.
type LedgerRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewLedgerRepo creates a new ledger repository.
func NewLedgerRepo(txManager *postgres.TxManager) *LedgerRepo {
	return &LedgerRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *LedgerRepo) entryQuery(itemID, locationID id.ID) squirrel.SelectBuilder {
	return r.builder.Select(postgres.InventoryColumns...).
		From(postgres.TableInventory).
		Where(squirrel.Eq{"item_id": itemID, "location_id": locationID})
}

// GetEntry returns the entry, or nil when the item is absent from the location.
func (r *LedgerRepo) GetEntry(ctx context.Context, itemID, locationID id.ID) (*entity.InventoryEntry, error) {
	return r.get(ctx, r.entryQuery(itemID, locationID))
}

// GetEntryForUpdate is GetEntry holding a row lock until the transaction ends.
// An absent row cannot be locked; a concurrent insert of the same key then
// surfaces as a unique violation on Apply.
func (r *LedgerRepo) GetEntryForUpdate(ctx context.Context, itemID, locationID id.ID) (*entity.InventoryEntry, error) {
	return r.get(ctx, r.entryQuery(itemID, locationID).Suffix("FOR UPDATE"))
}

func (r *LedgerRepo) get(ctx context.Context, q squirrel.SelectBuilder) (*entity.InventoryEntry, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var entry entity.InventoryEntry
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &entry, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return &entry, nil
}

// Apply persists a transition with an optimistic version check.
func (r *LedgerRepo) Apply(ctx context.Context, t entity.EntryTransition) error {
	var q squirrel.Sqlizer

	switch t.Op {
	case entity.EntryOpNone:
		return nil
	case entity.EntryOpInsert:
		q = r.insertQuery(t)
	case entity.EntryOpUpdate:
		q = r.updateQuery(t)
	case entity.EntryOpDelete:
		q = r.deleteQuery(t)
	default:
		return fmt.Errorf("unknown entry op %d", t.Op)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.TranslateError(fmt.Errorf("%s entry: %w", t.Op, err))
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("InventoryEntry", entryKey(t.ItemID, t.LocationID)).
			WithDetail("op", t.Op.String())
	}
	return nil
}

// insertQuery skips the row on conflict so a lost race shows up as zero rows affected.
func (r *LedgerRepo) insertQuery(t entity.EntryTransition) squirrel.InsertBuilder {
	return r.builder.Insert(postgres.TableInventory).
		SetMap(postgres.StructToMap(t.After)).
		Suffix("ON CONFLICT (item_id, location_id) DO NOTHING")
}

func (r *LedgerRepo) updateQuery(t entity.EntryTransition) squirrel.UpdateBuilder {
	return r.builder.Update(postgres.TableInventory).
		Set("quantity", t.After.Quantity).
		Set("version", t.After.Version).
		Set("updated_at", t.After.UpdatedAt).
		Where(squirrel.Eq{
			"item_id":     t.ItemID,
			"location_id": t.LocationID,
			"version":     t.ExpectedVersion(),
		})
}

func (r *LedgerRepo) deleteQuery(t entity.EntryTransition) squirrel.DeleteBuilder {
	return r.builder.Delete(postgres.TableInventory).
		Where(squirrel.Eq{
			"item_id":     t.ItemID,
			"location_id": t.LocationID,
			"version":     t.ExpectedVersion(),
		})
}

// ListEntries returns entries matching filter ordered by (location, item).
func (r *LedgerRepo) ListEntries(ctx context.Context, filter ledger.EntryFilter) ([]entity.InventoryEntry, error) {
	sql, args, err := r.listQuery(filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var entries []entity.InventoryEntry
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &entries, sql, args...); err != nil {
		return nil, fmt.Errorf("select entries: %w", err)
	}
	return entries, nil
}

func (r *LedgerRepo) listQuery(filter ledger.EntryFilter) squirrel.SelectBuilder {
	q := r.builder.Select(postgres.InventoryColumns...).From(postgres.TableInventory)

	if filter.ItemID != nil {
		q = q.Where(squirrel.Eq{"item_id": *filter.ItemID})
	}
	if filter.LocationID != nil {
		q = q.Where(squirrel.Eq{"location_id": *filter.LocationID})
	}

	return q.OrderBy("location_id", "item_id")
}

func entryKey(itemID, locationID id.ID) string {
	return itemID.String() + "@" + locationID.String()
}

var _ ledger.Repository = (*LedgerRepo)(nil)
