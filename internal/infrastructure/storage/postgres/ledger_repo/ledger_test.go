package ledger_repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
)

func TestLedgerRepo_UpdateQueryChecksVersion(t *testing.T) {
	r := NewLedgerRepo(nil)
	itemID, locID := id.New(), id.New()
	now := time.Now()

	tr, err := entity.ApplyDelta(&entity.InventoryEntry{
		ItemID: itemID, LocationID: locID, Quantity: 10, Version: 3,
	}, itemID, locID, -4, now)
	require.NoError(t, err)
	require.Equal(t, entity.EntryOpUpdate, tr.Op)

	sql, args, err := r.updateQuery(tr).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "UPDATE inv_entries SET quantity = $1, version = $2, updated_at = $3")
	assert.Contains(t, sql, "version = $")
	assert.Contains(t, args, int64(6))
	assert.Contains(t, args, 4)
	assert.Contains(t, args, 3)
}

func TestLedgerRepo_InsertQuerySkipsConflict(t *testing.T) {
	r := NewLedgerRepo(nil)
	itemID, locID := id.New(), id.New()

	tr, err := entity.ApplyDelta(nil, itemID, locID, 5, time.Now())
	require.NoError(t, err)
	require.Equal(t, entity.EntryOpInsert, tr.Op)

	sql, args, err := r.insertQuery(tr).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "INSERT INTO inv_entries")
	assert.Contains(t, sql, "ON CONFLICT (item_id, location_id) DO NOTHING")
	assert.Len(t, args, 5)
}

func TestLedgerRepo_DeleteQueryChecksVersion(t *testing.T) {
	r := NewLedgerRepo(nil)
	itemID, locID := id.New(), id.New()

	tr, err := entity.ApplyDelta(&entity.InventoryEntry{
		ItemID: itemID, LocationID: locID, Quantity: 2, Version: 7,
	}, itemID, locID, -2, time.Now())
	require.NoError(t, err)
	require.Equal(t, entity.EntryOpDelete, tr.Op)

	sql, args, err := r.deleteQuery(tr).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "DELETE FROM inv_entries WHERE")
	assert.Contains(t, args, 7)
}

func TestLedgerRepo_ListQueryFilters(t *testing.T) {
	r := NewLedgerRepo(nil)
	locID := id.New()

	sql, args, err := r.listQuery(ledger.EntryFilter{LocationID: &locID}).ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT item_id, location_id, quantity, version, updated_at FROM inv_entries WHERE location_id = $1 ORDER BY location_id, item_id",
		sql)
	assert.Equal(t, []any{locID}, args)

	sql, args, err = r.listQuery(ledger.EntryFilter{}).ToSql()
	require.NoError(t, err)
	assert.NotContains(t, sql, "WHERE")
	assert.Empty(t, args)
}
