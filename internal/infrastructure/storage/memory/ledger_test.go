package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/infrastructure/storage/memory"
)

func TestLedgerRepo_ApplyDetectsLostRaces(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	item, loc := id.New(), id.New()

	// seed stores 5 units at version 1 and returns the stored entry.
	seed := func(t *testing.T, ctx context.Context, repo *memory.LedgerRepo) *entity.InventoryEntry {
		t.Helper()
		tr, err := entity.ApplyDelta(nil, item, loc, 5, now)
		require.NoError(t, err)
		require.NoError(t, repo.Apply(ctx, tr))
		e, err := repo.GetEntry(ctx, item, loc)
		require.NoError(t, err)
		require.NotNil(t, e)
		return e
	}

	tests := []struct {
		name string
		// race applies a competing write, then returns the transition built
		// from the state read before it.
		race func(t *testing.T, ctx context.Context, repo *memory.LedgerRepo) entity.EntryTransition
	}{
		{
			name: "insert over an existing key",
			race: func(t *testing.T, ctx context.Context, repo *memory.LedgerRepo) entity.EntryTransition {
				stale, err := entity.ApplyDelta(nil, item, loc, 2, now)
				require.NoError(t, err)
				seed(t, ctx, repo)
				return stale
			},
		},
		{
			name: "update with a stale version",
			race: func(t *testing.T, ctx context.Context, repo *memory.LedgerRepo) entity.EntryTransition {
				read := seed(t, ctx, repo)
				stale, err := entity.ApplyDelta(read, item, loc, 1, now)
				require.NoError(t, err)

				winner, err := entity.ApplyDelta(read, item, loc, 3, now)
				require.NoError(t, err)
				require.NoError(t, repo.Apply(ctx, winner))
				return stale
			},
		},
		{
			name: "update of a deleted row",
			race: func(t *testing.T, ctx context.Context, repo *memory.LedgerRepo) entity.EntryTransition {
				read := seed(t, ctx, repo)
				stale, err := entity.ApplyDelta(read, item, loc, 1, now)
				require.NoError(t, err)

				winner, err := entity.ApplyDelta(read, item, loc, -5, now)
				require.NoError(t, err)
				require.NoError(t, repo.Apply(ctx, winner))
				return stale
			},
		},
		{
			name: "delete with a stale version",
			race: func(t *testing.T, ctx context.Context, repo *memory.LedgerRepo) entity.EntryTransition {
				read := seed(t, ctx, repo)
				stale, err := entity.ApplyDelta(read, item, loc, -5, now)
				require.NoError(t, err)
				require.Equal(t, entity.EntryOpDelete, stale.Op)

				winner, err := entity.ApplyDelta(read, item, loc, 4, now)
				require.NoError(t, err)
				require.NoError(t, repo.Apply(ctx, winner))
				return stale
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			repo := memory.NewLedgerRepo(memory.NewStore())

			stale := tt.race(t, ctx, repo)
			before, err := repo.GetEntry(ctx, item, loc)
			require.NoError(t, err)

			err = repo.Apply(ctx, stale)
			assert.True(t, apperror.IsConcurrencyConflict(err), "got %v", err)

			after, err := repo.GetEntry(ctx, item, loc)
			require.NoError(t, err)
			assert.Equal(t, before, after, "losing write leaves the row untouched")
		})
	}
}

func TestTxManager_RollbackRestoresEntries(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	repo := memory.NewLedgerRepo(store)
	txm := memory.NewTxManager(store)
	item, loc := id.New(), id.New()

	err := txm.RunInTransaction(ctx, func(ctx context.Context) error {
		tr, err := entity.ApplyDelta(nil, item, loc, 7, time.Now())
		require.NoError(t, err)
		require.NoError(t, repo.Apply(ctx, tr))
		return errors.New("abort")
	})
	require.Error(t, err)

	e, err := repo.GetEntry(ctx, item, loc)
	require.NoError(t, err)
	assert.Nil(t, e)
}
