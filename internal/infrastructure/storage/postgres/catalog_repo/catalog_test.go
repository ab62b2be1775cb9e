package catalog_repo

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/catalog"
)

func TestCatalogRepo_Queries(t *testing.T) {
	repo := NewCatalogRepo(nil)
	itemID := id.New()
	capacity := int64(100)

	tests := []struct {
		name     string
		build    func() (string, []any, error)
		wantSQL  string
		wantArgs int
	}{
		{
			name:     "item by id",
			build:    repo.items.byIDQuery(itemID).ToSql,
			wantSQL:  "SELECT id, name, category, status, value FROM cat_items WHERE id = $1",
			wantArgs: 1,
		},
		{
			name:     "location by id",
			build:    repo.locations.byIDQuery(itemID).ToSql,
			wantSQL:  "SELECT id, name, parent_id, capacity FROM cat_locations WHERE id = $1",
			wantArgs: 1,
		},
		{
			name: "location upsert",
			build: repo.locations.upsertQuery(&catalog.Location{
				ID: id.New(), Name: "Shelf A", Capacity: &capacity,
			}).ToSql,
			wantSQL: "INSERT INTO cat_locations (capacity,id,name,parent_id) VALUES ($1,$2,$3,$4) " +
				"ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, parent_id = EXCLUDED.parent_id, capacity = EXCLUDED.capacity",
			wantArgs: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := tt.build()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Len(t, args, tt.wantArgs)
		})
	}
}

func TestCatalogRepo_ItemUpsertCarriesValue(t *testing.T) {
	repo := NewCatalogRepo(nil)
	item := &catalog.Item{
		ID:     id.New(),
		Name:   "Drill",
		Status: catalog.ItemStatusActive,
		Value:  decimal.RequireFromString("129.90"),
	}

	_, args, err := repo.items.upsertQuery(item).ToSql()
	require.NoError(t, err)
	assert.Contains(t, args, item.Value)
}
