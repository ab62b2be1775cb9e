package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
)

func TestExtractDBColumns_SkipsIgnoredFields(t *testing.T) {
	assert.Equal(t, []string{"item_id", "location_id", "quantity", "version", "updated_at"}, InventoryColumns)

	assert.Contains(t, MovementColumns, "transaction_id")
	assert.Contains(t, MovementColumns, "estimated_value")
	assert.NotContains(t, MovementColumns, "warnings")
	assert.NotContains(t, MovementColumns, "-")
}

func TestExtractDBColumns_Embedded(t *testing.T) {
	type inner struct {
		A string `db:"a"`
		B string `db:"-"`
	}
	type outer struct {
		inner
		C int `db:"c"`
		D int
	}

	assert.Equal(t, []string{"a", "c"}, ExtractDBColumns[outer]())
}

func TestStructToMap(t *testing.T) {
	itemID, locID := id.New(), id.New()
	entry := &entity.InventoryEntry{ItemID: itemID, LocationID: locID, Quantity: 7, Version: 2}

	m := StructToMap(entry)
	assert.Len(t, m, len(InventoryColumns))
	assert.Equal(t, itemID, m["item_id"])
	assert.Equal(t, int64(7), m["quantity"])
	assert.Equal(t, 2, m["version"])

	var nilEntry *entity.InventoryEntry
	assert.Nil(t, StructToMap(nilEntry))
	assert.Nil(t, StructToMap(42))
}

func TestQualify(t *testing.T) {
	assert.Equal(t, []string{"m.id", "m.item_id"}, Qualify("m", []string{"id", "item_id"}))
}
