package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
)

func leg(item id.ID, from, to *id.ID, moved, before, after int64, mt MovementType) MovementRecord {
	return MovementRecord{
		ID:             id.New(),
		ItemID:         item,
		FromLocationID: from,
		ToLocationID:   to,
		QuantityMoved:  moved,
		QuantityBefore: before,
		QuantityAfter:  after,
		MovementType:   mt,
	}
}

func TestMovementRecordValidate(t *testing.T) {
	item, a, b := id.New(), id.New(), id.New()

	tests := []struct {
		name    string
		rec     MovementRecord
		wantErr func(error) bool
	}{
		{name: "increment leg", rec: leg(item, nil, &a, 3, 2, 5, MovementCreate)},
		{name: "decrement leg", rec: leg(item, &a, nil, 3, 5, 2, MovementMove)},
		{name: "both endpoints", rec: leg(item, &a, &b, 3, 5, 2, MovementMove), wantErr: apperror.IsInvalidMovement},
		{name: "no endpoint", rec: leg(item, nil, nil, 3, 0, 3, MovementCreate), wantErr: apperror.IsInvalidMovement},
		{name: "unbalanced increment", rec: leg(item, nil, &a, 3, 2, 4, MovementCreate), wantErr: apperror.IsAppError},
		{name: "zero quantity", rec: leg(item, nil, &a, 0, 2, 2, MovementAdjust), wantErr: apperror.IsInvalidMovement},
		{name: "unknown type", rec: leg(item, nil, &a, 1, 0, 1, "teleport"), wantErr: apperror.IsAppError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, tt.wantErr(err), "unexpected error %v", err)
		})
	}
}

func TestReplay(t *testing.T) {
	item, a, b := id.New(), id.New(), id.New()

	records := []MovementRecord{
		leg(item, nil, &a, 10, 0, 10, MovementCreate),
		leg(item, &a, nil, 4, 10, 6, MovementMove),
		leg(item, nil, &b, 4, 0, 4, MovementMove),
		leg(item, &b, nil, 4, 4, 0, MovementRemove),
	}

	totals := Replay(records)

	assert.Equal(t, map[id.ID]int64{a: 6}, totals)
}

func TestMovementTypeIsValid(t *testing.T) {
	for _, mt := range []MovementType{MovementCreate, MovementMove, MovementAdjust, MovementRemove} {
		assert.True(t, mt.IsValid(), mt)
	}
	assert.False(t, MovementType("").IsValid())
}
