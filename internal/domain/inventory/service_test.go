package inventory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/app"
	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/catalog"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/movements"
	"stockledger/internal/domain/reports"
	"stockledger/internal/domain/validation"
	"stockledger/internal/infrastructure/storage/memory"
	"stockledger/internal/infrastructure/telemetry"
)

type scenario struct {
	inv     *app.Inventory
	outbox  *memory.Outbox
	catalog *memory.CatalogRepo
	item    id.ID
	a, b    id.ID
}

func newScenario(t *testing.T, overrides map[string]validation.RuleOverride) *scenario {
	t.Helper()
	ctx := context.Background()

	store := memory.NewStore()
	backend := app.MemoryBackend(store)
	s := &scenario{
		outbox: backend.Publisher.(*memory.Outbox),
		item:   id.New(),
		a:      id.New(),
		b:      id.New(),
	}

	cat := backend.Catalog.(*memory.CatalogRepo)
	s.catalog = cat
	cat.PutItem(ctx, catalog.Item{ID: s.item, Name: "Drill", Category: "tools", Status: catalog.ItemStatusActive, Value: types.MustMoney("25.00")})
	cat.PutLocation(ctx, catalog.Location{ID: s.a, Name: "Shelf A"})
	cat.PutLocation(ctx, catalog.Location{ID: s.b, Name: "Shelf B"})

	inv, err := app.Build(ctx, backend, app.Options{
		LoadProvider:  telemetry.NewStaticProvider(10, 10),
		RuleOverrides: overrides,
	})
	require.NoError(t, err)
	s.inv = inv
	return s
}

func (s *scenario) quantity(t *testing.T, loc id.ID) int64 {
	t.Helper()
	q, err := s.inv.Ledger.Quantity(context.Background(), s.item, loc)
	require.NoError(t, err)
	return q
}

func (s *scenario) history(t *testing.T) []entity.MovementRecord {
	t.Helper()
	recs, err := s.inv.Recorder.ItemHistory(context.Background(), s.item)
	require.NoError(t, err)
	return recs
}

// assertReplayMatchesLedger checks that folding the audit log reproduces
// the current snapshot.
func (s *scenario) assertReplayMatchesLedger(t *testing.T) {
	t.Helper()
	entries, err := s.inv.Ledger.ItemLocations(context.Background(), s.item)
	require.NoError(t, err)

	snapshot := make(map[id.ID]int64, len(entries))
	for _, e := range entries {
		snapshot[e.LocationID] = e.Quantity
	}
	assert.Equal(t, snapshot, entity.Replay(s.history(t)))
}

func TestMovementLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newScenario(t, nil)
	svc := s.inv.Service

	// creation
	res, err := svc.RecordItemCreation(ctx, inventory.CreationRequest{ItemID: s.item, LocationID: s.a, Quantity: 10})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	created := res.Records[0]
	assert.Equal(t, entity.MovementCreate, created.MovementType)
	assert.Nil(t, created.FromLocationID)
	assert.EqualValues(t, 0, created.QuantityBefore)
	assert.EqualValues(t, 10, created.QuantityAfter)
	assert.EqualValues(t, 10, s.quantity(t, s.a))

	// partial transfer
	res, err = svc.MoveItem(ctx, inventory.MoveRequest{ItemID: s.item, FromLocationID: s.a, ToLocationID: s.b, Quantity: 4})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	out, in := res.Records[0], res.Records[1]
	assert.Equal(t, out.TransactionID, in.TransactionID)
	assert.Equal(t, &s.a, out.FromLocationID)
	assert.Nil(t, out.ToLocationID)
	assert.Equal(t, &s.b, in.ToLocationID)
	assert.Nil(t, in.FromLocationID)
	assert.EqualValues(t, 4, out.QuantityMoved)
	assert.EqualValues(t, 4, in.QuantityMoved)
	assert.EqualValues(t, 6, s.quantity(t, s.a))
	assert.EqualValues(t, 4, s.quantity(t, s.b))

	// full transfer deletes the source entry
	_, err = svc.MoveItem(ctx, inventory.MoveRequest{ItemID: s.item, FromLocationID: s.a, ToLocationID: s.b, Quantity: 6})
	require.NoError(t, err)
	_, ok, err := s.inv.Ledger.GetEntry(ctx, s.item, s.a)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.EqualValues(t, 10, s.quantity(t, s.b))

	// failed overdraw leaves everything untouched
	before := len(s.history(t))
	_, err = svc.MoveItem(ctx, inventory.MoveRequest{ItemID: s.item, FromLocationID: s.a, ToLocationID: s.b, Quantity: 5})
	assert.True(t, apperror.IsInsufficientQuantity(err), "got %v", err)
	assert.Len(t, s.history(t), before)
	assert.EqualValues(t, 10, s.quantity(t, s.b))

	// adjustment down is recorded against the source side
	res, err = svc.RecordQuantityAdjustment(ctx, inventory.AdjustmentRequest{ItemID: s.item, LocationID: s.b, Quantity: 7})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	adj := res.Records[0]
	assert.Equal(t, entity.MovementAdjust, adj.MovementType)
	assert.Equal(t, &s.b, adj.FromLocationID)
	assert.EqualValues(t, 3, adj.QuantityMoved)
	assert.EqualValues(t, 7, s.quantity(t, s.b))

	s.assertReplayMatchesLedger(t)

	// summary: legs count individually, transactions once
	summary, err := svc.GetMovementSummary(ctx, reports.SummaryFilter{})
	require.NoError(t, err)
	assert.Equal(t, 6, summary.TotalMovements)
	assert.Equal(t, 4, summary.LogicalMovements)
	assert.EqualValues(t, 10+4+4+6+6+3, summary.TotalItemsMoved)
	assert.Equal(t, 1, summary.MovementTypes["create"].Count)
	assert.Equal(t, 4, summary.MovementTypes["move"].Count)
	assert.Equal(t, 1, summary.MovementTypes["adjust"].Count)
	assert.Equal(t, 0, summary.MovementTypes["remove"].Count)
	assert.Equal(t, 1, summary.DistinctItems)
	assert.Len(t, summary.RecentMovements, 6)

	timeline, err := svc.GetItemTimeline(ctx, s.item)
	require.NoError(t, err)
	assert.Equal(t, 6, timeline.TotalMovements)
	assert.EqualValues(t, 7, timeline.TotalQuantity)
	require.Len(t, timeline.CurrentLocations, 1)
	assert.Equal(t, "Shelf B", timeline.CurrentLocations[0].LocationName)
}

func TestRemovalAndUpwardAdjustment(t *testing.T) {
	ctx := context.Background()
	s := newScenario(t, nil)
	svc := s.inv.Service

	_, err := svc.RecordItemCreation(ctx, inventory.CreationRequest{ItemID: s.item, LocationID: s.a, Quantity: 5})
	require.NoError(t, err)

	res, err := svc.RecordItemRemoval(ctx, inventory.RemovalRequest{ItemID: s.item, LocationID: s.a, Quantity: 2, Reason: "damaged"})
	require.NoError(t, err)
	rec := res.Records[0]
	assert.Equal(t, entity.MovementRemove, rec.MovementType)
	assert.Nil(t, rec.ToLocationID)
	assert.Equal(t, "damaged", rec.Reason)
	assert.EqualValues(t, 3, rec.QuantityAfter)

	_, err = svc.RecordItemRemoval(ctx, inventory.RemovalRequest{ItemID: s.item, LocationID: s.a, Quantity: 4})
	assert.True(t, apperror.IsInsufficientQuantity(err))

	res, err = svc.RecordQuantityAdjustment(ctx, inventory.AdjustmentRequest{ItemID: s.item, LocationID: s.a, Quantity: 8})
	require.NoError(t, err)
	rec = res.Records[0]
	assert.Equal(t, &s.a, rec.ToLocationID)
	assert.EqualValues(t, 5, rec.QuantityMoved)

	_, err = svc.RecordQuantityAdjustment(ctx, inventory.AdjustmentRequest{ItemID: s.item, LocationID: s.a, Quantity: 8})
	assert.True(t, apperror.IsInvalidMovement(err), "no-op adjustment")

	stale := int64(3)
	_, err = svc.RecordQuantityAdjustment(ctx, inventory.AdjustmentRequest{ItemID: s.item, LocationID: s.a, Quantity: 1, ExpectedQuantity: &stale})
	assert.True(t, apperror.IsConcurrencyConflict(err))
	assert.EqualValues(t, 8, s.quantity(t, s.a))

	s.assertReplayMatchesLedger(t)
}

func TestStructuralRejections(t *testing.T) {
	ctx := context.Background()
	s := newScenario(t, nil)
	svc := s.inv.Service

	_, err := svc.RecordItemCreation(ctx, inventory.CreationRequest{ItemID: s.item, LocationID: s.a, Quantity: 3})
	require.NoError(t, err)

	_, err = svc.MoveItem(ctx, inventory.MoveRequest{ItemID: s.item, FromLocationID: s.a, ToLocationID: s.a, Quantity: 1})
	assert.True(t, apperror.IsInvalidMovement(err))

	_, err = svc.MoveItem(ctx, inventory.MoveRequest{ItemID: s.item, FromLocationID: s.a, ToLocationID: s.b, Quantity: 0})
	assert.True(t, apperror.IsInvalidMovement(err))

	_, err = svc.MoveItem(ctx, inventory.MoveRequest{ItemID: id.New(), FromLocationID: s.a, ToLocationID: s.b, Quantity: 1})
	assert.True(t, apperror.IsNotFound(err))

	_, err = svc.RecordItemCreation(ctx, inventory.CreationRequest{ItemID: s.item, LocationID: id.New(), Quantity: 1})
	assert.True(t, apperror.IsNotFound(err))

	assert.Len(t, s.history(t), 1)
}

func TestDuplicateMovementIsRejected(t *testing.T) {
	ctx := context.Background()
	s := newScenario(t, nil)
	svc := s.inv.Service

	_, err := svc.RecordItemCreation(ctx, inventory.CreationRequest{ItemID: s.item, LocationID: s.a, Quantity: 10})
	require.NoError(t, err)

	move := inventory.MoveRequest{ItemID: s.item, FromLocationID: s.a, ToLocationID: s.b, Quantity: 2}
	_, err = svc.MoveItem(ctx, move)
	require.NoError(t, err)

	_, err = svc.MoveItem(ctx, move)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, validation.RuleDuplicateMovement, appErr.Details["rule"])

	// the reverse direction is a different movement
	_, err = svc.MoveItem(ctx, inventory.MoveRequest{ItemID: s.item, FromLocationID: s.b, ToLocationID: s.a, Quantity: 2})
	require.NoError(t, err)
}

func TestValidateMovementIsDryRun(t *testing.T) {
	ctx := context.Background()
	s := newScenario(t, nil)

	_, err := s.inv.Service.RecordItemCreation(ctx, inventory.CreationRequest{ItemID: s.item, LocationID: s.a, Quantity: 5})
	require.NoError(t, err)

	res, err := s.inv.Service.ValidateMovement(ctx, validation.Request{ItemID: s.item, FromLocationID: &s.a, ToLocationID: &s.b, Quantity: 9})
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.NotEmpty(t, res.Errors)

	res, err = s.inv.Service.ValidateMovement(ctx, validation.Request{ItemID: s.item, FromLocationID: &s.a, ToLocationID: &s.b, Quantity: 5})
	require.NoError(t, err)
	assert.True(t, res.IsValid)

	assert.EqualValues(t, 5, s.quantity(t, s.a))
	assert.Len(t, s.history(t), 1)
}

func TestHighValueWarningIsRecorded(t *testing.T) {
	ctx := context.Background()
	s := newScenario(t, nil)

	res, err := s.inv.Service.RecordItemCreation(ctx, inventory.CreationRequest{ItemID: s.item, LocationID: s.a, Quantity: 50})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)

	rec := res.Records[0]
	assert.Equal(t, res.Warnings, rec.Warnings)
	require.NotNil(t, rec.EstimatedValue)
	assert.True(t, types.MustMoney("1250").Equal(*rec.EstimatedValue))
	assert.NotEmpty(t, rec.RuleMetadata)
}

func TestBulkCommit(t *testing.T) {
	ctx := context.Background()
	noDuplicates := map[string]validation.RuleOverride{
		validation.RuleDuplicateMovement: {Enabled: ptr(false)},
	}

	batch := func(s *scenario) []inventory.BulkItem {
		return []inventory.BulkItem{
			{Request: validation.Request{ItemID: s.item, FromLocationID: &s.a, ToLocationID: &s.b, Quantity: 3}},
			{Request: validation.Request{ItemID: s.item, FromLocationID: &s.a, ToLocationID: &s.b, Quantity: 50}},
			{Request: validation.Request{ItemID: s.item, FromLocationID: &s.a, Quantity: 2}},
		}
	}

	t.Run("atomic failure commits nothing", func(t *testing.T) {
		s := newScenario(t, noDuplicates)
		_, err := s.inv.Service.RecordItemCreation(ctx, inventory.CreationRequest{ItemID: s.item, LocationID: s.a, Quantity: 10})
		require.NoError(t, err)

		res, err := s.inv.Service.CommitBulkMovement(ctx, batch(s), true)
		require.Error(t, err)
		assert.True(t, apperror.IsBusinessRuleViolation(err))
		require.NotNil(t, res)
		assert.Equal(t, 0, res.Committed)
		assert.Equal(t, []int{1}, res.Validation.FailedIndexes)

		assert.EqualValues(t, 10, s.quantity(t, s.a))
		assert.Len(t, s.history(t), 1)
	})

	t.Run("atomic execution failure rolls back earlier items", func(t *testing.T) {
		s := newScenario(t, noDuplicates)
		_, err := s.inv.Service.RecordItemCreation(ctx, inventory.CreationRequest{ItemID: s.item, LocationID: s.a, Quantity: 10})
		require.NoError(t, err)

		// each passes validation against the pre-batch state; together they overdraw
		items := []inventory.BulkItem{
			{Request: validation.Request{ItemID: s.item, FromLocationID: &s.a, ToLocationID: &s.b, Quantity: 6}},
			{Request: validation.Request{ItemID: s.item, FromLocationID: &s.a, Quantity: 7}},
		}
		res, err := s.inv.Service.CommitBulkMovement(ctx, items, true)
		assert.True(t, apperror.IsInsufficientQuantity(err), "got %v", err)
		require.NotNil(t, res)
		assert.Equal(t, 0, res.Committed)
		assert.Nil(t, res.Outcomes[0].Records)

		assert.EqualValues(t, 10, s.quantity(t, s.a))
		assert.EqualValues(t, 0, s.quantity(t, s.b))
		assert.Len(t, s.history(t), 1)
	})

	t.Run("non atomic commits the valid items", func(t *testing.T) {
		s := newScenario(t, noDuplicates)
		_, err := s.inv.Service.RecordItemCreation(ctx, inventory.CreationRequest{ItemID: s.item, LocationID: s.a, Quantity: 10})
		require.NoError(t, err)

		res, err := s.inv.Service.CommitBulkMovement(ctx, batch(s), false)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Committed)
		assert.True(t, res.Outcomes[0].Committed)
		assert.False(t, res.Outcomes[1].Committed)
		assert.NotEmpty(t, res.Outcomes[1].Errors)
		assert.True(t, res.Outcomes[2].Committed)

		assert.EqualValues(t, 5, s.quantity(t, s.a))
		assert.EqualValues(t, 3, s.quantity(t, s.b))
		s.assertReplayMatchesLedger(t)
	})

	t.Run("empty batch", func(t *testing.T) {
		s := newScenario(t, nil)
		_, err := s.inv.Service.CommitBulkMovement(ctx, nil, true)
		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeValidation, appErr.Code)
	})
}

func TestBulkRejectsRepeatedMovement(t *testing.T) {
	ctx := context.Background()
	s := newScenario(t, nil)
	svc := s.inv.Service

	_, err := svc.RecordItemCreation(ctx, inventory.CreationRequest{ItemID: s.item, LocationID: s.a, Quantity: 10})
	require.NoError(t, err)

	move := validation.Request{ItemID: s.item, FromLocationID: &s.a, ToLocationID: &s.b, Quantity: 2}
	res, err := svc.CommitBulkMovement(ctx, []inventory.BulkItem{{Request: move}, {Request: move}}, false)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Committed)
	assert.True(t, res.Outcomes[0].Committed)
	assert.False(t, res.Outcomes[1].Committed)
	require.NotEmpty(t, res.Outcomes[1].Errors)
	assert.Contains(t, res.Outcomes[1].Errors[0], "same batch")

	assert.EqualValues(t, 8, s.quantity(t, s.a))
	assert.EqualValues(t, 2, s.quantity(t, s.b))

	_, err = svc.CommitBulkMovement(ctx, []inventory.BulkItem{{Request: move}, {Request: move}}, true)
	assert.True(t, apperror.IsBusinessRuleViolation(err))
	assert.EqualValues(t, 8, s.quantity(t, s.a))
}

func TestOverdrawIntoFullLocationIsInsufficient(t *testing.T) {
	ctx := context.Background()
	s := newScenario(t, nil)
	svc := s.inv.Service

	capacity := int64(3)
	small := id.New()
	s.catalog.PutLocation(ctx, catalog.Location{ID: small, Name: "Bin", Capacity: &capacity})

	_, err := svc.RecordItemCreation(ctx, inventory.CreationRequest{ItemID: s.item, LocationID: s.a, Quantity: 2})
	require.NoError(t, err)

	_, err = svc.MoveItem(ctx, inventory.MoveRequest{ItemID: s.item, FromLocationID: s.a, ToLocationID: small, Quantity: 5})
	assert.True(t, apperror.IsInsufficientQuantity(err), "got %v", err)
	assert.EqualValues(t, 2, s.quantity(t, s.a))
}

func TestRuleOverridesApplyToExecution(t *testing.T) {
	ctx := context.Background()
	s := newScenario(t, nil)
	svc := s.inv.Service

	_, err := svc.RecordItemCreation(ctx, inventory.CreationRequest{ItemID: s.item, LocationID: s.a, Quantity: 10})
	require.NoError(t, err)

	expr := "quantity > 3"
	rules, err := svc.ApplyRuleOverrides(ctx, map[string]validation.RuleOverride{
		"small_moves_only": {Enabled: ptr(true), Expression: &expr},
	}, validation.OverrideMerge)
	require.NoError(t, err)
	assert.Contains(t, rules, "small_moves_only")
	assert.Contains(t, svc.Rules(), "small_moves_only")

	_, err = svc.MoveItem(ctx, inventory.MoveRequest{ItemID: s.item, FromLocationID: s.a, ToLocationID: s.b, Quantity: 4})
	assert.True(t, apperror.IsBusinessRuleViolation(err))

	_, err = svc.MoveItem(ctx, inventory.MoveRequest{ItemID: s.item, FromLocationID: s.a, ToLocationID: s.b, Quantity: 3})
	require.NoError(t, err)
}

func TestEventsAndUserAttribution(t *testing.T) {
	s := newScenario(t, nil)
	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "clerk-7"})

	_, err := s.inv.Service.RecordItemCreation(ctx, inventory.CreationRequest{ItemID: s.item, LocationID: s.a, Quantity: 4})
	require.NoError(t, err)
	res, err := s.inv.Service.MoveItem(ctx, inventory.MoveRequest{ItemID: s.item, FromLocationID: s.a, ToLocationID: s.b, Quantity: 1})
	require.NoError(t, err)

	for _, rec := range res.Records {
		require.NotNil(t, rec.UserID)
		assert.Equal(t, "clerk-7", *rec.UserID)
	}

	events := s.outbox.Events(ctx)
	require.Len(t, events, 3)
	for _, e := range events {
		assert.Equal(t, movements.EventMovementRecorded, e.EventType)
		assert.Equal(t, movements.AggregateItem, e.AggregateType)
		assert.Equal(t, s.item, e.AggregateID)
	}
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	s := newScenario(t, nil)
	svc := s.inv.Service

	_, err := svc.RecordItemCreation(ctx, inventory.CreationRequest{ItemID: s.item, LocationID: s.a, Quantity: 8})
	require.NoError(t, err)
	_, err = svc.MoveItem(ctx, inventory.MoveRequest{ItemID: s.item, FromLocationID: s.a, ToLocationID: s.b, Quantity: 3})
	require.NoError(t, err)

	locations, err := svc.GetItemLocations(ctx, s.item)
	require.NoError(t, err)
	assert.Len(t, locations, 2)

	items, err := svc.GetLocationItems(ctx, s.b)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.EqualValues(t, 3, items[0].Quantity)

	report, err := svc.GetLocationReport(ctx, s.a)
	require.NoError(t, err)
	assert.EqualValues(t, 5, report.TotalQuantity)
	assert.True(t, types.MustMoney("125").Equal(report.TotalValue))

	summary, err := svc.GetInventorySummary(ctx, ledger.SummaryFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 8, summary.TotalQuantity)

	moveType := entity.MovementMove
	page, err := svc.GetMovementHistory(ctx, movements.Filter{ItemID: &s.item, MovementType: &moveType})
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalCount)

	page, err = svc.GetMovementHistory(ctx, movements.Filter{LocationID: &s.b})
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalCount)

	bogus := entity.MovementType("teleport")
	_, err = svc.GetMovementHistory(ctx, movements.Filter{MovementType: &bogus})
	assert.True(t, apperror.IsAppError(err))
}

func ptr[T any](v T) *T { return &v }
