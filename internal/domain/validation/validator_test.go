package validation

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
	"stockledger/internal/core/types"
	"stockledger/internal/domain/catalog"
	"stockledger/internal/domain/movements"
)

type fakeInventory struct {
	quantities map[[2]id.ID]int64
	totals     map[id.ID]int64
}

func (f *fakeInventory) Quantity(_ context.Context, itemID, locationID id.ID) (int64, error) {
	return f.quantities[[2]id.ID{itemID, locationID}], nil
}

func (f *fakeInventory) LocationTotal(_ context.Context, locationID id.ID) (int64, error) {
	return f.totals[locationID], nil
}

type fakeHistory struct {
	recent     int
	duplicates int
	err        error
	lastQuery  movements.DuplicateQuery
}

func (f *fakeHistory) CountRecent(context.Context, time.Duration) (int, error) {
	return f.recent, f.err
}

func (f *fakeHistory) CountDuplicates(_ context.Context, q movements.DuplicateQuery, _ time.Duration) (int, error) {
	f.lastQuery = q
	return f.duplicates, f.err
}

type fakeLookup struct {
	items     map[id.ID]catalog.Item
	locations map[id.ID]catalog.Location
}

func (f *fakeLookup) GetItem(_ context.Context, itemID id.ID) (*catalog.Item, error) {
	item, ok := f.items[itemID]
	if !ok {
		return nil, apperror.NewNotFound("item", itemID.String())
	}
	return &item, nil
}

func (f *fakeLookup) GetLocation(_ context.Context, locationID id.ID) (*catalog.Location, error) {
	loc, ok := f.locations[locationID]
	if !ok {
		return nil, apperror.NewNotFound("location", locationID.String())
	}
	return &loc, nil
}

type fakeLoad struct {
	load  Load
	err   error
	delay time.Duration
}

func (f *fakeLoad) CurrentLoad(ctx context.Context) (Load, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Load{}, ctx.Err()
		}
	}
	return f.load, f.err
}

type fakeRuleStore struct {
	saved map[string]RuleConfig
	err   error
}

func (f *fakeRuleStore) LoadRules(context.Context) (map[string]RuleConfig, error) {
	return f.saved, nil
}

func (f *fakeRuleStore) SaveRules(_ context.Context, rules map[string]RuleConfig) error {
	if f.err != nil {
		return f.err
	}
	f.saved = rules
	return nil
}

type fixture struct {
	inventory *fakeInventory
	history   *fakeHistory
	lookup    *fakeLookup
	load      *fakeLoad
	item      id.ID
	disposed  id.ID
	a, b      id.ID
	small     id.ID
}

func newFixture() *fixture {
	capacity := int64(10)
	f := &fixture{
		inventory: &fakeInventory{quantities: map[[2]id.ID]int64{}, totals: map[id.ID]int64{}},
		history:   &fakeHistory{},
		load:      &fakeLoad{load: Load{CPUPercent: 20, MemoryPercent: 30}},
		item:      id.New(),
		disposed:  id.New(),
		a:         id.New(),
		b:         id.New(),
		small:     id.New(),
	}
	f.lookup = &fakeLookup{
		items: map[id.ID]catalog.Item{
			f.item:     {ID: f.item, Name: "Drill", Status: catalog.ItemStatusActive, Value: types.MustMoney("25")},
			f.disposed: {ID: f.disposed, Name: "Old drill", Status: catalog.ItemStatusDisposed, Value: types.MustMoney("1")},
		},
		locations: map[id.ID]catalog.Location{
			f.a:     {ID: f.a, Name: "A"},
			f.b:     {ID: f.b, Name: "B"},
			f.small: {ID: f.small, Name: "Small", Capacity: &capacity},
		},
	}
	f.inventory.quantities[[2]id.ID{f.item, f.a}] = 10
	return f
}

func (f *fixture) validator(opts ...Option) *Validator {
	return NewValidator(f.inventory, f.history, f.lookup, append([]Option{WithLoadProvider(f.load)}, opts...)...)
}

func (f *fixture) move(qty int64) Request {
	return Request{ItemID: f.item, FromLocationID: &f.a, ToLocationID: &f.b, Quantity: qty}
}

func enable(on bool) *bool { return &on }

func TestValidateAppliesEveryEnabledRule(t *testing.T) {
	f := newFixture()
	v := f.validator()

	res, err := v.Validate(context.Background(), f.move(4))
	require.NoError(t, err)

	assert.True(t, res.IsValid)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, builtinOrder, res.BusinessRulesApplied)
	assert.EqualValues(t, 10, res.Metadata["source_quantity"])
	assert.Equal(t, "100", res.Metadata["estimated_value"])
	assert.NoError(t, res.Err())

	assert.Equal(t, entity.MovementMove, f.history.lastQuery.MovementType)
	assert.Equal(t, int64(4), f.history.lastQuery.Quantity)
}

func TestDisabledRuleIsSkipped(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	v := f.validator()

	_, err := v.ApplyOverrides(ctx, map[string]RuleOverride{
		RuleQuantityConsistency: {Enabled: enable(false)},
	}, OverrideMerge)
	require.NoError(t, err)

	res, err := v.Validate(ctx, f.move(50))
	require.NoError(t, err)
	assert.True(t, res.IsValid, "overdraw is only caught by the disabled rule")
	assert.NotContains(t, res.BusinessRulesApplied, RuleQuantityConsistency)
	assert.Len(t, res.BusinessRulesApplied, len(builtinOrder)-1)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(f *fixture) Request
		rule    string
		check   func(t *testing.T, err error)
	}{
		{
			name:    "insufficient quantity",
			prepare: func(f *fixture) Request { return f.move(11) },
			rule:    RuleQuantityConsistency,
			check: func(t *testing.T, err error) {
				assert.True(t, apperror.IsInsufficientQuantity(err))
			},
		},
		{
			name: "disposed item",
			prepare: func(f *fixture) Request {
				return Request{ItemID: f.disposed, ToLocationID: &f.b, Quantity: 1}
			},
			rule: RuleItemStatus,
			check: func(t *testing.T, err error) {
				assert.True(t, apperror.IsBusinessRuleViolation(err))
			},
		},
		{
			name: "destination capacity",
			prepare: func(f *fixture) Request {
				f.inventory.totals[f.small] = 8
				return Request{ItemID: f.item, ToLocationID: &f.small, Quantity: 3}
			},
			rule: RuleLocationCapacity,
			check: func(t *testing.T, err error) {
				assert.True(t, apperror.IsBusinessRuleViolation(err))
			},
		},
		{
			name: "duplicate movement",
			prepare: func(f *fixture) Request {
				f.history.duplicates = 1
				return f.move(2)
			},
			rule: RuleDuplicateMovement,
			check: func(t *testing.T, err error) {
				assert.True(t, apperror.IsBusinessRuleViolation(err))
			},
		},
		{
			name: "movement rate limit",
			prepare: func(f *fixture) Request {
				f.history.recent = 101
				return f.move(2)
			},
			rule: RuleMaxConcurrentMovements,
			check: func(t *testing.T, err error) {
				assert.True(t, apperror.IsBusinessRuleViolation(err))
			},
		},
		{
			name: "system under load",
			prepare: func(f *fixture) Request {
				f.load.load = Load{CPUPercent: 95, MemoryPercent: 10}
				return f.move(2)
			},
			rule: RulePerformance,
			check: func(t *testing.T, err error) {
				assert.True(t, apperror.IsBusinessRuleViolation(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			req := tt.prepare(f)

			res, err := f.validator().Validate(context.Background(), req)
			require.NoError(t, err)

			assert.False(t, res.IsValid)
			require.NotEmpty(t, res.Violations)
			assert.Equal(t, tt.rule, res.Violations[0].Rule)
			tt.check(t, res.Err())
		})
	}
}

func TestRateLimitAllowsCountAtLimit(t *testing.T) {
	f := newFixture()
	f.history.recent = 100

	res, err := f.validator().Validate(context.Background(), f.move(2))
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.EqualValues(t, 100, res.Metadata["recent_movements"])
}

func TestOverdrawWinsOverGenericViolations(t *testing.T) {
	f := newFixture()
	f.inventory.totals[f.small] = 8
	f.history.recent = 500

	res, err := f.validator().Validate(context.Background(),
		Request{ItemID: f.item, FromLocationID: &f.a, ToLocationID: &f.small, Quantity: 11})
	require.NoError(t, err)

	require.False(t, res.IsValid)
	rules := make([]string, 0, len(res.Violations))
	for _, v := range res.Violations {
		rules = append(rules, v.Rule)
	}
	assert.Equal(t, []string{RuleMaxConcurrentMovements, RuleLocationCapacity, RuleQuantityConsistency}, rules)
	assert.True(t, apperror.IsInsufficientQuantity(res.Err()), "got %v", res.Err())
}

func TestCapacityFitsExactly(t *testing.T) {
	f := newFixture()
	f.inventory.totals[f.small] = 7

	res, err := f.validator().Validate(context.Background(), Request{ItemID: f.item, ToLocationID: &f.small, Quantity: 3})
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.EqualValues(t, 10, res.Metadata["destination_projected"])
}

func TestStructuralAndReferenceFailures(t *testing.T) {
	f := newFixture()
	v := f.validator()
	ctx := context.Background()
	unknown := id.New()

	tests := []struct {
		name  string
		req   Request
		check func(error) bool
	}{
		{"zero quantity", f.move(0), apperror.IsInvalidMovement},
		{"no endpoints", Request{ItemID: f.item, Quantity: 1}, apperror.IsInvalidMovement},
		{"same location", Request{ItemID: f.item, FromLocationID: &f.a, ToLocationID: &f.a, Quantity: 1}, apperror.IsInvalidMovement},
		{"unknown type", Request{ItemID: f.item, ToLocationID: &f.b, Quantity: 1, MovementType: "teleport"}, apperror.IsInvalidMovement},
		{"unknown item", Request{ItemID: unknown, ToLocationID: &f.b, Quantity: 1}, apperror.IsNotFound},
		{"unknown source", Request{ItemID: f.item, FromLocationID: &unknown, Quantity: 1}, apperror.IsNotFound},
		{"unknown destination", Request{ItemID: f.item, ToLocationID: &unknown, Quantity: 1}, apperror.IsNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := v.Validate(ctx, tt.req)
			require.NoError(t, err)
			assert.False(t, res.IsValid)
			assert.Empty(t, res.BusinessRulesApplied)
			assert.True(t, tt.check(res.Err()), "got %v", res.Err())
		})
	}
}

func TestHighValueMovementWarns(t *testing.T) {
	f := newFixture()
	f.inventory.quantities[[2]id.ID{f.item, f.a}] = 100

	res, err := f.validator().Validate(context.Background(), f.move(41))
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "1025.00")
}

func TestValueThresholdBasis(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		basis    string
		qty      int64
		warnings int
		contains string
	}{
		{"total over threshold", "total", 41, 1, "1025.00"},
		{"unit under threshold", "unit", 41, 0, ""},
		{"unknown basis", "weight", 1, 1, "unknown basis"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.inventory.quantities[[2]id.ID{f.item, f.a}] = 100
			v := f.validator()

			_, err := v.ApplyOverrides(ctx, map[string]RuleOverride{
				RuleValueThreshold: {Params: map[string]any{"basis": tt.basis}},
			}, OverrideMerge)
			require.NoError(t, err)

			res, err := v.Validate(ctx, f.move(tt.qty))
			require.NoError(t, err)
			assert.True(t, res.IsValid)
			require.Len(t, res.Warnings, tt.warnings)
			if tt.contains != "" {
				assert.Contains(t, res.Warnings[0], tt.contains)
			}
		})
	}

	t.Run("unit over threshold", func(t *testing.T) {
		f := newFixture()
		v := f.validator()
		_, err := v.ApplyOverrides(ctx, map[string]RuleOverride{
			RuleValueThreshold: {Params: map[string]any{"basis": "unit", "threshold": "20"}},
		}, OverrideMerge)
		require.NoError(t, err)

		res, err := v.Validate(ctx, f.move(1))
		require.NoError(t, err)
		require.Len(t, res.Warnings, 1)
		assert.Contains(t, res.Warnings[0], "unit value 25.00")
	})
}

func TestPerformanceRuleDegradesToWarning(t *testing.T) {
	tests := []struct {
		name     string
		provider LoadProvider
	}{
		{"no provider", nil},
		{"provider error", &fakeLoad{err: errors.New("agent down")}},
		{"provider timeout", &fakeLoad{delay: time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture()
			v := NewValidator(f.inventory, f.history, f.lookup, WithLoadProvider(tt.provider))
			_, err := v.ApplyOverrides(ctx, map[string]RuleOverride{
				RulePerformance: {Params: map[string]any{"timeout_ms": 20}},
			}, OverrideMerge)
			require.NoError(t, err)

			res, err := v.Validate(ctx, f.move(1))
			require.NoError(t, err)
			assert.True(t, res.IsValid)
			require.Len(t, res.Warnings, 1)
			assert.Contains(t, res.Warnings[0], RulePerformance)
			assert.Equal(t, true, res.Metadata[RulePerformance+".unavailable"])

			_, err = v.ApplyOverrides(ctx, map[string]RuleOverride{
				RulePerformance: {Critical: enable(true)},
			}, OverrideMerge)
			require.NoError(t, err)

			res, err = v.Validate(ctx, f.move(1))
			require.NoError(t, err)
			assert.False(t, res.IsValid)
			assert.True(t, apperror.IsBusinessRuleViolation(res.Err()))
		})
	}
}

func TestHistoryFailureIsInconclusive(t *testing.T) {
	f := newFixture()
	f.history.err = errors.New("log unavailable")

	res, err := f.validator().Validate(context.Background(), f.move(1))
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.Len(t, res.Warnings, 2, "rate limit and duplicate rules both degrade")
}

func TestCustomExpressionRule(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	v := f.validator()

	expr := `movement_type == "move" && quantity > 5`
	_, err := v.ApplyOverrides(ctx, map[string]RuleOverride{
		"bulk_moves_need_review": {
			Enabled:    enable(true),
			Expression: &expr,
			Params:     map[string]any{"message": "moves above 5 need review"},
		},
	}, OverrideMerge)
	require.NoError(t, err)

	res, err := v.Validate(ctx, f.move(3))
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.Equal(t, "bulk_moves_need_review", res.BusinessRulesApplied[len(res.BusinessRulesApplied)-1])

	res, err = v.Validate(ctx, f.move(6))
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Equal(t, []string{"moves above 5 need review"}, res.Errors)

	_, err = v.ApplyOverrides(ctx, map[string]RuleOverride{
		"bulk_moves_need_review": {Params: map[string]any{"severity": "warning"}},
	}, OverrideMerge)
	require.NoError(t, err)

	res, err = v.Validate(ctx, f.move(6))
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.Equal(t, []string{"moves above 5 need review"}, res.Warnings)
}

func TestApplyOverridesRejectsBadConfig(t *testing.T) {
	bad := "quantity +"
	notBool := "quantity + 1"
	expr := "quantity > 1"

	tests := []struct {
		name      string
		overrides map[string]RuleOverride
		mode      OverrideMode
	}{
		{"syntax error", map[string]RuleOverride{"custom": {Expression: &bad}}, OverrideMerge},
		{"non bool expression", map[string]RuleOverride{"custom": {Expression: &notBool}}, OverrideMerge},
		{"custom without expression", map[string]RuleOverride{"custom": {Enabled: enable(true)}}, OverrideMerge},
		{"built-in with expression", map[string]RuleOverride{RuleItemStatus: {Expression: &expr}}, OverrideMerge},
		{"unknown mode", map[string]RuleOverride{RuleItemStatus: {Enabled: enable(false)}}, OverrideMode("patch")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newFixture().validator()
			before := v.Rules().Snapshot()

			_, err := v.ApplyOverrides(context.Background(), tt.overrides, tt.mode)
			require.Error(t, err)
			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, apperror.CodeValidation, appErr.Code)
			assert.Equal(t, before, v.Rules().Snapshot(), "failed override must not change rules")
		})
	}
}

func TestOverrideModes(t *testing.T) {
	ctx := context.Background()
	v := newFixture().validator()

	rules, err := v.ApplyOverrides(ctx, map[string]RuleOverride{
		RuleMaxConcurrentMovements: {Params: map[string]any{"limit": 5}},
	}, OverrideMerge)
	require.NoError(t, err)
	merged := rules[RuleMaxConcurrentMovements]
	assert.True(t, merged.Enabled)
	assert.Equal(t, 5, merged.Params["limit"])
	assert.Equal(t, 60_000, merged.Params["window_ms"])

	rules, err = v.ApplyOverrides(ctx, map[string]RuleOverride{
		RuleMaxConcurrentMovements: {Params: map[string]any{"limit": 7}},
	}, OverrideReplace)
	require.NoError(t, err)
	replaced := rules[RuleMaxConcurrentMovements]
	assert.False(t, replaced.Enabled)
	assert.Equal(t, map[string]any{"limit": 7}, replaced.Params)
}

func TestOverridesPersistAndReload(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	store := &fakeRuleStore{}

	v := f.validator(WithRuleStore(store))
	_, err := v.ApplyOverrides(ctx, map[string]RuleOverride{
		RuleValueThreshold: {Enabled: enable(false)},
	}, OverrideMerge)
	require.NoError(t, err)
	require.Contains(t, store.saved, RuleValueThreshold)

	fresh := f.validator(WithRuleStore(store))
	require.NoError(t, fresh.Reload(ctx))
	cfg, ok := fresh.Rules().Get(RuleValueThreshold)
	require.True(t, ok)
	assert.False(t, cfg.Enabled)

	store.err = errors.New("disk full")
	_, err = v.ApplyOverrides(ctx, map[string]RuleOverride{
		RuleItemStatus: {Enabled: enable(false)},
	}, OverrideMerge)
	require.Error(t, err)
	cfg, _ = v.Rules().Get(RuleItemStatus)
	assert.True(t, cfg.Enabled, "rules roll back when persisting fails")
}

func TestValidateBulk(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	v := f.validator()

	reqs := []Request{f.move(2), f.move(20), f.move(3)}

	atomic, err := v.ValidateBulk(ctx, reqs, true)
	require.NoError(t, err)
	assert.False(t, atomic.IsValid)
	assert.Equal(t, []int{1}, atomic.FailedIndexes)
	require.Len(t, atomic.Results, 3)
	for i := range reqs {
		assert.False(t, atomic.Committable(i))
	}

	partial, err := v.ValidateBulk(ctx, reqs, false)
	require.NoError(t, err)
	assert.True(t, partial.Committable(0))
	assert.False(t, partial.Committable(1))
	assert.True(t, partial.Committable(2))
	assert.False(t, partial.Committable(3))
}

func TestValidateBulkRejectsRepeatsWithinBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	v := f.validator()

	reqs := []Request{f.move(2), f.move(3), f.move(2), f.move(2)}
	res, err := v.ValidateBulk(ctx, reqs, false)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, res.FailedIndexes)
	assert.Equal(t, RuleDuplicateMovement, res.Results[2].Violations[0].Rule)
	assert.Contains(t, res.Results[3].Errors[0], "movement 1 of the same batch")

	_, err = v.ApplyOverrides(ctx, map[string]RuleOverride{
		RuleDuplicateMovement: {Enabled: enable(false)},
	}, OverrideMerge)
	require.NoError(t, err)

	res, err = v.ValidateBulk(ctx, reqs, true)
	require.NoError(t, err)
	assert.True(t, res.IsValid)
}
