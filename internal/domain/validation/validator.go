package validation

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/catalog"
	"stockledger/internal/domain/movements"
	"stockledger/pkg/logger"
)

// Inventory is the ledger read surface the rules need.
type Inventory interface {
	Quantity(ctx context.Context, itemID, locationID id.ID) (int64, error)
	LocationTotal(ctx context.Context, locationID id.ID) (int64, error)
}

// History is the movement-log read surface the rules need.
type History interface {
	CountRecent(ctx context.Context, window time.Duration) (int, error)
	CountDuplicates(ctx context.Context, q movements.DuplicateQuery, window time.Duration) (int, error)
}

// RuleStore persists the rule configuration across restarts.
type RuleStore interface {
	LoadRules(ctx context.Context) (map[string]RuleConfig, error)
	SaveRules(ctx context.Context, rules map[string]RuleConfig) error
}

// Request is a proposed movement.
type Request struct {
	ItemID         id.ID               `json:"itemId"`
	FromLocationID *id.ID              `json:"fromLocationId,omitempty"`
	ToLocationID   *id.ID              `json:"toLocationId,omitempty"`
	Quantity       int64               `json:"quantity"`
	MovementType   entity.MovementType `json:"movementType,omitempty"`
	UserID         *string             `json:"userId,omitempty"`
}

func (r Request) duplicateKey() string {
	endpoint := func(p *id.ID) string {
		if p == nil {
			return "-"
		}
		return p.String()
	}
	return fmt.Sprintf("%s|%s|%s|%d|%s", r.ItemID, endpoint(r.FromLocationID), endpoint(r.ToLocationID), r.Quantity, r.Type())
}

// Type returns the explicit movement type or the one implied by the endpoints.
func (r Request) Type() entity.MovementType {
	if r.MovementType != "" {
		return r.MovementType
	}
	switch {
	case r.FromLocationID != nil && r.ToLocationID != nil:
		return entity.MovementMove
	case r.FromLocationID != nil:
		return entity.MovementRemove
	default:
		return entity.MovementCreate
	}
}

// Violation is one blocking finding.
type Violation struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`

	err *apperror.AppError
}

// Err returns the tagged error an execution call should surface for v.
func (v Violation) Err() error {
	if v.err != nil {
		return v.err
	}
	return apperror.NewBusinessRule(v.Rule, v.Message)
}

// Result is the outcome of validating one movement.
type Result struct {
	IsValid              bool           `json:"isValid"`
	Errors               []string       `json:"errors"`
	Warnings             []string       `json:"warnings"`
	BusinessRulesApplied []string       `json:"businessRulesApplied"`
	Metadata             map[string]any `json:"metadata"`

	Violations []Violation `json:"violations,omitempty"`
}

func newResult() *Result {
	return &Result{
		IsValid:              true,
		Errors:               []string{},
		Warnings:             []string{},
		BusinessRulesApplied: []string{},
		Metadata:             map[string]any{},
	}
}

func (r *Result) reject(v Violation) {
	r.IsValid = false
	r.Errors = append(r.Errors, v.Message)
	r.Violations = append(r.Violations, v)
}

func (r *Result) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Err returns the violation an execution call should surface, or nil when
// valid. Violations with a specific code (insufficient quantity, invalid
// movement, not found) win over generic rule violations regardless of
// evaluation order.
func (r *Result) Err() error {
	if r.IsValid || len(r.Violations) == 0 {
		return nil
	}
	for _, v := range r.Violations {
		if v.err != nil {
			return v.err
		}
	}
	return r.Violations[0].Err()
}

// Validator evaluates proposed movements against the configured rules.
// It never mutates inventory state.
type Validator struct {
	rules     *RuleSet
	inventory Inventory
	history   History
	lookup    catalog.Lookup
	load      LoadProvider
	store     RuleStore
	now       func() time.Time
}

// Option configures the validator.
type Option func(*Validator)

// WithLoadProvider sets the telemetry source for the performance rule.
func WithLoadProvider(p LoadProvider) Option {
	return func(v *Validator) { v.load = p }
}

// WithRuleStore persists overrides and enables Reload.
func WithRuleStore(s RuleStore) Option {
	return func(v *Validator) { v.store = s }
}

// WithRuleSet shares an existing rule set.
func WithRuleSet(rs *RuleSet) Option {
	return func(v *Validator) { v.rules = rs }
}

// NewValidator creates a validator with the default rule set.
func NewValidator(inventory Inventory, history History, lookup catalog.Lookup, opts ...Option) *Validator {
	v := &Validator{
		inventory: inventory,
		history:   history,
		lookup:    lookup,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.rules == nil {
		v.rules = NewRuleSet()
	}
	return v
}

// Rules exposes the live rule set.
func (v *Validator) Rules() *RuleSet {
	return v.rules
}

// evaluation holds what rules read about one request, loaded once.
type evaluation struct {
	req       Request
	item      *catalog.Item
	dest      *catalog.Location
	source    int64
	hasSource bool
}

// Validate checks one movement. Business-rule failures are reported in the
// result; only infrastructure failures are returned as errors.
func (v *Validator) Validate(ctx context.Context, req Request) (*Result, error) {
	res := newResult()

	if !v.checkStructure(req, res) {
		return res, nil
	}

	ev, ok, err := v.resolve(ctx, req, res)
	if err != nil {
		return nil, err
	}
	if !ok {
		return res, nil
	}

	for _, name := range v.rules.Names() {
		cfg, _ := v.rules.Get(name)
		if !cfg.Enabled {
			continue
		}
		res.BusinessRulesApplied = append(res.BusinessRulesApplied, name)

		if err := v.evaluate(ctx, name, cfg, ev, res); err != nil {
			v.inconclusive(ctx, name, cfg, err, res)
		}
	}

	return res, nil
}

func (v *Validator) checkStructure(req Request, res *Result) bool {
	switch {
	case req.Quantity <= 0:
		res.reject(Violation{Rule: "structure", Message: "quantity must be positive",
			err: apperror.NewInvalidMovement("quantity must be positive")})
	case req.FromLocationID == nil && req.ToLocationID == nil:
		res.reject(Violation{Rule: "structure", Message: "movement needs a source or a destination",
			err: apperror.NewInvalidMovement("movement needs a source or a destination")})
	case id.Equal(req.FromLocationID, req.ToLocationID):
		res.reject(Violation{Rule: "structure", Message: "source and destination are the same location",
			err: apperror.NewInvalidMovement("source and destination are the same location")})
	case req.MovementType != "" && !req.MovementType.IsValid():
		res.reject(Violation{Rule: "structure", Message: "unknown movement type " + string(req.MovementType),
			err: apperror.NewInvalidMovement("unknown movement type")})
	}
	return res.IsValid
}

// resolve loads the references every rule reads. Missing references are
// reported in res; ok is false when evaluation cannot continue.
func (v *Validator) resolve(ctx context.Context, req Request, res *Result) (*evaluation, bool, error) {
	ev := &evaluation{req: req}

	item, err := v.lookup.GetItem(ctx, req.ItemID)
	if err != nil {
		if appErr, isNotFound := notFound(err); isNotFound {
			res.reject(Violation{Rule: "reference", Message: "item not found", err: appErr})
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get item: %w", err)
	}
	ev.item = item

	if req.FromLocationID != nil {
		if _, err := v.lookup.GetLocation(ctx, *req.FromLocationID); err != nil {
			if appErr, isNotFound := notFound(err); isNotFound {
				res.reject(Violation{Rule: "reference", Message: "source location not found", err: appErr})
				return nil, false, nil
			}
			return nil, false, fmt.Errorf("get source location: %w", err)
		}
		qty, err := v.inventory.Quantity(ctx, req.ItemID, *req.FromLocationID)
		if err != nil {
			return nil, false, fmt.Errorf("get source quantity: %w", err)
		}
		ev.source = qty
		ev.hasSource = true
	}

	if req.ToLocationID != nil {
		dest, err := v.lookup.GetLocation(ctx, *req.ToLocationID)
		if err != nil {
			if appErr, isNotFound := notFound(err); isNotFound {
				res.reject(Violation{Rule: "reference", Message: "destination location not found", err: appErr})
				return nil, false, nil
			}
			return nil, false, fmt.Errorf("get destination location: %w", err)
		}
		ev.dest = dest
	}

	return ev, true, nil
}

func notFound(err error) (*apperror.AppError, bool) {
	appErr, ok := apperror.AsAppError(err)
	if !ok || appErr.Code != apperror.CodeNotFound {
		return nil, false
	}
	return appErr, true
}

// inconclusive records a rule that could not reach a decision.
func (v *Validator) inconclusive(ctx context.Context, name string, cfg RuleConfig, cause error, res *Result) {
	msg := fmt.Sprintf("%s could not be evaluated: %v", name, cause)
	res.Metadata[name+".unavailable"] = true

	if cfg.Critical {
		res.reject(Violation{Rule: name, Message: msg})
		logger.Warn(ctx, "critical rule inconclusive", "rule", name, "error", cause)
		return
	}
	res.warn(msg)
	logger.Warn(ctx, "rule inconclusive", "rule", name, "error", cause)
}

// BulkResult is the outcome of validating a batch.
type BulkResult struct {
	IsValid       bool      `json:"isValid"`
	Atomic        bool      `json:"atomic"`
	Results       []*Result `json:"results"`
	FailedIndexes []int     `json:"failedIndexes"`
}

// Committable reports whether movement i may be committed by the caller.
// In atomic mode a single failure blocks the whole batch.
func (b *BulkResult) Committable(i int) bool {
	if b.Atomic {
		return b.IsValid
	}
	return i >= 0 && i < len(b.Results) && b.Results[i].IsValid
}

// ValidateBulk validates each movement against the current state and
// returns every result. A movement repeating an earlier valid movement of
// the same batch is rejected as a duplicate while that rule is enabled.
func (v *Validator) ValidateBulk(ctx context.Context, reqs []Request, atomic bool) (*BulkResult, error) {
	out := &BulkResult{
		IsValid:       true,
		Atomic:        atomic,
		Results:       make([]*Result, 0, len(reqs)),
		FailedIndexes: []int{},
	}

	dupCfg, _ := v.rules.Get(RuleDuplicateMovement)
	seen := make(map[string]int, len(reqs))

	for i, req := range reqs {
		res, err := v.Validate(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("validate movement %d: %w", i, err)
		}
		if dupCfg.Enabled && res.IsValid {
			key := req.duplicateKey()
			if first, ok := seen[key]; ok {
				res.reject(Violation{
					Rule:    RuleDuplicateMovement,
					Message: fmt.Sprintf("identical to movement %d of the same batch", first+1),
				})
			} else {
				seen[key] = i
			}
		}
		out.Results = append(out.Results, res)
		if !res.IsValid {
			out.IsValid = false
			out.FailedIndexes = append(out.FailedIndexes, i)
		}
	}

	return out, nil
}

// ApplyOverrides changes rule configuration at runtime and persists the
// resulting snapshot when a store is configured.
func (v *Validator) ApplyOverrides(ctx context.Context, overrides map[string]RuleOverride, mode OverrideMode) (map[string]RuleConfig, error) {
	previous := v.rules.Snapshot()
	if err := v.rules.Apply(overrides, mode); err != nil {
		return nil, err
	}

	snapshot := v.rules.Snapshot()
	if v.store != nil {
		if err := v.store.SaveRules(ctx, snapshot); err != nil {
			_ = v.rules.Load(previous)
			return nil, fmt.Errorf("save rules: %w", err)
		}
	}

	logger.Info(ctx, "business rules updated", "rules", len(overrides), "mode", mode)
	return snapshot, nil
}

// Reload replaces the rule configuration with the persisted snapshot.
func (v *Validator) Reload(ctx context.Context) error {
	if v.store == nil {
		return nil
	}
	rules, err := v.store.LoadRules(ctx)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	if len(rules) == 0 {
		return nil
	}
	return v.rules.Load(rules)
}
