// Package validation provides the business-rule engine evaluated before
// inventory movements are committed.
package validation

import (
	"sort"
	"sync"
	"time"

	"github.com/spf13/cast"

	"stockledger/internal/core/apperror"
)

// Built-in rule names.
const (
	RuleMaxConcurrentMovements = "max_concurrent_movements"
	RuleLocationCapacity       = "location_capacity_check"
	RuleItemStatus             = "item_status_constraints"
	RuleQuantityConsistency    = "quantity_consistency_check"
	RuleDuplicateMovement      = "duplicate_movement_detection"
	RuleValueThreshold         = "value_tracking_threshold"
	RulePerformance            = "performance_constraint_check"
)

// builtinOrder is the evaluation order of built-in rules.
var builtinOrder = []string{
	RuleMaxConcurrentMovements,
	RuleLocationCapacity,
	RuleItemStatus,
	RuleQuantityConsistency,
	RuleDuplicateMovement,
	RuleValueThreshold,
	RulePerformance,
}

// IsBuiltin reports whether name is a built-in rule.
func IsBuiltin(name string) bool {
	for _, n := range builtinOrder {
		if n == name {
			return true
		}
	}
	return false
}

// RuleConfig is the runtime configuration of one rule.
type RuleConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// Critical turns an inconclusive evaluation into an error instead of a warning.
	Critical bool `json:"critical" mapstructure:"critical"`

	Params map[string]any `json:"params,omitempty" mapstructure:"params"`

	// Expression is a CEL predicate for custom rules; true means violation.
	Expression string `json:"expression,omitempty" mapstructure:"expression"`
}

func (c RuleConfig) clone() RuleConfig {
	out := c
	if c.Params != nil {
		out.Params = make(map[string]any, len(c.Params))
		for k, v := range c.Params {
			out.Params[k] = v
		}
	}
	return out
}

func (c RuleConfig) int64Param(key string, def int64) int64 {
	v, ok := c.Params[key]
	if !ok {
		return def
	}
	n, err := cast.ToInt64E(v)
	if err != nil {
		return def
	}
	return n
}

func (c RuleConfig) float64Param(key string, def float64) float64 {
	v, ok := c.Params[key]
	if !ok {
		return def
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return def
	}
	return f
}

func (c RuleConfig) stringParam(key, def string) string {
	v, ok := c.Params[key]
	if !ok {
		return def
	}
	s, err := cast.ToStringE(v)
	if err != nil || s == "" {
		return def
	}
	return s
}

func (c RuleConfig) stringsParam(key string, def []string) []string {
	v, ok := c.Params[key]
	if !ok {
		return def
	}
	out, err := cast.ToStringSliceE(v)
	if err != nil {
		return def
	}
	return out
}

func (c RuleConfig) durationParam(key string, def time.Duration) time.Duration {
	return time.Duration(c.int64Param(key, int64(def/time.Millisecond))) * time.Millisecond
}

// DefaultRules returns the built-in rule set with its default parameters.
func DefaultRules() map[string]RuleConfig {
	return map[string]RuleConfig{
		RuleMaxConcurrentMovements: {Enabled: true, Params: map[string]any{
			"window_ms": 60_000,
			"limit":     100,
		}},
		RuleLocationCapacity: {Enabled: true, Params: map[string]any{
			// applies to locations without their own capacity; 0 is unbounded
			"default_capacity": 0,
		}},
		RuleItemStatus: {Enabled: true, Params: map[string]any{
			"blocked_statuses": []string{"disposed"},
		}},
		RuleQuantityConsistency: {Enabled: true},
		RuleDuplicateMovement: {Enabled: true, Params: map[string]any{
			"window_ms": 5_000,
		}},
		RuleValueThreshold: {Enabled: true, Params: map[string]any{
			"threshold": "1000",
			// total compares unit value x quantity; unit compares the item's own value
			"basis": "total",
		}},
		RulePerformance: {Enabled: true, Params: map[string]any{
			"cpu_threshold":    90.0,
			"memory_threshold": 90.0,
			"timeout_ms":       200,
		}},
	}
}

// OverrideMode selects how an override is applied to an existing entry.
type OverrideMode string

const (
	// OverrideMerge patches only the fields present in the override.
	OverrideMerge OverrideMode = "merge"
	// OverrideReplace discards the existing entry.
	OverrideReplace OverrideMode = "replace"
)

// RuleOverride is a partial rule configuration. Nil fields are left as is
// in merge mode and reset to zero values in replace mode.
type RuleOverride struct {
	Enabled    *bool          `json:"enabled,omitempty"`
	Critical   *bool          `json:"critical,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
	Expression *string        `json:"expression,omitempty"`
}

// RuleSet is the concurrency-safe runtime rule configuration.
type RuleSet struct {
	mu    sync.RWMutex
	rules map[string]RuleConfig
	exprs *expressionCache
}

// NewRuleSet creates a rule set seeded with DefaultRules.
func NewRuleSet() *RuleSet {
	return &RuleSet{
		rules: DefaultRules(),
		exprs: newExpressionCache(),
	}
}

// Get returns the configuration of one rule.
func (s *RuleSet) Get(name string) (RuleConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.rules[name]
	if !ok {
		return RuleConfig{}, false
	}
	return c.clone(), true
}

// Snapshot returns a copy of every rule configuration.
func (s *RuleSet) Snapshot() map[string]RuleConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]RuleConfig, len(s.rules))
	for k, v := range s.rules {
		out[k] = v.clone()
	}
	return out
}

// Names returns rule names in evaluation order: built-ins first, then
// custom rules alphabetically.
func (s *RuleSet) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.rules))
	for _, n := range builtinOrder {
		if _, ok := s.rules[n]; ok {
			names = append(names, n)
		}
	}
	custom := make([]string, 0)
	for n := range s.rules {
		if !IsBuiltin(n) {
			custom = append(custom, n)
		}
	}
	sort.Strings(custom)
	return append(names, custom...)
}

// Apply applies overrides atomically: either every entry is valid and
// applied, or nothing changes.
func (s *RuleSet) Apply(overrides map[string]RuleOverride, mode OverrideMode) error {
	if mode == "" {
		mode = OverrideMerge
	}
	if mode != OverrideMerge && mode != OverrideReplace {
		return apperror.NewValidation("unknown override mode").WithDetail("mode", string(mode))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]RuleConfig, len(s.rules))
	for k, v := range s.rules {
		next[k] = v
	}

	for name, o := range overrides {
		if name == "" {
			return apperror.NewValidation("rule name is required")
		}

		var cfg RuleConfig
		if existing, ok := next[name]; ok && mode == OverrideMerge {
			cfg = existing.clone()
		}
		if o.Enabled != nil {
			cfg.Enabled = *o.Enabled
		}
		if o.Critical != nil {
			cfg.Critical = *o.Critical
		}
		if o.Params != nil {
			if cfg.Params == nil || mode == OverrideReplace {
				cfg.Params = make(map[string]any, len(o.Params))
			}
			for k, v := range o.Params {
				cfg.Params[k] = v
			}
		}
		if o.Expression != nil {
			cfg.Expression = *o.Expression
		}

		if err := s.check(name, cfg); err != nil {
			return err
		}
		next[name] = cfg
	}

	s.rules = next
	return nil
}

// Load replaces the whole configuration, e.g. with a persisted snapshot.
// Built-in rules missing from rules keep their defaults.
func (s *RuleSet) Load(rules map[string]RuleConfig) error {
	next := DefaultRules()
	for name, cfg := range rules {
		if err := s.check(name, cfg); err != nil {
			return err
		}
		next[name] = cfg.clone()
	}

	s.mu.Lock()
	s.rules = next
	s.mu.Unlock()
	return nil
}

func (s *RuleSet) check(name string, cfg RuleConfig) error {
	if IsBuiltin(name) {
		if cfg.Expression != "" {
			return apperror.NewValidation("built-in rules do not take an expression").WithDetail("rule", name)
		}
		return nil
	}
	if cfg.Expression == "" {
		return apperror.NewValidation("unknown rule; custom rules need an expression").WithDetail("rule", name)
	}
	if _, err := s.exprs.compile(cfg.Expression); err != nil {
		return apperror.NewValidation("invalid rule expression").
			WithDetail("rule", name).
			WithCause(err)
	}
	return nil
}
