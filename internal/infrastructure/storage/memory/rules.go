package memory

import (
	"context"

	"stockledger/internal/domain/validation"
)

var _ validation.RuleStore = (*RuleStore)(nil)

// RuleStore keeps the persisted rule snapshot.
type RuleStore struct {
	store *Store
}

// NewRuleStore creates a rule store over store.
func NewRuleStore(store *Store) *RuleStore {
	return &RuleStore{store: store}
}

// LoadRules returns the saved snapshot, nil when none was saved.
func (r *RuleStore) LoadRules(ctx context.Context) (map[string]validation.RuleConfig, error) {
	defer r.store.lock(ctx)()
	if r.store.rules == nil {
		return nil, nil
	}
	out := make(map[string]validation.RuleConfig, len(r.store.rules))
	for k, v := range r.store.rules {
		out[k] = v
	}
	return out, nil
}

// SaveRules replaces the saved snapshot.
func (r *RuleStore) SaveRules(ctx context.Context, rules map[string]validation.RuleConfig) error {
	defer r.store.lock(ctx)()
	next := make(map[string]validation.RuleConfig, len(rules))
	for k, v := range rules {
		next[k] = v
	}
	r.store.rules = next
	return nil
}
