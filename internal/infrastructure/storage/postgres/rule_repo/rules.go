// Package rule_repo persists the business rule configuration.
package rule_repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/domain/validation"
	"stockledger/internal/infrastructure/storage/postgres"
)

// NotifyChannel is raised after every save so other processes reload.
const NotifyChannel = "business_rules_changed"

type ruleRow struct {
	Name   string          `db:"name"`
	Config json.RawMessage `db:"config"`
}

// RuleRepo implements validation.RuleStore over sys_business_rules.
type RuleRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewRuleRepo creates a new rule repository.
func NewRuleRepo(txManager *postgres.TxManager) *RuleRepo {
	return &RuleRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// LoadRules returns the saved snapshot, nil when nothing was saved.
func (r *RuleRepo) LoadRules(ctx context.Context) (map[string]validation.RuleConfig, error) {
	sql, args, err := r.builder.Select("name", "config").
		From(postgres.TableRules).
		OrderBy("name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []ruleRow
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select rules: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	rules := make(map[string]validation.RuleConfig, len(rows))
	for _, row := range rows {
		var cfg validation.RuleConfig
		if err := json.Unmarshal(row.Config, &cfg); err != nil {
			return nil, fmt.Errorf("decode rule %s: %w", row.Name, err)
		}
		rules[row.Name] = cfg
	}
	return rules, nil
}

// SaveRules replaces the stored snapshot and notifies listeners on commit.
func (r *RuleRepo) SaveRules(ctx context.Context, rules map[string]validation.RuleConfig) error {
	insert, err := r.insertQuery(rules, time.Now().UTC())
	if err != nil {
		return err
	}

	return r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		q := r.txManager.GetQuerier(ctx)

		if _, err := q.Exec(ctx, "DELETE FROM "+postgres.TableRules); err != nil {
			return fmt.Errorf("clear rules: %w", err)
		}

		if len(rules) > 0 {
			sql, args, err := insert.ToSql()
			if err != nil {
				return fmt.Errorf("build insert: %w", err)
			}
			if _, err := q.Exec(ctx, sql, args...); err != nil {
				return fmt.Errorf("insert rules: %w", err)
			}
		}

		if _, err := q.Exec(ctx, "SELECT pg_notify($1, $2)", NotifyChannel, fmt.Sprint(len(rules))); err != nil {
			return fmt.Errorf("notify rules change: %w", err)
		}
		return nil
	})
}

func (r *RuleRepo) insertQuery(rules map[string]validation.RuleConfig, now time.Time) (squirrel.InsertBuilder, error) {
	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)

	q := r.builder.Insert(postgres.TableRules).Columns("name", "config", "updated_at")
	for _, name := range names {
		raw, err := json.Marshal(rules[name])
		if err != nil {
			return q, fmt.Errorf("encode rule %s: %w", name, err)
		}
		q = q.Values(name, raw, now)
	}
	return q, nil
}

var _ validation.RuleStore = (*RuleRepo)(nil)
