package rule_repo

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/domain/validation"
)

func TestRuleRepo_InsertQueryIsOrderedByName(t *testing.T) {
	r := NewRuleRepo(nil)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	q, err := r.insertQuery(map[string]validation.RuleConfig{
		validation.RuleValueThreshold:   {Enabled: true, Params: map[string]any{"threshold": "500"}},
		validation.RuleLocationCapacity: {Enabled: false},
	}, now)
	require.NoError(t, err)

	sql, args, err := q.ToSql()
	require.NoError(t, err)

	assert.Equal(t, "INSERT INTO sys_business_rules (name,config,updated_at) VALUES ($1,$2,$3),($4,$5,$6)", sql)
	require.Len(t, args, 6)
	assert.Equal(t, validation.RuleLocationCapacity, args[0])
	assert.Equal(t, validation.RuleValueThreshold, args[3])

	var cfg validation.RuleConfig
	require.NoError(t, json.Unmarshal(args[4].([]byte), &cfg))
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "500", cfg.Params["threshold"])
}
