package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/domain/validation"
)

// chdir changes the working directory for the duration of the test,
// restoring it on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func missingDotenv(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.env")
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(missingDotenv(t))
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Env)
	assert.True(t, cfg.App.IsDevelopment())
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "inventory.movements", cfg.Kafka.Topic)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, validation.OverrideMerge, cfg.Rules.Mode)
	assert.Empty(t, cfg.Rules.Overrides)
	assert.Equal(t, "postgres://postgres:@localhost:5432/stockledger?sslmode=disable", cfg.DB.ConnectionString())
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("STOCKLEDGER_HTTP_PORT", "9090")
	t.Setenv("STOCKLEDGER_DB_URL", "postgres://u:p@db:5432/x")
	t.Setenv("STOCKLEDGER_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("STOCKLEDGER_CACHE_TTL", "5s")

	cfg, err := Load(missingDotenv(t))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "postgres://u:p@db:5432/x", cfg.DB.ConnectionString())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5*time.Second, cfg.Cache.TTL)
}

func TestLoad_DotenvFile(t *testing.T) {
	chdir(t, t.TempDir())
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("STOCKLEDGER_APP_ENV=production\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("STOCKLEDGER_APP_ENV") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.App.Env)
}

func TestLoad_RuleOverridesFromYAML(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	yaml := `
rules:
  mode: replace
  overrides:
    location_capacity_check:
      enabled: "false"
    value_tracking_threshold:
      critical: true
      params:
        threshold: 250
    no_weekend_moves:
      enabled: true
      expression: "quantity > 100"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stockledger.yaml"), []byte(yaml), 0o600))

	cfg, err := Load(missingDotenv(t))
	require.NoError(t, err)

	assert.Equal(t, validation.OverrideReplace, cfg.Rules.Mode)
	require.Len(t, cfg.Rules.Overrides, 3)

	capacity := cfg.Rules.Overrides[validation.RuleLocationCapacity]
	require.NotNil(t, capacity.Enabled)
	assert.False(t, *capacity.Enabled)
	assert.Nil(t, capacity.Critical)

	value := cfg.Rules.Overrides[validation.RuleValueThreshold]
	require.NotNil(t, value.Critical)
	assert.True(t, *value.Critical)
	assert.EqualValues(t, 250, value.Params["threshold"])

	custom := cfg.Rules.Overrides["no_weekend_moves"]
	require.NotNil(t, custom.Expression)
	assert.Equal(t, "quantity > 100", *custom.Expression)
}

func TestRuleOverrides_UnknownField(t *testing.T) {
	_, err := ruleOverrides(map[string]any{
		"location_capacity_check": map[string]any{"enabeld": true},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field")
}
