package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/gherkit/pkg/models"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":8000", cfg.Listen)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "playwright", cfg.Browser.Driver)
	require.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_API_KEY", "sk-test-123")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_MODEL", "")

	content := `
listen: ":9090"
db_path: "test.db"
llm:
  api_key: ${TEST_API_KEY}
  model: gpt-4o
cache:
  enabled: true
  ttl: 30m
  backend: redis
  redis:
    addr: "redis:6379"
budget:
  enabled: true
  policies:
    - max_tokens: 500000
      period: daily
`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path, false)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "sk-test-123", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, "redis:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, "gherkit:cache:", cfg.Cache.Redis.Prefix, "unset nested fields keep defaults")
	require.True(t, cfg.Budget.Enabled)
	require.Len(t, cfg.Budget.Policies, 1)
	assert.EqualValues(t, 500000, cfg.Budget.Policies[0].MaxTokens)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml", false)
	assert.Error(t, err)

	cfg, err := Load("/nonexistent/config.yaml", true)
	require.NoError(t, err)
	assert.Equal(t, Default().Listen, cfg.Listen)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := applyEnv(cfg, map[string]string{
		"OPENAI_API_KEY":  "sk-env",
		"OPENAI_MODEL":    "gpt-4o-mini",
		"ENABLE_CACHE":    "false",
		"CACHE_TTL_HOURS": "6",
	})
	require.NoError(t, err)

	assert.Equal(t, "sk-env", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 6*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, ":8000", cfg.Listen, "absent variables leave values alone")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Browser.Driver = "selenium"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Cache.Backend = "memcached"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Cache.Backend = "redis"
	cfg.Cache.Redis.Prefix = ""
	assert.Error(t, cfg.Validate(), "an empty prefix would let clear touch every key")

	cfg = Default()
	cfg.Budget.Policies = []models.BudgetPolicy{{MaxTokens: 0, Period: models.BudgetDaily}}
	assert.Error(t, cfg.Validate())
}
