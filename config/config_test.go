package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bytebuddy/internal/usage"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.json"), map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 30*24*time.Hour, cfg.Auth.TokenDuration)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Error(t, cfg.Validate(), "secret is required without vault")
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"server": {"port": 8080, "allowed_origins": "https://a.example, https://b.example"},
		"database": {"driver": "postgres", "host": "db"},
		"auth": {"jwt_secret": "from-file"}
	}`), 0o600))

	cfg, err := LoadFrom(path, map[string]string{
		"SERVER_PORT":         "9090",
		"AUTH_TOKEN_DURATION": "48h",
		"REDIS_ENABLED":       "true",
		"QUOTA_OVERRIDES":     "free.quizzesTaken=7",
	})
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.Origins())
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "db", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port, "defaults survive a partial file")
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, 48*time.Hour, cfg.Auth.TokenDuration)
	assert.True(t, cfg.Redis.Enabled)
	require.NoError(t, cfg.Validate())

	policy, err := cfg.QuotaPolicy()
	require.NoError(t, err)
	limit, err := policy.Limit(usage.TierFree, usage.FeatureQuizzes)
	require.NoError(t, err)
	assert.Equal(t, int64(7), limit)

	assert.Contains(t, cfg.PostgresDSN(), "host=db port=5432")
}

func TestValidateRejectsBadSettings(t *testing.T) {
	cfg := Default()
	cfg.Auth.JWTSecret = "s"
	require.NoError(t, cfg.Validate())

	cfg.Database.Driver = "sqlite"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Auth.JWTSecret = "s"
	cfg.Quota.Overrides = "gold.notesGenerated=1"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Vault.Enabled = true
	assert.NoError(t, cfg.Validate(), "vault may supply the secret")
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))
	_, err := LoadFrom(path, map[string]string{})
	assert.Error(t, err)
}
