package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("SITDB_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("SESSION_SECRET", "session-secret")
	t.Setenv("CSRF_SECRET", "csrf-secret")
	t.Setenv("JWT_SECRET", "jwt-secret-0123456789")
}

func TestLoadConfigDefaults(t *testing.T) {
	setSecrets(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 5*time.Second, cfg.RealtimePollInterval)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.False(t, cfg.ReportStrictTransitions)
	assert.True(t, cfg.MirrorEnabled)
	assert.Equal(t, 120, cfg.RateLimitPerMinute)
	assert.Equal(t, 5, cfg.WorkerConcurrency)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigReadsEnvFile(t *testing.T) {
	setSecrets(t)
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("APP_ENV=production\nRATE_LIMIT_PER_MINUTE=30\n"), 0o600))
	t.Setenv("SITDB_ENV_FILE", path)
	t.Setenv("APP_ENV", "")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "")
	os.Unsetenv("APP_ENV")
	os.Unsetenv("RATE_LIMIT_PER_MINUTE")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 30, cfg.RateLimitPerMinute)
}

func TestLoadConfigRejectsShortJWTSecret(t *testing.T) {
	setSecrets(t)
	t.Setenv("JWT_SECRET", "short")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt secret")
}

func TestLoadConfigRequiresSessionSecret(t *testing.T) {
	setSecrets(t)
	t.Setenv("SESSION_SECRET", "")
	os.Unsetenv("SESSION_SECRET")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRejectsZeroPollInterval(t *testing.T) {
	setSecrets(t)
	t.Setenv("REALTIME_POLL_INTERVAL", "0s")

	_, err := LoadConfig()
	require.Error(t, err)
}
