package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 14, cfg.Loans.DefaultDays)
	assert.Equal(t, 0.5, cfg.Loans.FinePerDay)
	assert.Equal(t, 30*time.Minute, cfg.Auth.TokenTTL)
	assert.Zero(t, cfg.Loans.SweepInterval)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "schoollib.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9000"
loans:
  default_days: 21
  fine_per_day: 1.25
  sweep_interval: 10m
auth:
  token_ttl: 1h
`), 0o600))

	t.Setenv("PORT", "9100")
	t.Setenv("CORS_ORIGIN", "http://a.test, http://b.test")
	t.Setenv("LOAN_FINE_PER_DAY", "0.75")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Server.Addr)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 21, cfg.Loans.DefaultDays)
	assert.Equal(t, 0.75, cfg.Loans.FinePerDay)
	assert.Equal(t, 10*time.Minute, cfg.Loans.SweepInterval)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LOAN_DEFAULT_DAYS", "120")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default days")

	t.Setenv("LOAN_DEFAULT_DAYS", "abc")
	_, err = Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOAN_DEFAULT_DAYS")
}

func TestRequireSecret(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.RequireSecret())

	cfg.Auth.JWTSecret = "0123456789abcdef"
	assert.NoError(t, cfg.RequireSecret())
}
