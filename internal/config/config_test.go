package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "nominatim", cfg.Geocode.Provider)
	assert.Equal(t, "Brazil", cfg.Geocode.Country)
	assert.Equal(t, "br", cfg.Geocode.CountryCode)
	assert.Equal(t, "roteiro-cli/1.0", cfg.Geocode.UserAgent)
	assert.Equal(t, "pt-BR", cfg.Geocode.Google.Language)
	assert.True(t, cfg.Geocode.Cache.Enabled)
	assert.Equal(t, 90, cfg.Geocode.Cache.TTLDays)
	assert.Equal(t, 3, cfg.Geocode.Retry.MaxAttempts)
	assert.Equal(t, 10, cfg.Enrich.CheckpointEvery)
	assert.Equal(t, ";", cfg.Enrich.Delimiter)
	assert.Equal(t, "keep-last", cfg.Reconcile.NamePolicy)
	assert.Equal(t, "public.clientes", cfg.Store.Table)
	assert.Equal(t, time.Second, cfg.Geocode.Interval())
	assert.Equal(t, time.Duration(0), cfg.Enrich.CheckpointInterval())
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
geocode:
  provider: google
  google:
    key: abc123
enrich:
  checkpoint_every: 5
  checkpoint_interval_secs: 120
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "google", cfg.Geocode.Provider)
	assert.Equal(t, "abc123", cfg.Geocode.Google.Key)
	assert.Equal(t, 5, cfg.Enrich.CheckpointEvery)
	assert.Equal(t, 2*time.Minute, cfg.Enrich.CheckpointInterval())
	assert.Equal(t, 100*time.Millisecond, cfg.Geocode.Interval())
	// Defaults still apply for unset values
	assert.Equal(t, "br", cfg.Geocode.Google.Region)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
geocode:
  interval_ms: 1500
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("ROTEIRO_GEOCODE_INTERVAL_MS", "2000")
	t.Setenv("ROTEIRO_LOG_LEVEL", "warn")
	t.Setenv("ROTEIRO_GEOCODE_GOOGLE_KEY", "from-env")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Geocode.Interval())
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "from-env", cfg.Geocode.Google.Key)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Geocode.Provider = ProviderNominatim
	cfg.Geocode.UserAgent = "roteiro-cli/1.0"
	cfg.Geocode.Retry.MaxAttempts = 3
	cfg.Enrich.CheckpointEvery = 10
	cfg.Reconcile.NamePolicy = "keep-last"
	cfg.Store.Table = "public.clientes"
	return cfg
}

func TestValidateGeocode(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("geocode"))

	cfg.Geocode.Provider = "bing"
	cfg.Enrich.CheckpointEvery = 0
	err := cfg.Validate("geocode")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geocode.provider must be nominatim or google")
	assert.Contains(t, err.Error(), "enrich.checkpoint_every must be >= 1")
}

func TestValidateGeocode_NominatimNeedsUserAgent(t *testing.T) {
	cfg := validDefaults()
	cfg.Geocode.UserAgent = " "

	err := cfg.Validate("geocode")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user_agent")
}

func TestValidateReconcile(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("reconcile"))

	cfg.Reconcile.NamePolicy = "keep-random"
	assert.Error(t, cfg.Validate("reconcile"))
}

func TestValidateLoad(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("load")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/roteiro"
	assert.NoError(t, cfg.Validate("load"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestLoadEnrichInputLayout(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
enrich:
  sheet: Clientes
  skip_rows: 2
  comment: "#"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "Clientes", cfg.Enrich.Sheet)
	assert.Equal(t, 2, cfg.Enrich.SkipRows)
	assert.Equal(t, "#", cfg.Enrich.Comment)
}

func TestValidateSkipRows(t *testing.T) {
	cfg := validDefaults()
	cfg.Enrich.SkipRows = -1

	for _, mode := range []string{"geocode", "reconcile"} {
		err := cfg.Validate(mode)
		require.Error(t, err, mode)
		assert.Contains(t, err.Error(), "enrich.skip_rows must be >= 0")
	}
}
