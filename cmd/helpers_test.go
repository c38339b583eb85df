package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/roteiro-cli/internal/config"
)

// testConfig returns a config equivalent to the defaults, tuned for fast
// tests: 1ms spacing, millisecond backoff, no cache.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.Log = config.LogConfig{Level: "error", Format: "json"}
	c.Geocode = config.GeocodeConfig{
		Provider:    config.ProviderNominatim,
		Country:     "Brazil",
		CountryCode: "br",
		IntervalMs:  1,
		TimeoutSecs: 5,
		UserAgent:   "roteiro-cli-test/1.0",
		Retry:       config.RetryConfig{MaxAttempts: 2, InitialBackoffMs: 1, MaxBackoffMs: 2},
	}
	c.Enrich = config.EnrichConfig{CheckpointEvery: 10, Delimiter: ";", Encoding: "utf-8"}
	c.Reconcile = config.ReconcileConfig{NamePolicy: "keep-last"}
	c.Store = config.StoreConfig{Table: "public.clientes"}
	return c
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
