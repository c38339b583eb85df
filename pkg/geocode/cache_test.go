package geocode

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T, ttlDays int) *SQLiteCache {
	t.Helper()
	c, err := OpenSQLiteCache(context.Background(), filepath.Join(t.TempDir(), "cache.db"), ttlDays)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() }) //nolint:errcheck
	return c
}

func TestCacheKey_CaseInsensitive(t *testing.T) {
	a, _ := NewQuery(TierPostal, "Salvador", "BA")
	b, _ := NewQuery(TierPostal, "SALVADOR", "ba")
	assert.Equal(t, cacheKey("nominatim", a), cacheKey("Nominatim", b))
	assert.NotEqual(t, cacheKey("nominatim", a), cacheKey("google", a))
}

func TestSQLiteCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := openTestCache(t, 0)
	q, _ := NewQuery(TierCityRegion, "Salvador", "BA", "Brazil")

	_, ok := c.Get(ctx, "nominatim", q)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, "nominatim", q, &Result{Coordinate: Coordinate{Lat: -12.97, Lng: -38.5}, Matched: true, Quality: "centroid"}))
	got, ok := c.Get(ctx, "nominatim", q)
	require.True(t, ok)
	assert.True(t, got.Matched)
	assert.InDelta(t, -12.97, got.Coordinate.Lat, 1e-9)
	assert.Equal(t, "centroid", got.Quality)
	assert.Equal(t, "nominatim", got.Source)

	_, ok = c.Get(ctx, "google", q)
	assert.False(t, ok)
}

func TestSQLiteCache_NonMatchCached(t *testing.T) {
	ctx := context.Background()
	c := openTestCache(t, 0)
	q, _ := NewQuery(TierPostal, "99999-999", "Brazil")

	require.NoError(t, c.Put(ctx, "google", q, noMatch("google")))
	got, ok := c.Get(ctx, "google", q)
	require.True(t, ok)
	assert.False(t, got.Matched)
}

func TestSQLiteCache_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := openTestCache(t, 1)
	q, _ := NewQuery(TierPostal, "40000-000", "Brazil")

	c.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	require.NoError(t, c.Put(ctx, "nominatim", q, &Result{Coordinate: Coordinate{Lat: 1, Lng: 1}, Matched: true}))
	c.now = time.Now

	_, ok := c.Get(ctx, "nominatim", q)
	assert.False(t, ok)
}
