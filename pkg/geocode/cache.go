package geocode

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // sqlite driver
)

// Cache stores provider answers per query so re-runs do not hit the
// provider for text it has already seen. Matches and non-matches are cached;
// errors never are.
type Cache interface {
	Get(ctx context.Context, provider string, q Query) (*Result, bool)
	Put(ctx context.Context, provider string, q Query, r *Result) error
}

// cacheKey returns SHA-256 hex of the provider name and normalized query text.
func cacheKey(provider string, q Query) string {
	normalized := strings.ToLower(provider) + "|" + strings.ToLower(q.Text())
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}

const sqliteCacheMigration = `
CREATE TABLE IF NOT EXISTS geocode_cache (
	query_hash TEXT PRIMARY KEY,
	provider   TEXT NOT NULL,
	query      TEXT NOT NULL,
	latitude   REAL NOT NULL DEFAULT 0,
	longitude  REAL NOT NULL DEFAULT 0,
	quality    TEXT NOT NULL DEFAULT '',
	matched    INTEGER NOT NULL DEFAULT 0,
	cached_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_geocode_cache_cached_at ON geocode_cache(cached_at);
`

// SQLiteCache implements Cache on a local SQLite file.
type SQLiteCache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// OpenSQLiteCache opens (and migrates) a cache at dsn. ttlDays <= 0 keeps
// entries forever.
func OpenSQLiteCache(ctx context.Context, dsn string, ttlDays int) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "geocode cache: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "geocode cache: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteCacheMigration); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "geocode cache: migrate")
	}

	c := &SQLiteCache{db: db, now: time.Now}
	if ttlDays > 0 {
		c.ttl = time.Duration(ttlDays) * 24 * time.Hour
	}
	return c, nil
}

// Get looks up a cached answer, respecting the TTL.
func (c *SQLiteCache) Get(ctx context.Context, provider string, q Query) (*Result, bool) {
	key := cacheKey(provider, q)

	query := "SELECT latitude, longitude, quality, matched FROM geocode_cache WHERE query_hash = ?"
	args := []any{key}
	if c.ttl > 0 {
		query += " AND cached_at > ?"
		args = append(args, c.now().Add(-c.ttl).Unix())
	}

	var lat, lng float64
	var quality string
	var matched bool
	err := c.db.QueryRowContext(ctx, query, args...).Scan(&lat, &lng, &quality, &matched)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			zap.L().Warn("geocode cache: lookup failed", zap.Error(err))
		}
		return nil, false
	}

	zap.L().Debug("geocode cache hit", zap.String("key", key[:12]), zap.Bool("matched", matched))

	if !matched {
		return noMatch(provider), true
	}
	return &Result{
		Coordinate: Coordinate{Lat: lat, Lng: lng},
		Matched:    true,
		Source:     provider,
		Quality:    quality,
	}, true
}

// Put stores an answer (match or non-match).
func (c *SQLiteCache) Put(ctx context.Context, provider string, q Query, r *Result) error {
	if r == nil {
		return nil
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO geocode_cache (query_hash, provider, query, latitude, longitude, quality, matched, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (query_hash) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			quality = excluded.quality,
			matched = excluded.matched,
			cached_at = excluded.cached_at`,
		cacheKey(provider, q), provider, q.Text(), r.Coordinate.Lat, r.Coordinate.Lng, r.Quality, r.Matched, c.now().Unix(),
	)
	if err != nil {
		return eris.Wrap(err, "geocode cache: store")
	}
	return nil
}

// Close releases the database handle.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
