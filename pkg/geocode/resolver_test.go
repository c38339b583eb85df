package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fullAddr = Address{
	ID:         "1",
	Street:     "Rua A 10",
	Complement: "Loja 2",
	City:       "Salvador",
	Region:     "BA",
	PostalCode: "40000-000",
}

func TestResolver_FullTierMatch(t *testing.T) {
	p := newScriptedProvider().match("Rua A 10, Loja 2, Salvador, BA, 40000-000", -12.97, -38.50)
	th := &countingThrottler{}

	res := NewResolver(p, th).Resolve(context.Background(), fullAddr)

	require.True(t, res.Matched)
	assert.Equal(t, TierFull, res.Tier)
	assert.Equal(t, ReasonNone, res.Reason)
	assert.InDelta(t, -12.97, res.Coordinate.Lat, 1e-9)
	assert.Len(t, p.texts(), 1)
	assert.Equal(t, 1, th.waits)
	assert.Equal(t, 1, th.dones)
}

func TestResolver_EscalatesToCityRegion(t *testing.T) {
	p := newScriptedProvider().match("Salvador, BA, Brazil", -12.9, -38.4)

	res := NewResolver(p, nil).Resolve(context.Background(), fullAddr)

	require.True(t, res.Matched)
	assert.Equal(t, TierCityRegion, res.Tier)
	assert.Equal(t, []string{"Rua A 10, Loja 2, Salvador, BA, 40000-000", "Salvador, BA, Brazil"}, p.texts())
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, ReasonNoMatch, res.Attempts[0].Reason)
	assert.Equal(t, ReasonNone, res.Attempts[1].Reason)
}

func TestResolver_EscalatesToPostal(t *testing.T) {
	p := newScriptedProvider().match("40000-000, Brazil", -13.0, -38.5)

	res := NewResolver(p, nil).Resolve(context.Background(), fullAddr)

	require.True(t, res.Matched)
	assert.Equal(t, TierPostal, res.Tier)
	assert.Len(t, p.texts(), 3)
}

func TestResolver_TransportErrorContinues(t *testing.T) {
	p := newScriptedProvider().
		fail("Rua A 10, Loja 2, Salvador, BA, 40000-000", errors.New("connection reset")).
		match("Salvador, BA, Brazil", -12.9, -38.4)

	res := NewResolver(p, nil).Resolve(context.Background(), fullAddr)

	require.True(t, res.Matched)
	assert.Equal(t, TierCityRegion, res.Tier)
	assert.Equal(t, ReasonTransportError, res.Attempts[0].Reason)
}

func TestResolver_RateLimitedTagged(t *testing.T) {
	p := newScriptedProvider().
		fail("Rua A 10, Loja 2, Salvador, BA, 40000-000", eris.Wrap(ErrRateLimited, "429"))

	res := NewResolver(p, nil).Resolve(context.Background(), fullAddr)

	assert.False(t, res.Matched)
	assert.Equal(t, ReasonNoMatch, res.Reason)
	require.Len(t, res.Attempts, 3)
	assert.Equal(t, ReasonRateLimited, res.Attempts[0].Reason)
	assert.Equal(t, TierPostal, res.Tier)
}

func TestResolver_AllTiersExhausted(t *testing.T) {
	p := newScriptedProvider()
	th := &countingThrottler{}

	res := NewResolver(p, th).Resolve(context.Background(), fullAddr)

	assert.False(t, res.Matched)
	assert.Equal(t, ReasonNoMatch, res.Reason)
	assert.Len(t, p.texts(), 3)
	assert.Equal(t, 3, th.waits)
}

func TestResolver_CityOnlyAddressNeverCallsPostal(t *testing.T) {
	p := newScriptedProvider()

	res := NewResolver(p, nil).Resolve(context.Background(), Address{City: "Salvador", Region: "BA"})

	assert.False(t, res.Matched)
	assert.Equal(t, ReasonNoMatch, res.Reason)
	assert.Equal(t, []string{"Salvador, BA, Brazil"}, p.texts())
	assert.Equal(t, TierCityRegion, res.Tier)
}

func TestResolver_EmptyAddressSkipsProvider(t *testing.T) {
	p := newScriptedProvider()
	th := &countingThrottler{}

	res := NewResolver(p, th).Resolve(context.Background(), Address{Street: "  "})

	assert.False(t, res.Matched)
	assert.Empty(t, p.texts())
	assert.Equal(t, 0, th.waits)
	assert.Empty(t, res.Attempts)
}

func TestResolver_CacheHitSkipsProviderAndThrottle(t *testing.T) {
	p := newScriptedProvider()
	cache := newMemCache()
	q, _ := BuildQuery(TierFull, fullAddr, "Brazil")
	cache.entries[cacheKey("scripted", q)] = &Result{Coordinate: Coordinate{Lat: 1, Lng: 2}, Matched: true, Source: "scripted"}
	th := &countingThrottler{}

	res := NewResolver(p, th, WithCache(cache)).Resolve(context.Background(), fullAddr)

	require.True(t, res.Matched)
	assert.True(t, res.Attempts[0].Cached)
	assert.Empty(t, p.texts())
	assert.Equal(t, 0, th.waits)
}

func TestResolver_StoresAnswersInCache(t *testing.T) {
	p := newScriptedProvider().match("Salvador, BA, Brazil", -12.9, -38.4)
	cache := newMemCache()

	NewResolver(p, nil, WithCache(cache)).Resolve(context.Background(), fullAddr)

	assert.Equal(t, 2, cache.puts)
}

func TestResolver_CustomCountry(t *testing.T) {
	p := newScriptedProvider()

	NewResolver(p, nil, WithCountry("Brasil")).Resolve(context.Background(), Address{City: "Recife", Region: "PE"})

	assert.Equal(t, []string{"Recife, PE, Brasil"}, p.texts())
}

func TestResolver_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := newScriptedProvider()

	res := NewResolver(p, nil).Resolve(ctx, fullAddr)

	assert.False(t, res.Matched)
	assert.Empty(t, p.texts())
}

func TestResolver_SkipsCityRegionAfterProviderLocalityFallback(t *testing.T) {
	var mu sync.Mutex
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		queries = append(queries, r.URL.Query().Get("q"))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`)) //nolint:errcheck
	}))
	defer srv.Close()

	n := NewNominatim(WithNominatimBaseURL(srv.URL), WithNominatimRetry(fastRetry()))
	res := NewResolver(n, nil).Resolve(context.Background(), Address{Street: "Rua X 1", City: "Salvador", Region: "BA"})

	assert.False(t, res.Matched)
	assert.Equal(t, ReasonNoMatch, res.Reason)
	assert.Equal(t, []string{"Rua X 1, Salvador, BA", "Salvador, BA, Brazil"}, queries)
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, TierFull, res.Attempts[0].Tier)
}

func TestResolver_CityRegionStillTriedWithoutProviderFallback(t *testing.T) {
	p := newScriptedProvider()

	res := NewResolver(p, nil).Resolve(context.Background(), Address{Street: "Rua X 1", City: "Salvador", Region: "BA"})

	assert.False(t, res.Matched)
	assert.Equal(t, []string{"Rua X 1, Salvador, BA", "Salvador, BA, Brazil"}, p.texts())
}
