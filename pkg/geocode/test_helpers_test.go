package geocode

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sells-group/roteiro-cli/internal/resilience"
)

// fastRetry retries rate limits without real sleeps.
func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2.0,
	}
}

// newRewriteClient creates an HTTP client that rewrites requests to a test server URL.
// All requests matching the target prefix are redirected to the test server.
func newRewriteClient(testServerURL, targetPrefix string) *http.Client {
	return &http.Client{
		Transport: &rewriteTransport{
			base:         http.DefaultTransport,
			testServer:   testServerURL,
			targetPrefix: targetPrefix,
		},
	}
}

type rewriteTransport struct {
	base         http.RoundTripper
	testServer   string
	targetPrefix string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	origURL := req.URL.String()
	if strings.HasPrefix(origURL, t.targetPrefix) {
		newReq := req.Clone(req.Context())
		parsed, err := req.URL.Parse(t.testServer + origURL[len(t.targetPrefix):])
		if err != nil {
			return nil, err
		}
		newReq.URL = parsed
		newReq.Host = parsed.Host
		return t.base.RoundTrip(newReq)
	}
	return t.base.RoundTrip(req)
}

// scriptedProvider answers by query text and records every query it sees.
type scriptedProvider struct {
	mu      sync.Mutex
	answers map[string]*Result
	errs    map[string]error
	queries []Query
}

func newScriptedProvider() *scriptedProvider {
	return &scriptedProvider{answers: map[string]*Result{}, errs: map[string]error{}}
}

func (p *scriptedProvider) match(text string, lat, lng float64) *scriptedProvider {
	p.answers[text] = &Result{Coordinate: Coordinate{Lat: lat, Lng: lng}, Matched: true, Source: "scripted", Quality: "rooftop"}
	return p
}

func (p *scriptedProvider) fail(text string, err error) *scriptedProvider {
	p.errs[text] = err
	return p
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Geocode(_ context.Context, q Query) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queries = append(p.queries, q)
	if err, ok := p.errs[q.Text()]; ok {
		return nil, err
	}
	if r, ok := p.answers[q.Text()]; ok {
		cp := *r
		return &cp, nil
	}
	return noMatch("scripted"), nil
}

func (p *scriptedProvider) texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.queries))
	for i, q := range p.queries {
		out[i] = q.Text()
	}
	return out
}

// countingThrottler counts Wait/Done pairs without sleeping.
type countingThrottler struct {
	waits int
	dones int
}

func (c *countingThrottler) Wait(context.Context) error { c.waits++; return nil }
func (c *countingThrottler) Done()                      { c.dones++ }

// memCache is an in-memory Cache for resolver tests.
type memCache struct {
	entries map[string]*Result
	puts    int
}

func newMemCache() *memCache { return &memCache{entries: map[string]*Result{}} }

func (m *memCache) Get(_ context.Context, provider string, q Query) (*Result, bool) {
	r, ok := m.entries[cacheKey(provider, q)]
	return r, ok
}

func (m *memCache) Put(_ context.Context, provider string, q Query, r *Result) error {
	m.puts++
	m.entries[cacheKey(provider, q)] = r
	return nil
}
