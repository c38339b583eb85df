package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/sells-group/roteiro-cli/internal/resilience"
)

// Provider translates a Query into one outbound request and returns the best
// candidate. A nil error with Matched=false means the provider had no match;
// a non-nil error is a transport failure (see ReasonFor).
type Provider interface {
	Name() string
	Geocode(ctx context.Context, q Query) (*Result, error)
}

// LocalityFallback is implemented by providers that, on a no-match, resend
// the query loosened to its city and region. FallbackText returns the text
// of that second request, or "" when the provider would not send one.
type LocalityFallback interface {
	FallbackText(q Query) string
}

var (
	// ErrMissingCredential is returned at construction when a provider that
	// needs an API key has none (or only a placeholder). It is fatal.
	ErrMissingCredential = eris.New("geocode: missing provider credential")

	// ErrRateLimited marks an explicit throttling response from a provider.
	ErrRateLimited = eris.New("geocode: rate limited by provider")

	// ErrProviderRejected marks a request the provider refused (bad key,
	// invalid request). It is not retried.
	ErrProviderRejected = eris.New("geocode: request rejected by provider")

	// ErrMalformedResponse marks a payload missing the expected fields.
	ErrMalformedResponse = eris.New("geocode: malformed provider response")
)

// IsRateLimited reports whether err carries ErrRateLimited.
func IsRateLimited(err error) bool {
	return err != nil && eris.Is(err, ErrRateLimited)
}

// ReasonFor maps a provider error to the failure reason recorded on a tier.
func ReasonFor(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case IsRateLimited(err):
		return ReasonRateLimited
	default:
		return ReasonTransportError
	}
}

// getJSON performs a GET and decodes a 200 response body into out. A 429 is
// returned as a transient rate-limit error so callers can back off.
func getJSON(ctx context.Context, hc *http.Client, reqURL string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return eris.Wrap(err, "build request")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := hc.Do(req)
	if err != nil {
		return eris.Wrap(err, "request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests {
		return resilience.NewTransientError(eris.Wrap(ErrRateLimited, "status 429"), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read body")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(ErrMalformedResponse, err.Error())
	}
	return nil
}

// retryRateLimited wraps fn so that only explicit rate-limit responses are
// retried, with the configured exponential backoff.
func retryRateLimited(ctx context.Context, cfg resilience.RetryConfig, provider string, fn func(ctx context.Context) (*Result, error)) (*Result, error) {
	return retryWhen(ctx, cfg, provider, IsRateLimited, fn)
}

// retryTransient also retries provider-reported transient failures and
// network timeouts.
func retryTransient(ctx context.Context, cfg resilience.RetryConfig, provider string, fn func(ctx context.Context) (*Result, error)) (*Result, error) {
	return retryWhen(ctx, cfg, provider, resilience.IsTransient, fn)
}

func retryWhen(ctx context.Context, cfg resilience.RetryConfig, provider string, should func(error) bool, fn func(ctx context.Context) (*Result, error)) (*Result, error) {
	cfg.ShouldRetry = should
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger(provider, "geocode")
	}
	return resilience.DoVal(ctx, cfg, fn)
}
