package geocode

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/roteiro-cli/internal/resilience"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// Google Geocoding API status values.
const (
	googleStatusOK             = "OK"
	googleStatusZeroResults    = "ZERO_RESULTS"
	googleStatusOverQueryLimit = "OVER_QUERY_LIMIT"
	googleStatusRequestDenied  = "REQUEST_DENIED"
	googleStatusInvalidRequest = "INVALID_REQUEST"
	googleStatusUnknownError   = "UNKNOWN_ERROR"
)

// placeholderKeys are values shipped in sample configs that must never reach
// the API.
var placeholderKeys = map[string]bool{
	"SUA_CHAVE_DE_API_AQUI": true,
	"YOUR_API_KEY":          true,
	"YOUR_API_KEY_HERE":     true,
	"CHANGEME":              true,
}

// googleGeocodeResponse is the JSON response from the Google Geocoding API.
// Geometry fields are pointers so a payload missing them is detectable.
type googleGeocodeResponse struct {
	Results      []googleResult `json:"results"`
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message"`
}

type googleResult struct {
	Geometry *struct {
		Location *struct {
			Lat *float64 `json:"lat"`
			Lng *float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"`
	} `json:"geometry"`
	FormattedAddress string `json:"formatted_address"`
}

// Google geocodes queries with the Google Geocoding API.
type Google struct {
	httpClient *http.Client
	baseURL    string
	key        string
	region     string
	language   string
	retry      resilience.RetryConfig
}

// GoogleOption configures a Google provider.
type GoogleOption func(*Google)

// WithGoogleBaseURL overrides the geocode endpoint.
func WithGoogleBaseURL(u string) GoogleOption {
	return func(g *Google) {
		if u != "" {
			g.baseURL = u
		}
	}
}

// WithGoogleHTTPClient sets a custom HTTP client.
func WithGoogleHTTPClient(hc *http.Client) GoogleOption {
	return func(g *Google) {
		g.httpClient = hc
	}
}

// WithGoogleRegion sets the region bias (ccTLD) and response language.
func WithGoogleRegion(region, language string) GoogleOption {
	return func(g *Google) {
		if region != "" {
			g.region = region
		}
		if language != "" {
			g.language = language
		}
	}
}

// WithGoogleRetry sets the backoff used for OVER_QUERY_LIMIT, UNKNOWN_ERROR and
// 429 responses.
func WithGoogleRetry(cfg resilience.RetryConfig) GoogleOption {
	return func(g *Google) {
		g.retry = cfg
	}
}

// NewGoogle creates a Google provider. It fails with ErrMissingCredential when
// key is empty or a known placeholder, before any request is made.
func NewGoogle(key string, opts ...GoogleOption) (*Google, error) {
	key = strings.TrimSpace(key)
	if key == "" || placeholderKeys[strings.ToUpper(key)] {
		return nil, eris.Wrap(ErrMissingCredential, "google api key not configured")
	}

	g := &Google{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    googleGeocodeURL,
		key:        key,
		region:     "br",
		language:   "pt-BR",
		retry:      resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Name implements Provider.
func (g *Google) Name() string { return "google" }

// Geocode implements Provider.
func (g *Google) Geocode(ctx context.Context, q Query) (*Result, error) {
	text := q.Text()
	if text == "" {
		return noMatch(g.Name()), nil
	}

	params := url.Values{
		"address":  {text},
		"key":      {g.key},
		"region":   {g.region},
		"language": {g.language},
	}
	reqURL := g.baseURL + "?" + params.Encode()

	result, err := retryTransient(ctx, g.retry, g.Name(), func(ctx context.Context) (*Result, error) {
		var resp googleGeocodeResponse
		if err := getJSON(ctx, g.httpClient, reqURL, nil, &resp); err != nil {
			return nil, err
		}
		return g.parse(resp)
	})
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google")
	}
	return result, nil
}

// parse maps the status field and first candidate to a Result. Empty results
// are a no-match; client/config problems are errors.
func (g *Google) parse(resp googleGeocodeResponse) (*Result, error) {
	switch resp.Status {
	case googleStatusOK:
		if len(resp.Results) == 0 {
			return noMatch(g.Name()), nil
		}
	case googleStatusZeroResults:
		return noMatch(g.Name()), nil
	case googleStatusOverQueryLimit:
		return nil, resilience.NewTransientError(eris.Wrap(ErrRateLimited, resp.Status), http.StatusTooManyRequests)
	case googleStatusRequestDenied, googleStatusInvalidRequest:
		return nil, eris.Wrapf(ErrProviderRejected, "%s: %s", resp.Status, resp.ErrorMessage)
	case googleStatusUnknownError:
		return nil, resilience.NewTransientError(eris.Errorf("google returned %s", resp.Status), 0)
	default:
		return nil, eris.Wrapf(ErrMalformedResponse, "unexpected status %q", resp.Status)
	}

	first := resp.Results[0]
	if first.Geometry == nil || first.Geometry.Location == nil ||
		first.Geometry.Location.Lat == nil || first.Geometry.Location.Lng == nil {
		return nil, eris.Wrap(ErrMalformedResponse, "google result missing geometry.location")
	}
	coord := Coordinate{Lat: *first.Geometry.Location.Lat, Lng: *first.Geometry.Location.Lng}
	if !coord.Valid() {
		return nil, eris.Wrapf(ErrMalformedResponse, "google coordinates out of range %v", coord)
	}

	return &Result{
		Coordinate: coord,
		Matched:    true,
		Source:     g.Name(),
		Quality:    googleLocationTypeToQuality(first.Geometry.LocationType),
	}, nil
}

// googleLocationTypeToQuality maps Google's location_type to our quality taxonomy.
func googleLocationTypeToQuality(locType string) string {
	switch strings.ToUpper(locType) {
	case "ROOFTOP":
		return "rooftop"
	case "RANGE_INTERPOLATED":
		return "range"
	case "GEOMETRIC_CENTER":
		return "centroid"
	case "APPROXIMATE":
		return "approximate"
	default:
		return "approximate"
	}
}
