package geocode

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/roteiro-cli/internal/resilience"
)

const (
	nominatimSearchURL = "https://nominatim.openstreetmap.org/search"
	defaultUserAgent   = "roteiro-cli/1.0"
)

// nominatimPlace is one candidate from the Nominatim search API. Coordinates
// arrive as strings.
type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Class       string `json:"class"`
	Type        string `json:"type"`
}

// Nominatim geocodes free-text queries against OpenStreetMap Nominatim.
type Nominatim struct {
	httpClient  *http.Client
	baseURL     string
	userAgent   string
	countryCode string
	country     string
	throttle    Throttler
	retry       resilience.RetryConfig
}

// NominatimOption configures a Nominatim provider.
type NominatimOption func(*Nominatim)

// WithNominatimBaseURL overrides the search endpoint.
func WithNominatimBaseURL(u string) NominatimOption {
	return func(n *Nominatim) {
		if u != "" {
			n.baseURL = u
		}
	}
}

// WithNominatimUserAgent sets the User-Agent header required by the usage policy.
func WithNominatimUserAgent(ua string) NominatimOption {
	return func(n *Nominatim) {
		if ua != "" {
			n.userAgent = ua
		}
	}
}

// WithNominatimHTTPClient sets a custom HTTP client.
func WithNominatimHTTPClient(hc *http.Client) NominatimOption {
	return func(n *Nominatim) {
		n.httpClient = hc
	}
}

// WithNominatimCountry restricts results to a country. code is the ISO code
// sent as countrycodes; name is appended to the locality elaboration.
func WithNominatimCountry(code, name string) NominatimOption {
	return func(n *Nominatim) {
		n.countryCode = strings.ToLower(code)
		n.country = name
	}
}

// WithNominatimThrottle spaces the provider's own locality retry. Pass the
// same limiter the Resolver uses.
func WithNominatimThrottle(t Throttler) NominatimOption {
	return func(n *Nominatim) {
		if t != nil {
			n.throttle = t
		}
	}
}

// WithNominatimRetry sets the backoff used for rate-limit responses.
func WithNominatimRetry(cfg resilience.RetryConfig) NominatimOption {
	return func(n *Nominatim) {
		n.retry = cfg
	}
}

// NewNominatim creates a Nominatim provider restricted to Brazil by default.
func NewNominatim(opts ...NominatimOption) *Nominatim {
	n := &Nominatim{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		baseURL:     nominatimSearchURL,
		userAgent:   defaultUserAgent,
		countryCode: "br",
		country:     "Brazil",
		throttle:    noopThrottler{},
		retry:       resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Name implements Provider.
func (n *Nominatim) Name() string { return "nominatim" }

// Geocode implements Provider. When the full text returns no candidates and
// the query carries locality hints, one looser city/region query is sent.
func (n *Nominatim) Geocode(ctx context.Context, q Query) (*Result, error) {
	text := q.Text()
	if text == "" {
		return noMatch(n.Name()), nil
	}

	result, err := n.search(ctx, text)
	if err != nil || result.Matched {
		return result, err
	}

	loose := n.FallbackText(q)
	if loose == "" {
		return result, nil
	}

	zap.L().Debug("nominatim: no candidates, retrying with locality",
		zap.String("query", text),
		zap.String("locality", loose),
	)

	n.throttle.Done()
	if err := n.throttle.Wait(ctx); err != nil {
		return nil, err
	}
	return n.search(ctx, loose)
}

// FallbackText implements LocalityFallback.
func (n *Nominatim) FallbackText(q Query) string {
	loose := q.LocalityText(n.country)
	if loose == q.Text() {
		return ""
	}
	return loose
}

func (n *Nominatim) search(ctx context.Context, text string) (*Result, error) {
	params := url.Values{
		"q":              {text},
		"format":         {"json"},
		"limit":          {"1"},
		"addressdetails": {"1"},
	}
	if n.countryCode != "" {
		params.Set("countrycodes", n.countryCode)
	}
	reqURL := n.baseURL + "?" + params.Encode()
	header := http.Header{"User-Agent": {n.userAgent}, "Accept": {"application/json"}}

	result, err := retryRateLimited(ctx, n.retry, n.Name(), func(ctx context.Context) (*Result, error) {
		var places []nominatimPlace
		if err := getJSON(ctx, n.httpClient, reqURL, header, &places); err != nil {
			return nil, err
		}
		if len(places) == 0 {
			return noMatch(n.Name()), nil
		}
		return n.parsePlace(places[0])
	})
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim search")
	}
	return result, nil
}

func (n *Nominatim) parsePlace(p nominatimPlace) (*Result, error) {
	lat, latErr := strconv.ParseFloat(strings.TrimSpace(p.Lat), 64)
	lng, lngErr := strconv.ParseFloat(strings.TrimSpace(p.Lon), 64)
	if latErr != nil || lngErr != nil {
		return nil, eris.Wrapf(ErrMalformedResponse, "nominatim coordinates %q,%q", p.Lat, p.Lon)
	}
	coord := Coordinate{Lat: lat, Lng: lng}
	if !coord.Valid() {
		return nil, eris.Wrapf(ErrMalformedResponse, "nominatim coordinates out of range %v", coord)
	}
	return &Result{
		Coordinate: coord,
		Matched:    true,
		Source:     n.Name(),
		Quality:    nominatimTypeToQuality(p.Class, p.Type),
	}, nil
}

// nominatimTypeToQuality maps an OSM class/type to our quality taxonomy.
func nominatimTypeToQuality(class, typ string) string {
	switch strings.ToLower(typ) {
	case "house", "building", "apartments", "commercial", "retail", "supermarket":
		return "rooftop"
	case "residential", "primary", "secondary", "tertiary", "unclassified", "service", "living_street":
		return "range"
	case "city", "town", "village", "suburb", "neighbourhood", "administrative", "postcode":
		return "centroid"
	}
	if strings.EqualFold(class, "building") || strings.EqualFold(class, "shop") {
		return "rooftop"
	}
	return "approximate"
}
