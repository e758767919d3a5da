// Package onemap resolves addresses and nearby MRT stations through the
// OneMap search and nearby-service APIs.
package onemap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/resale-enrich/internal/resilience"
)

const (
	// DefaultSearchURL is the address search endpoint.
	DefaultSearchURL = "https://www.onemap.gov.sg/api/common/elastic/search"
	// DefaultNearestURL is the nearest-MRT endpoint.
	DefaultNearestURL = "https://www.onemap.gov.sg/api/public/nearbysvc/getNearestMrtStops"

	defaultTimeout = 10 * time.Second
)

// Client talks to OneMap.
type Client interface {
	// Geocode resolves a one-line address. A result with Matched=false means
	// the service had no match; that is not an error.
	Geocode(ctx context.Context, query string) (*GeocodeResult, error)

	// NearbyStations lists MRT stations within radiusMeters of a point. An
	// empty slice is a normal outcome.
	NearbyStations(ctx context.Context, lat, lon float64, radiusMeters int) ([]Station, error)
}

// GeocodeResult is the top-ranked search hit.
type GeocodeResult struct {
	Latitude  float64
	Longitude float64
	Address   string
	Postal    string
	Matched   bool
}

// Station is one MRT stop returned by the nearby service.
type Station struct {
	Name      string
	Latitude  float64
	Longitude float64
}

// Option configures the client.
type Option func(*client)

// WithToken sets the access token sent in the Authorization header.
func WithToken(token string) Option {
	return func(c *client) {
		c.token = token
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithSearchURL overrides the search endpoint.
func WithSearchURL(u string) Option {
	return func(c *client) {
		if u != "" {
			c.searchURL = u
		}
	}
}

// WithNearestURL overrides the nearest-MRT endpoint.
func WithNearestURL(u string) Option {
	return func(c *client) {
		if u != "" {
			c.nearestURL = u
		}
	}
}

// WithRetry sets the retry policy for Geocode.
func WithRetry(p resilience.Policy) Option {
	return func(c *client) {
		c.retry = p
	}
}

type client struct {
	httpClient *http.Client
	token      string
	searchURL  string
	nearestURL string
	retry      resilience.Policy
}

// NewClient creates a OneMap client with the given options.
func NewClient(opts ...Option) Client {
	c := &client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		searchURL:  DefaultSearchURL,
		nearestURL: DefaultNearestURL,
		retry:      resilience.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.ShouldRetry == nil {
		c.retry.ShouldRetry = retryable
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.LogRetries("onemap", "search")
	}
	return c
}

type searchResponse struct {
	Found   int            `json:"found"`
	Results []searchResult `json:"results"`
}

type searchResult struct {
	SearchVal string    `json:"SEARCHVAL"`
	Address   string    `json:"ADDRESS"`
	Postal    string    `json:"POSTAL"`
	Latitude  flexFloat `json:"LATITUDE"`
	Longitude flexFloat `json:"LONGITUDE"`
}

type stationResponse struct {
	Name      string    `json:"name"`
	Latitude  flexFloat `json:"lat"`
	Longitude flexFloat `json:"lon"`
}

// Geocode implements Client. Transport failures and retryable statuses are
// retried with exponential backoff; exhaustion yields one *ServiceError.
func (c *client) Geocode(ctx context.Context, query string) (*GeocodeResult, error) {
	params := url.Values{
		"searchVal":      {query},
		"returnGeom":     {"Y"},
		"getAddrDetails": {"Y"},
	}

	body, attempts, err := resilience.Retry(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, "search", c.searchURL, params)
	})
	if err != nil {
		return nil, withAttempts("search", attempts, err)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ServiceError{Op: "search", Attempts: attempts, Err: eris.Wrap(err, "onemap: parse search response")}
	}
	if len(resp.Results) == 0 {
		return &GeocodeResult{Matched: false}, nil
	}

	top := resp.Results[0]
	if !top.Latitude.valid || !top.Longitude.valid {
		return nil, &ServiceError{Op: "search", Attempts: attempts, Err: eris.Errorf("onemap: result for %q has no coordinates", query)}
	}
	return &GeocodeResult{
		Latitude:  top.Latitude.value,
		Longitude: top.Longitude.value,
		Address:   top.Address,
		Postal:    top.Postal,
		Matched:   true,
	}, nil
}

// NearbyStations implements Client. It makes a single attempt; the
// proximity engine owns the fallback policy.
func (c *client) NearbyStations(ctx context.Context, lat, lon float64, radiusMeters int) ([]Station, error) {
	params := url.Values{
		"latitude":         {strconv.FormatFloat(lat, 'f', -1, 64)},
		"longitude":        {strconv.FormatFloat(lon, 'f', -1, 64)},
		"radius_in_meters": {strconv.Itoa(radiusMeters)},
	}

	body, err := c.get(ctx, "nearest_mrt", c.nearestURL, params)
	if err != nil {
		return nil, withAttempts("nearest_mrt", 1, err)
	}

	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	// Anything other than a list (e.g. an error object) means no stations.
	if !strings.HasPrefix(trimmed, "[") {
		return nil, nil
	}

	var raw []stationResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ServiceError{Op: "nearest_mrt", Attempts: 1, Err: eris.Wrap(err, "onemap: parse nearest response")}
	}

	stations := make([]Station, 0, len(raw))
	for _, s := range raw {
		if !s.Latitude.valid || !s.Longitude.valid {
			continue
		}
		stations = append(stations, Station{
			Name:      s.Name,
			Latitude:  s.Latitude.value,
			Longitude: s.Longitude.value,
		})
	}
	return stations, nil
}

// get performs one GET and returns the body of a 2xx response.
func (c *client) get(ctx context.Context, op, endpoint string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrapf(err, "onemap: %s build request", op)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ServiceError{Op: op, Err: eris.Wrapf(err, "onemap: %s request", op), transport: true}
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ServiceError{Op: op, Err: eris.Wrapf(err, "onemap: %s read body", op), transport: true}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ServiceError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        eris.Errorf("onemap: %s returned status %d", op, resp.StatusCode),
		}
	}
	return body, nil
}

// flexFloat accepts JSON numbers and numeric strings ("1.3521").
type flexFloat struct {
	value float64
	valid bool
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = flexFloat{}
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("onemap: invalid coordinate %q: %w", s, err)
	}
	*f = flexFloat{value: v, valid: true}
	return nil
}
