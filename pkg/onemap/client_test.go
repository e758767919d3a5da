package onemap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/resale-enrich/internal/resilience"
)

func TestGeocode_Match(t *testing.T) {
	var gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("searchVal")
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "Y", r.URL.Query().Get("returnGeom"))
		assert.Equal(t, "Y", r.URL.Query().Get("getAddrDetails"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"found": 2,
			"results": [
				{"SEARCHVAL": "BLK 123", "ADDRESS": "123 ANG MO KIO AVENUE 3 SINGAPORE 560123",
				 "POSTAL": "560123", "LATITUDE": "1.36970", "LONGITUDE": "103.84960"},
				{"SEARCHVAL": "OTHER", "LATITUDE": "1.0", "LONGITUDE": "103.0"}
			]
		}`)
	}))
	defer srv.Close()

	c := NewClient(
		WithHTTPClient(newRewriteClient(srv.URL, DefaultSearchURL)),
		WithToken("secret-token"),
		WithRetry(fastRetry()),
	)

	result, err := c.Geocode(context.Background(), "123 ANG MO KIO AVENUE 3")
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.InDelta(t, 1.3697, result.Latitude, 1e-6)
	assert.InDelta(t, 103.8496, result.Longitude, 1e-6)
	assert.Equal(t, "560123", result.Postal)
	assert.Equal(t, "123 ANG MO KIO AVENUE 3", gotQuery)
	assert.Equal(t, "secret-token", gotAuth)
}

func TestGeocode_NumericCoordinates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"found":1,"results":[{"LATITUDE":1.35,"LONGITUDE":103.85}]}`)
	}))
	defer srv.Close()

	c := NewClient(WithSearchURL(srv.URL), WithRetry(fastRetry()))
	result, err := c.Geocode(context.Background(), "anything")
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.InDelta(t, 1.35, result.Latitude, 1e-9)
}

func TestGeocode_NoResults(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, `{"found":0,"totalNumPages":0,"pageNum":1,"results":[]}`)
	}))
	defer srv.Close()

	c := NewClient(WithSearchURL(srv.URL), WithRetry(fastRetry()))
	result, err := c.Geocode(context.Background(), "NOWHERE")
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.Equal(t, int32(1), hits.Load(), "not found must not be retried")
}

func TestGeocode_RetriesThenServiceError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var delays []time.Duration
	cfg := fastRetry()
	cfg.OnRetry = func(_ int, d time.Duration, _ error) {
		delays = append(delays, d)
	}

	c := NewClient(WithSearchURL(srv.URL), WithRetry(cfg))
	result, err := c.Geocode(context.Background(), "123 ANYWHERE")
	require.Error(t, err)
	assert.Nil(t, result)

	var se *ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "search", se.Op)
	assert.Equal(t, 3, se.Attempts)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Equal(t, int32(3), hits.Load())

	require.Len(t, delays, 2)
	assert.Less(t, delays[0], delays[1])
}

func TestGeocode_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	var retries int
	cfg := fastRetry()
	cfg.OnRetry = func(int, time.Duration, error) { retries++ }

	c := NewClient(WithSearchURL(url), WithRetry(cfg))
	_, err := c.Geocode(context.Background(), "123 ANYWHERE")
	require.Error(t, err)
	assert.True(t, IsServiceError(err))
	assert.Equal(t, 2, retries)
}

func TestGeocode_PermanentStatusNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(WithSearchURL(srv.URL), WithRetry(fastRetry()))
	_, err := c.Geocode(context.Background(), "123 ANYWHERE")

	var se *ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Equal(t, 1, se.Attempts)
	assert.Equal(t, int32(1), hits.Load())
}

func TestGeocode_RecoversAfterTransientFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `{"found":1,"results":[{"LATITUDE":"1.3","LONGITUDE":"103.8"}]}`)
	}))
	defer srv.Close()

	c := NewClient(WithSearchURL(srv.URL), WithRetry(fastRetry()))
	result, err := c.Geocode(context.Background(), "X")
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, int32(2), hits.Load())
}

func TestGeocode_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{not json`)
	}))
	defer srv.Close()

	c := NewClient(WithSearchURL(srv.URL), WithRetry(fastRetry()))
	_, err := c.Geocode(context.Background(), "X")
	assert.True(t, IsServiceError(err))
	assert.Equal(t, resilience.ClassPermanent, resilience.ClassifyError(err))
}

func TestNearbyStations(t *testing.T) {
	var gotRadius string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRadius = r.URL.Query().Get("radius_in_meters")
		assert.Equal(t, "1.35", r.URL.Query().Get("latitude"))
		assert.Equal(t, "103.85", r.URL.Query().Get("longitude"))
		_, _ = io.WriteString(w, `[
			{"name": "BISHAN MRT STATION", "lat": "1.35092", "lon": "103.84817"},
			{"name": "BROKEN", "lat": "", "lon": "103.8"},
			{"name": "MARYMOUNT MRT STATION", "lat": 1.34867, "lon": 103.83942}
		]`)
	}))
	defer srv.Close()

	c := NewClient(WithHTTPClient(newRewriteClient(srv.URL, DefaultNearestURL)))
	stations, err := c.NearbyStations(context.Background(), 1.35, 103.85, 2000)
	require.NoError(t, err)
	assert.Equal(t, "2000", gotRadius)
	require.Len(t, stations, 2)
	assert.Equal(t, "BISHAN MRT STATION", stations[0].Name)
	assert.InDelta(t, 1.34867, stations[1].Latitude, 1e-9)
}

func TestNearbyStations_EmptyAndNonList(t *testing.T) {
	for name, body := range map[string]string{
		"empty list":   `[]`,
		"null":         `null`,
		"error object": `{"error": "no stations"}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, body)
			}))
			defer srv.Close()

			c := NewClient(WithNearestURL(srv.URL))
			stations, err := c.NearbyStations(context.Background(), 1.3, 103.8, 5000)
			require.NoError(t, err)
			assert.Empty(t, stations)
		})
	}
}

func TestNearbyStations_SingleAttempt(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(WithNearestURL(srv.URL), WithRetry(fastRetry()))
	_, err := c.NearbyStations(context.Background(), 1.3, 103.8, 2000)

	var se *ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "nearest_mrt", se.Op)
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}

func TestServiceError_Message(t *testing.T) {
	err := &ServiceError{Op: "search", StatusCode: 503, Attempts: 3, Err: errors.New("boom")}
	assert.Contains(t, err.Error(), "status 503")
	assert.Contains(t, err.Error(), "3 attempt(s)")
	assert.ErrorContains(t, err, "boom")
}

func TestServiceError_Retryable(t *testing.T) {
	tests := []struct {
		name string
		err  *ServiceError
		want bool
	}{
		{"throttled", &ServiceError{StatusCode: http.StatusTooManyRequests}, true},
		{"unavailable", &ServiceError{StatusCode: http.StatusServiceUnavailable}, true},
		{"unauthorized", &ServiceError{StatusCode: http.StatusUnauthorized}, false},
		{"not found", &ServiceError{StatusCode: http.StatusNotFound}, false},
		{"no response", &ServiceError{transport: true}, true},
		{"bad body", &ServiceError{Err: errors.New("parse search response")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Retryable())
			assert.Equal(t, tt.want, retryable(fmt.Errorf("wrapped: %w", tt.err)))
		})
	}
}

func TestGeocode_FailureClass(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(WithSearchURL(srv.URL), WithRetry(fastRetry()))
	_, err := c.Geocode(context.Background(), "X")
	assert.Equal(t, resilience.ClassPermanent, resilience.ClassifyError(err))

	down := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := down.URL
	down.Close()

	c = NewClient(WithSearchURL(url), WithRetry(fastRetry()))
	_, err = c.Geocode(context.Background(), "X")
	assert.Equal(t, resilience.ClassTransient, resilience.ClassifyError(err))
}
