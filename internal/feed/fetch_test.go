package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"stoptracker.transitpulse.org/internal/apperrors"
	"stoptracker.transitpulse.org/internal/feed/feedtest"
)

type recordingObserver struct {
	mu      sync.Mutex
	sources []string
	errs    []error
}

func (o *recordingObserver) ObserveFetch(source string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sources = append(o.sources, source)
	o.errs = append(o.errs, err)
}

func TestFetch_ReturnsBinaryBodyAndSendsHeaders(t *testing.T) {
	body := feedtest.VehiclePositions(feedtest.Vehicle{EntityID: "1", Label: "1234", RouteID: "A", Lat: 39, Lng: -105})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/x-protobuf")
		_, _ = w.Write(body)
	}))
	defer server.Close()

	observer := &recordingObserver{}
	fetcher := NewFetcher(nil, map[string]string{"X-Api-Key": "secret"}, observer)

	got, err := fetcher.Fetch(context.Background(), "vehicle_positions", server.URL)
	require.NoError(t, err)
	assert.Equal(t, body, got)

	vehicles, err := DecodeVehicles(got)
	require.NoError(t, err)
	assert.Len(t, vehicles, 1)

	assert.Equal(t, []string{"vehicle_positions"}, observer.sources)
	assert.NoError(t, observer.errs[0])
}

func TestFetch_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	observer := &recordingObserver{}
	fetcher := NewFetcher(nil, nil, observer)

	_, err := fetcher.Fetch(context.Background(), "trip_updates", server.URL)
	require.Error(t, err)

	var fetchErr *apperrors.UpstreamFetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusServiceUnavailable, fetchErr.StatusCode)
	assert.Equal(t, "trip_updates", fetchErr.Source)
	assert.Error(t, observer.errs[0])
}

func TestFetch_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	fetcher := NewFetcher(NewHTTPClient(time.Second), nil, nil)
	_, err := fetcher.Fetch(context.Background(), "trip_updates", url)

	assert.True(t, apperrors.IsUpstream(err))
}

func TestFetch_CanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("late"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFetcher(nil, nil, nil).Fetch(ctx, "trip_updates", server.URL)
	assert.True(t, apperrors.IsUpstream(err))
	assert.ErrorIs(t, err, context.Canceled)
}
