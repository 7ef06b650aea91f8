package restapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"stoptracker.transitpulse.org/internal/app"
	"stoptracker.transitpulse.org/internal/appconf"
	"stoptracker.transitpulse.org/internal/clock"
	"stoptracker.transitpulse.org/internal/dashboard"
	"stoptracker.transitpulse.org/internal/feed"
	"stoptracker.transitpulse.org/internal/feed/feedtest"
	"stoptracker.transitpulse.org/internal/metrics"
	"stoptracker.transitpulse.org/internal/predict"
	"stoptracker.transitpulse.org/internal/realtime"
	"stoptracker.transitpulse.org/internal/stopdir"
	"stoptracker.transitpulse.org/internal/storage"
	"stoptracker.transitpulse.org/internal/tracker"
)

var testNow = time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC)

// feedServer serves GTFS-realtime snapshots that tests can swap out.
type feedServer struct {
	*httptest.Server

	mu       sync.Mutex
	trips    []byte
	vehicles []byte
	status   int
}

func newFeedServer(t *testing.T) *feedServer {
	t.Helper()
	fs := &feedServer{
		trips:    feedtest.TripUpdates(),
		vehicles: feedtest.VehiclePositions(),
	}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		if fs.status != 0 {
			w.WriteHeader(fs.status)
			return
		}
		w.Header().Set("Content-Type", "application/x-protobuf")
		switch r.URL.Path {
		case "/TripUpdate.pb":
			_, _ = w.Write(fs.trips)
		case "/VehiclePosition.pb":
			_, _ = w.Write(fs.vehicles)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *feedServer) setTrips(b []byte) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.trips = b
}

func (fs *feedServer) setVehicles(b []byte) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.vehicles = b
}

func (fs *feedServer) fail(status int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.status = status
}

type testEnv struct {
	api   *RestAPI
	feeds *feedServer
	clock *clock.MockClock
}

func createTestApi(t *testing.T, configure ...func(*appconf.Config)) *testEnv {
	t.Helper()
	ctx := context.Background()

	feeds := newFeedServer(t)
	clk := clock.NewMockClock(testNow)

	cfg := appconf.Default()
	cfg.Env = appconf.Test
	cfg.Feeds.TripUpdatesURL = feeds.URL + "/TripUpdate.pb"
	cfg.Feeds.VehiclePositionsURL = feeds.URL + "/VehiclePosition.pb"
	cfg.Server.RateLimit = 1000
	for _, fn := range configure {
		fn(&cfg)
	}

	store, err := storage.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	stops := stopdir.Default()
	registry, err := tracker.Load(ctx, tracker.Options{Store: store, Directory: stops, Clock: clk})
	require.NoError(t, err)

	m := metrics.New()
	rt := realtime.NewManager(realtime.Config{
		TripUpdatesURL:      cfg.Feeds.TripUpdatesURL,
		VehiclePositionsURL: cfg.Feeds.VehiclePositionsURL,
	}, realtime.Options{
		Downloader: feed.NewFetcher(nil, nil, m),
		Clock:      clk,
	})
	predictor := predict.New(cfg.Dashboard.PredictionLimit, time.UTC)
	dash := dashboard.New(dashboard.Config{}, dashboard.Options{
		Items:     registry,
		Realtime:  rt,
		Predictor: predictor,
		Clock:     clk,
		Observer:  m,
	})

	api := NewRestAPI(&app.Application{
		Config:    cfg,
		Clock:     clk,
		Metrics:   m,
		Store:     store,
		Stops:     stops,
		Trackers:  registry,
		Realtime:  rt,
		Predictor: predictor,
		Dashboard: dash,
	})
	t.Cleanup(api.Shutdown)

	return &testEnv{api: api, feeds: feeds, clock: clk}
}

func (env *testEnv) serve(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	env.api.SetRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(t *testing.T, method, url, body string, header ...string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func getJSON[T any](t *testing.T, url string) (*http.Response, T) {
	t.Helper()
	resp, data := doRequest(t, http.MethodGet, url, "")
	var out T
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return resp, out
}
