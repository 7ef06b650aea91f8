// Package realtime serves decoded GTFS-realtime snapshots to the REST
// handlers and the dashboard. Downloads are shared between concurrent
// callers, cached briefly and post-processed into a spatial index and
// per-vehicle trails.
package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"stoptracker.transitpulse.org/internal/clock"
	"stoptracker.transitpulse.org/internal/feed"
	"stoptracker.transitpulse.org/internal/logging"
	"stoptracker.transitpulse.org/internal/utils"
)

// Source names used in errors, logs and metrics.
const (
	SourceTripUpdates      = "trip_updates"
	SourceVehiclePositions = "vehicle_positions"

	defaultFetchTimeout = 30 * time.Second
)

// Downloader fetches raw bytes; *feed.Fetcher satisfies it.
type Downloader interface {
	Fetch(ctx context.Context, source, url string) ([]byte, error)
}

// Config holds the feed locations and snapshot handling knobs.
type Config struct {
	TripUpdatesURL      string
	VehiclePositionsURL string
	// CacheTTL is how long a decoded snapshot is served without refetching.
	// Zero disables caching; concurrent callers still share one download.
	CacheTTL time.Duration
	// FetchTimeout bounds one shared download. It runs detached from the
	// callers' contexts so one caller giving up does not fail the others.
	FetchTimeout time.Duration
	TrailPoints  int
	TrailMaxAge  time.Duration
}

// Options carries the collaborators of a Manager. Only Downloader is required.
type Options struct {
	Downloader Downloader
	Clock      clock.Clock
	Logger     *slog.Logger
	Publisher  Publisher
	// OnVehicles, when set, receives the size of every new vehicle snapshot.
	OnVehicles func(n int)
}

// Manager hands out trip-update and vehicle snapshots. Returned slices are
// shared and must not be modified.
type Manager struct {
	config     Config
	downloader Downloader
	clock      clock.Clock
	logger     *slog.Logger
	publisher  Publisher
	onVehicles func(int)

	group singleflight.Group

	mu                sync.RWMutex
	trips             []feed.Trip
	tripsFetchedAt    time.Time
	vehicles          []feed.VehicleReport
	vehiclesFetchedAt time.Time
	index             *vehicleIndex

	trails *TrailStore
}

// NewManager returns a Manager reading the feeds in config.
func NewManager(config Config, opts Options) *Manager {
	m := &Manager{
		config:     config,
		downloader: opts.Downloader,
		clock:      opts.Clock,
		logger:     opts.Logger,
		publisher:  opts.Publisher,
		onVehicles: opts.OnVehicles,
		trails:     NewTrailStore(config.TrailPoints, config.TrailMaxAge),
	}
	if m.config.FetchTimeout <= 0 {
		m.config.FetchTimeout = defaultFetchTimeout
	}
	if m.clock == nil {
		m.clock = clock.RealClock{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With(slog.String("component", "gtfs_realtime"))
	return m
}

// TripUpdates returns the current trip-updates snapshot, downloading it when
// the cached one is older than the TTL.
func (m *Manager) TripUpdates(ctx context.Context) ([]feed.Trip, error) {
	m.mu.RLock()
	if m.fresh(m.tripsFetchedAt) {
		trips := m.trips
		m.mu.RUnlock()
		return trips, nil
	}
	m.mu.RUnlock()

	v, err := m.shared(ctx, SourceTripUpdates, func(ctx context.Context) (any, error) {
		body, err := m.downloader.Fetch(ctx, SourceTripUpdates, m.config.TripUpdatesURL)
		if err != nil {
			logging.LogError(m.logger, "Error loading GTFS-RT trip updates data", err,
				slog.String("url", m.config.TripUpdatesURL))
			return nil, err
		}
		trips, err := feed.DecodeTripUpdates(body)
		if err != nil {
			logging.LogError(m.logger, "Error decoding GTFS-RT trip updates data", err)
			return nil, err
		}

		m.mu.Lock()
		m.trips = trips
		m.tripsFetchedAt = m.clock.Now()
		m.mu.Unlock()
		return trips, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]feed.Trip), nil
}

// Vehicles returns the current vehicle snapshot, downloading it when the
// cached one is older than the TTL. A new snapshot also updates the spatial
// index and trails and is handed to the publisher.
func (m *Manager) Vehicles(ctx context.Context) ([]feed.VehicleReport, error) {
	idx, err := m.vehicleIndex(ctx)
	if err != nil {
		return nil, err
	}
	return idx.vehicles, nil
}

// VehiclesWithin returns the vehicles of the current snapshot inside b.
func (m *Manager) VehiclesWithin(ctx context.Context, b utils.CoordinateBounds) ([]feed.VehicleReport, error) {
	idx, err := m.vehicleIndex(ctx)
	if err != nil {
		return nil, err
	}
	return idx.within(b), nil
}

// Trail returns the recorded path of vehicle id.
func (m *Manager) Trail(id string) (Trail, bool) {
	return m.trails.Get(id)
}

func (m *Manager) vehicleIndex(ctx context.Context) (*vehicleIndex, error) {
	m.mu.RLock()
	if m.fresh(m.vehiclesFetchedAt) && m.index != nil {
		idx := m.index
		m.mu.RUnlock()
		return idx, nil
	}
	m.mu.RUnlock()

	v, err := m.shared(ctx, SourceVehiclePositions, func(ctx context.Context) (any, error) {
		body, err := m.downloader.Fetch(ctx, SourceVehiclePositions, m.config.VehiclePositionsURL)
		if err != nil {
			logging.LogError(m.logger, "Error loading GTFS-RT vehicle positions data", err,
				slog.String("url", m.config.VehiclePositionsURL))
			return nil, err
		}
		vehicles, err := feed.DecodeVehicles(body)
		if err != nil {
			logging.LogError(m.logger, "Error decoding GTFS-RT vehicle positions data", err)
			return nil, err
		}
		return m.installVehicles(ctx, vehicles), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*vehicleIndex), nil
}

// shared runs fn once for all concurrent callers of key. fn gets a context
// that keeps ctx's values but not its cancellation, bounded by FetchTimeout.
// Each caller still stops waiting when its own ctx is done.
func (m *Manager) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := m.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.config.FetchTimeout)
		defer cancel()
		return fn(fetchCtx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) installVehicles(ctx context.Context, vehicles []feed.VehicleReport) *vehicleIndex {
	now := m.clock.Now()
	idx := newVehicleIndex(vehicles)

	m.mu.Lock()
	m.vehicles = vehicles
	m.vehiclesFetchedAt = now
	m.index = idx
	m.mu.Unlock()

	m.trails.Record(vehicles, now)
	if m.onVehicles != nil {
		m.onVehicles(len(vehicles))
	}
	if m.publisher != nil {
		if err := m.publisher.PublishVehicles(ctx, vehicles); err != nil {
			logging.LogError(m.logger, "failed to publish vehicle positions", err)
		}
	}
	return idx
}

// fresh reports whether a snapshot taken at fetchedAt is still within the
// TTL. Caller holds m.mu.
func (m *Manager) fresh(fetchedAt time.Time) bool {
	if fetchedAt.IsZero() || m.config.CacheTTL <= 0 {
		return false
	}
	return m.clock.Now().Sub(fetchedAt) < m.config.CacheTTL
}

// Snapshot describes the cached state for health and debug output.
type Snapshot struct {
	Trips             int       `json:"trips"`
	TripsFetchedAt    time.Time `json:"tripsFetchedAt"`
	Vehicles          int       `json:"vehicles"`
	VehiclesFetchedAt time.Time `json:"vehiclesFetchedAt"`
	Trails            int       `json:"trails"`
}

// Stats returns a summary of the cached snapshots without fetching.
func (m *Manager) Stats() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		Trips:             len(m.trips),
		TripsFetchedAt:    m.tripsFetchedAt,
		Vehicles:          len(m.vehicles),
		VehiclesFetchedAt: m.vehiclesFetchedAt,
		Trails:            m.trails.Len(),
	}
}
