// Package metrics provides the Prometheus metrics of the stop tracker service.
package metrics

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"stoptracker.transitpulse.org/internal/apperrors"
)

// Metrics holds all Prometheus collectors of the service.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Upstream downloads: transit feeds and the activity log.
	UpstreamFetchTotal    *prometheus.CounterVec
	UpstreamFetchDuration *prometheus.HistogramVec

	TrackedItems     prometheus.Gauge
	VehiclesLive     prometheus.Gauge
	CardRefreshTotal *prometheus.CounterVec

	// Tracker state store pool.
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
	DBWaitSecondsTotal prometheus.Counter

	logger *slog.Logger

	collectorStarted atomic.Bool
	cancel           context.CancelFunc
	wg               sync.WaitGroup
}

// New creates and registers all metrics with a new registry.
func New() *Metrics {
	return NewWithLogger(nil)
}

// NewWithLogger creates metrics with a logger for collector errors.
func NewWithLogger(logger *slog.Logger) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stoptracker_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stoptracker_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		UpstreamFetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stoptracker_upstream_fetch_total",
			Help: "Upstream downloads by source and result",
		}, []string{"source", "result"}),
		UpstreamFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stoptracker_upstream_fetch_duration_seconds",
			Help:    "Upstream download latency distribution",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),
		TrackedItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stoptracker_tracked_items",
			Help: "Number of tracked stop/route pairs",
		}),
		VehiclesLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stoptracker_vehicles_live",
			Help: "Vehicles in the latest position snapshot",
		}),
		CardRefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stoptracker_card_refresh_total",
			Help: "Dashboard card refreshes by kind and result",
		}, []string{"kind", "result"}),
		DBConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stoptracker_db_connections_open",
			Help: "Number of open state store connections",
		}),
		DBConnectionsInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stoptracker_db_connections_in_use",
			Help: "Number of state store connections currently in use",
		}),
		DBWaitSecondsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stoptracker_db_wait_seconds_total",
			Help: "Total time blocked waiting for a state store connection",
		}),
		logger: logger,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.UpstreamFetchTotal,
		m.UpstreamFetchDuration,
		m.TrackedItems,
		m.VehiclesLive,
		m.CardRefreshTotal,
		m.DBConnectionsOpen,
		m.DBConnectionsInUse,
		m.DBWaitSecondsTotal,
	)
	return m
}

// ObserveFetch records one upstream download. It satisfies feed.FetchObserver.
func (m *Metrics) ObserveFetch(source string, duration time.Duration, err error) {
	m.UpstreamFetchTotal.WithLabelValues(source, fetchResult(err)).Inc()
	m.UpstreamFetchDuration.WithLabelValues(source).Observe(duration.Seconds())
}

func fetchResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case apperrors.IsUpstream(err):
		return "upstream_error"
	default:
		return "error"
	}
}

// ObserveCard records one card refresh; kind is "prediction" or "activity".
func (m *Metrics) ObserveCard(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.CardRefreshTotal.WithLabelValues(kind, result).Inc()
}

// StartDBStatsCollector samples pool statistics of db every interval until
// Shutdown. Calls after the first are ignored.
func (m *Metrics) StartDBStatsCollector(db *sql.DB, interval time.Duration) {
	if db == nil {
		return
	}
	if !m.collectorStarted.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	var lastWait time.Duration

	// Add before exposing cancel so Shutdown cannot miss the goroutine.
	m.wg.Add(1)
	m.cancel = cancel

	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil && m.logger != nil {
				m.logger.Error("panic in DB stats collector", "error", r)
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				stats := db.Stats()
				m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
				m.DBConnectionsInUse.Set(float64(stats.InUse))
				if delta := stats.WaitDuration - lastWait; delta > 0 {
					m.DBWaitSecondsTotal.Add(delta.Seconds())
				}
				lastWait = stats.WaitDuration
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Shutdown stops the stats collector and waits for it. Safe to call more than once.
func (m *Metrics) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}
