package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"stoptracker.transitpulse.org/internal/activity"
	"stoptracker.transitpulse.org/internal/app"
	"stoptracker.transitpulse.org/internal/appconf"
	"stoptracker.transitpulse.org/internal/clock"
	"stoptracker.transitpulse.org/internal/dashboard"
	"stoptracker.transitpulse.org/internal/feed"
	"stoptracker.transitpulse.org/internal/logging"
	"stoptracker.transitpulse.org/internal/metrics"
	"stoptracker.transitpulse.org/internal/predict"
	"stoptracker.transitpulse.org/internal/realtime"
	"stoptracker.transitpulse.org/internal/restapi"
	"stoptracker.transitpulse.org/internal/stopdir"
	"stoptracker.transitpulse.org/internal/storage"
	"stoptracker.transitpulse.org/internal/tracker"
	"stoptracker.transitpulse.org/internal/webui"
)

const (
	dbStatsInterval = 15 * time.Second
	shutdownTimeout = 30 * time.Second
)

// BuildApplication wires every component from cfg. The dashboard loops are
// not started.
func BuildApplication(cfg appconf.Config) (*app.Application, error) {
	ctx := context.Background()
	logger := newLogger(cfg)
	ctx = logging.WithLogger(ctx, logger)

	clk, err := clock.New(cfg.Clock.Pinned, cfg.Location())
	if err != nil {
		return nil, fmt.Errorf("failed to configure clock: %w", err)
	}
	if cfg.Clock.Pinned != "" {
		logging.LogOperation(logger, "clock_pinned", slog.Time("now", clk.Now()))
	}

	m := metrics.NewWithLogger(logger)

	store, err := storage.Open(ctx, storage.Config{Driver: cfg.Storage.Driver, DSN: cfg.Storage.DSN})
	if err != nil {
		return nil, fmt.Errorf("failed to open tracker store: %w", err)
	}
	if sqliteStore, ok := store.(*storage.SQLiteStore); ok {
		m.StartDBStatsCollector(sqliteStore.DB, dbStatsInterval)
	}

	coreApp := &app.Application{
		Config:  cfg,
		Logger:  logger,
		Clock:   clk,
		Metrics: m,
		Store:   store,
	}
	if err := wireDomain(ctx, coreApp); err != nil {
		coreApp.Shutdown()
		return nil, err
	}
	return coreApp, nil
}

func wireDomain(ctx context.Context, coreApp *app.Application) error {
	cfg := coreApp.Config
	logger := coreApp.Logger
	m := coreApp.Metrics

	stops, err := loadStops(cfg.Stops)
	if err != nil {
		return fmt.Errorf("failed to load stop directory: %w", err)
	}
	coreApp.Stops = stops
	logging.LogOperation(logger, "stop_directory_loaded", slog.Int("routes", len(stops.Routes())))

	coreApp.Trackers, err = tracker.Load(ctx, tracker.Options{
		Store:     coreApp.Store,
		Directory: stops,
		Clock:     coreApp.Clock,
		Logger:    logger,
		OnCount:   func(n int) { m.TrackedItems.Set(float64(n)) },
	})
	if err != nil {
		return fmt.Errorf("failed to load tracked items: %w", err)
	}

	fetcher := feed.NewFetcher(feed.NewHTTPClient(cfg.Feeds.Timeout), cfg.Feeds.Headers, m)

	var publisher realtime.Publisher
	if cfg.NATS.URL != "" {
		natsPublisher, err := realtime.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger)
		if err != nil {
			return fmt.Errorf("failed to connect vehicle publisher: %w", err)
		}
		publisher = natsPublisher
		coreApp.Publisher = natsPublisher
	}

	coreApp.Realtime = realtime.NewManager(realtime.Config{
		TripUpdatesURL:      cfg.Feeds.TripUpdatesURL,
		VehiclePositionsURL: cfg.Feeds.VehiclePositionsURL,
		CacheTTL:            cfg.Feeds.CacheTTL,
		FetchTimeout:        cfg.Feeds.Timeout + 5*time.Second,
		TrailPoints:         cfg.Trail.MaxPoints,
		TrailMaxAge:         cfg.Trail.MaxAge,
	}, realtime.Options{
		Downloader: fetcher,
		Clock:      coreApp.Clock,
		Logger:     logger,
		Publisher:  publisher,
		OnVehicles: func(n int) { m.VehiclesLive.Set(float64(n)) },
	})

	coreApp.Predictor = predict.New(cfg.Dashboard.PredictionLimit, cfg.Location())

	// A nil *activity.Source must not end up in the interface.
	var activityLoader dashboard.ActivityLoader
	if cfg.Activity.LogURL != "" {
		activityLoader = &activity.Source{URL: cfg.Activity.LogURL, Downloader: fetcher}
	}

	coreApp.Dashboard = dashboard.New(dashboard.Config{
		PredictionInterval: cfg.Dashboard.PredictionInterval,
		ActivityInterval:   cfg.Activity.RefreshInterval,
		RefreshTimeout:     cfg.Feeds.Timeout + 5*time.Second,
		MaxConcurrent:      cfg.Dashboard.MaxConcurrent,
		Threshold:          cfg.Activity.ThresholdMinutes,
		UrgentMinutes:      cfg.Dashboard.UrgentMinutes,
	}, dashboard.Options{
		Items:     coreApp.Trackers,
		Realtime:  coreApp.Realtime,
		Activity:  activityLoader,
		Predictor: coreApp.Predictor,
		Clock:     coreApp.Clock,
		Logger:    logger,
		Observer:  m,
	})
	return nil
}

func loadStops(cfg appconf.StopsConfig) (*stopdir.Directory, error) {
	switch {
	case cfg.File != "":
		return stopdir.LoadFile(cfg.File)
	case cfg.StaticGTFS != "":
		return stopdir.LoadStaticFile(cfg.StaticGTFS)
	default:
		return stopdir.Default(), nil
	}
}

func newLogger(cfg appconf.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if cfg.Server.Verbose {
		level = slog.LevelDebug
	}
	json := cfg.Logging.Format == "json" || (cfg.Logging.Format == "" && cfg.Env == appconf.Production)
	return logging.NewLogger(os.Stdout, level, json)
}

// CreateServer builds the HTTP server and the API whose background work the
// caller must stop with api.Shutdown.
func CreateServer(coreApp *app.Application, cfg appconf.Config) (*http.Server, *restapi.RestAPI) {
	api := restapi.NewRestAPI(coreApp)
	webUI := &webui.WebUI{Application: coreApp}

	mux := http.NewServeMux()
	api.SetRoutes(mux)
	webUI.SetWebUIRoutes(mux)

	var handler http.Handler = restapi.CompressionMiddleware(mux)
	handler = restapi.MetricsHandler(coreApp.Metrics)(handler)
	handler = restapi.NewRequestLoggingMiddleware(coreApp.Logger)(handler)
	handler = restapi.RequestIDMiddleware(handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(coreApp.Logger.Handler(), slog.LevelError),
	}
	return srv, api
}

// Run starts the dashboard loops and serves until ctx is done, then shuts
// everything down gracefully.
func Run(ctx context.Context, srv *http.Server, coreApp *app.Application, api *restapi.RestAPI) error {
	logger := coreApp.Logger
	coreApp.Dashboard.Start()

	serveErr := make(chan error, 1)
	go func() {
		logging.LogOperation(logger, "server_starting",
			slog.String("addr", srv.Addr),
			slog.String("env", coreApp.Config.Env.String()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logging.LogOperation(logger, "server_shutting_down")
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.LogError(logger, "server shutdown failed", err)
		if runErr == nil {
			runErr = err
		}
	}
	api.Shutdown()
	coreApp.Shutdown()
	logging.LogOperation(logger, "server_stopped")
	return runErr
}
