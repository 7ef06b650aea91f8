package app

import (
	"io"
	"log/slog"

	"stoptracker.transitpulse.org/internal/appconf"
	"stoptracker.transitpulse.org/internal/clock"
	"stoptracker.transitpulse.org/internal/dashboard"
	"stoptracker.transitpulse.org/internal/logging"
	"stoptracker.transitpulse.org/internal/metrics"
	"stoptracker.transitpulse.org/internal/predict"
	"stoptracker.transitpulse.org/internal/realtime"
	"stoptracker.transitpulse.org/internal/stopdir"
	"stoptracker.transitpulse.org/internal/storage"
	"stoptracker.transitpulse.org/internal/tracker"
)

// Application holds the dependencies shared by the HTTP handlers,
// middleware and background loops.
type Application struct {
	Config    appconf.Config
	Logger    *slog.Logger
	Clock     clock.Clock
	Metrics   *metrics.Metrics
	Store     storage.Store
	Stops     *stopdir.Directory
	Trackers  *tracker.Registry
	Realtime  *realtime.Manager
	Predictor *predict.Predictor
	Dashboard *dashboard.Service
	// Publisher is the vehicle broker connection, nil when not configured.
	Publisher io.Closer
}

// Shutdown stops the background loops and releases connections, in reverse
// order of construction. Nil members are skipped.
func (app *Application) Shutdown() {
	if app.Dashboard != nil {
		app.Dashboard.Shutdown()
	}
	if app.Publisher != nil {
		logging.SafeCloseWithLogging(app.Publisher, app.Logger, "vehicle publisher")
	}
	if app.Metrics != nil {
		app.Metrics.Shutdown()
	}
	if app.Store != nil {
		logging.SafeCloseWithLogging(app.Store, app.Logger, "tracker store")
	}
}
