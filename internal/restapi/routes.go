package restapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache lifetimes in seconds. Live data is never cached.
const (
	noCache        = 0
	stopCacheTTL   = 300
	healthCacheTTL = 0
)

// SetRoutes registers every API endpoint on mux.
func (api *RestAPI) SetRoutes(mux *http.ServeMux) {
	limited := func(ttl int, h http.HandlerFunc) http.Handler {
		return CacheControlMiddleware(ttl, api.rateLimiter.Handler()(h))
	}

	mux.Handle("GET /predictions", limited(noCache, api.predictionsHandler))
	mux.Handle("GET /vehicles", limited(noCache, api.vehiclesHandler))
	mux.Handle("GET /vehicles/{id}/trail", limited(noCache, api.vehicleTrailHandler))

	mux.Handle("GET /trackers", limited(noCache, api.listTrackersHandler))
	mux.Handle("POST /trackers", limited(noCache, api.requireAPIKey(api.addTrackerHandler)))
	mux.Handle("DELETE /trackers/{id}", limited(noCache, api.requireAPIKey(api.removeTrackerHandler)))

	mux.Handle("GET /dashboard", limited(noCache, api.dashboardHandler))
	mux.Handle("GET /routes/{routeId}/status", limited(noCache, api.routeStatusHandler))

	mux.Handle("GET /stops", limited(stopCacheTTL, api.stopsHandler))
	mux.Handle("GET /stops/{routeId}", limited(stopCacheTTL, api.stopsForRouteHandler))

	mux.Handle("GET /healthz", CacheControlMiddleware(healthCacheTTL, http.HandlerFunc(api.healthHandler)))
	if api.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(api.Metrics.Registry, promhttp.HandlerOpts{}))
	}
}

// requireAPIKey rejects requests without a valid key when keys are configured.
func (api *RestAPI) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if api.RequiresAPIKey() && api.RequestHasInvalidAPIKey(r) {
			api.sendError(w, r, http.StatusUnauthorized, "permission denied")
			return
		}
		next(w, r)
	}
}
