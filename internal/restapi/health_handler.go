package restapi

import (
	"context"
	"net/http"
	"time"

	"stoptracker.transitpulse.org/internal/logging"
	"stoptracker.transitpulse.org/internal/realtime"
)

const healthPingTimeout = 2 * time.Second

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status   string             `json:"status"`
	Detail   string             `json:"detail,omitempty"`
	Trackers int                `json:"trackers"`
	Realtime *realtime.Snapshot `json:"realtime,omitempty"`
}

// healthHandler reports 503 until the tracker store answers a ping.
func (api *RestAPI) healthHandler(w http.ResponseWriter, r *http.Request) {
	if api.Application == nil || api.Store == nil || api.Trackers == nil {
		api.sendJSON(w, r, http.StatusServiceUnavailable, HealthResponse{
			Status: "unavailable",
			Detail: "store or tracker registry not initialized",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()
	if err := api.Store.Ping(ctx); err != nil {
		logging.LogError(api.Logger, "tracker store ping failed", err)
		api.sendJSON(w, r, http.StatusServiceUnavailable, HealthResponse{
			Status: "unavailable",
			Detail: "database connection failed",
		})
		return
	}

	resp := HealthResponse{Status: "ok", Trackers: len(api.Trackers.List())}
	if api.Realtime != nil {
		stats := api.Realtime.Stats()
		resp.Realtime = &stats
	}
	api.sendJSON(w, r, http.StatusOK, resp)
}
