package restapi

import (
	"net/http"

	"stoptracker.transitpulse.org/internal/activity"
	"stoptracker.transitpulse.org/internal/routeid"
)

func (api *RestAPI) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	api.sendJSON(w, r, http.StatusOK, api.Dashboard.Cards())
}

// RouteStatusResponse is the freshness of one route.
type RouteStatusResponse struct {
	RouteID string `json:"routeId"`
	activity.Status
	Text string `json:"text"`
}

// routeStatusHandler answers GET /routes/{routeId}/status from the last
// downloaded activity log.
func (api *RestAPI) routeStatusHandler(w http.ResponseWriter, r *http.Request) {
	route := routeid.Normalize(r.PathValue("routeId"))
	if route == "" {
		api.sendError(w, r, http.StatusBadRequest, "Route ID is required")
		return
	}
	status := api.Dashboard.RouteStatus(route)
	api.sendJSON(w, r, http.StatusOK, RouteStatusResponse{
		RouteID: route,
		Status:  status,
		Text:    status.Text(),
	})
}
