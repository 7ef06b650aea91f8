package restapi

import (
	"net/http"
	"strings"

	"stoptracker.transitpulse.org/internal/predict"
)

// predictionsHandler answers GET /predictions?stopId=<s>[&routeId=<r>] with
// the soonest arrivals at the stop.
func (api *RestAPI) predictionsHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	stopID := strings.TrimSpace(query.Get("stopId"))
	if stopID == "" {
		api.sendError(w, r, http.StatusBadRequest, "Stop ID is required")
		return
	}

	trips, err := api.Realtime.TripUpdates(r.Context())
	if err != nil {
		api.sendFailure(w, r, err, "Failed to fetch prediction data")
		return
	}

	now := api.Clock.Now()
	var arrivals []predict.Arrival
	if route := strings.TrimSpace(query.Get("routeId")); route != "" {
		arrivals = api.Predictor.PredictRoute(stopID, route, trips, now)
	} else {
		arrivals = api.Predictor.Predict(stopID, trips, now)
	}
	if arrivals == nil {
		arrivals = []predict.Arrival{}
	}
	api.sendJSON(w, r, http.StatusOK, arrivals)
}
