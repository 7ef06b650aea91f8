package restapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"stoptracker.transitpulse.org/internal/tracker"
)

const maxTrackerBody = 1 << 16

func (api *RestAPI) listTrackersHandler(w http.ResponseWriter, r *http.Request) {
	api.sendJSON(w, r, http.StatusOK, api.Trackers.List())
}

// addTrackerHandler answers POST /trackers with {route, stopId, dir}.
func (api *RestAPI) addTrackerHandler(w http.ResponseWriter, r *http.Request) {
	var body tracker.NewItem
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTrackerBody))
	if err := dec.Decode(&body); err != nil {
		api.sendError(w, r, http.StatusBadRequest, "Request body must be a JSON object with route, stopId and dir")
		return
	}

	item, err := api.Trackers.Add(r.Context(), body)
	if err != nil {
		api.sendFailure(w, r, err, "Failed to save tracker")
		return
	}
	api.sendJSON(w, r, http.StatusCreated, item)
}

// removeTrackerHandler answers DELETE /trackers/{id}. Unknown ids succeed.
func (api *RestAPI) removeTrackerHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		api.sendError(w, r, http.StatusBadRequest, "Tracker ID must be numeric")
		return
	}
	if err := api.Trackers.Remove(r.Context(), id); err != nil {
		api.sendFailure(w, r, err, "Failed to save tracker")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
