package restapi

import "net/http"

func (api *RestAPI) stopsHandler(w http.ResponseWriter, r *http.Request) {
	api.sendJSON(w, r, http.StatusOK, api.Stops.All())
}

// stopsForRouteHandler answers GET /stops/{routeId}. Unknown routes yield an
// empty list.
func (api *RestAPI) stopsForRouteHandler(w http.ResponseWriter, r *http.Request) {
	api.sendJSON(w, r, http.StatusOK, api.Stops.Stops(r.PathValue("routeId")))
}
