package restapi

import (
	"net/http"
	"strconv"

	"stoptracker.transitpulse.org/internal/apperrors"
	"stoptracker.transitpulse.org/internal/feed"
	"stoptracker.transitpulse.org/internal/utils"
)

const maxVehicleRadius = 50000.0

// vehiclesHandler answers GET /vehicles. The snapshot can be narrowed with
// minLat, minLng, maxLat and maxLng, or with lat, lng and radius in meters.
func (api *RestAPI) vehiclesHandler(w http.ResponseWriter, r *http.Request) {
	bounds, filtered, err := parseVehicleBounds(r)
	if err != nil {
		api.sendError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var vehicles []feed.VehicleReport
	if filtered {
		vehicles, err = api.Realtime.VehiclesWithin(r.Context(), bounds)
	} else {
		vehicles, err = api.Realtime.Vehicles(r.Context())
	}
	if err != nil {
		api.sendFailure(w, r, err, "Failed to fetch RTD data")
		return
	}
	if vehicles == nil {
		vehicles = []feed.VehicleReport{}
	}
	api.sendJSON(w, r, http.StatusOK, vehicles)
}

// vehicleTrailHandler answers GET /vehicles/{id}/trail.
func (api *RestAPI) vehicleTrailHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	trail, ok := api.Realtime.Trail(id)
	if !ok {
		api.sendError(w, r, http.StatusNotFound, "No trail for vehicle "+id)
		return
	}
	api.sendJSON(w, r, http.StatusOK, trail)
}

func parseVehicleBounds(r *http.Request) (utils.CoordinateBounds, bool, error) {
	query := r.URL.Query()

	if query.Has("minLat") || query.Has("minLng") || query.Has("maxLat") || query.Has("maxLng") {
		var values [4]float64
		for i, name := range []string{"minLat", "minLng", "maxLat", "maxLng"} {
			v, err := parseCoordinate(query.Get(name), name)
			if err != nil {
				return utils.CoordinateBounds{}, false, err
			}
			values[i] = v
		}
		bounds := utils.CoordinateBounds{MinLat: values[0], MinLon: values[1], MaxLat: values[2], MaxLon: values[3]}
		if err := bounds.Validate(); err != nil {
			return utils.CoordinateBounds{}, false, apperrors.NewInputError("bbox", err.Error())
		}
		return bounds, true, nil
	}

	if query.Has("lat") || query.Has("lng") || query.Has("radius") {
		lat, err := parseCoordinate(query.Get("lat"), "lat")
		if err != nil {
			return utils.CoordinateBounds{}, false, err
		}
		lng, err := parseCoordinate(query.Get("lng"), "lng")
		if err != nil {
			return utils.CoordinateBounds{}, false, err
		}
		radius, err := parseCoordinate(query.Get("radius"), "radius")
		if err != nil {
			return utils.CoordinateBounds{}, false, err
		}
		if radius <= 0 || radius > maxVehicleRadius {
			return utils.CoordinateBounds{}, false, apperrors.NewInputError("radius", "must be between 0 and 50000 meters")
		}
		bounds := utils.CalculateBounds(lat, lng, radius)
		if err := bounds.Validate(); err != nil {
			return utils.CoordinateBounds{}, false, apperrors.NewInputError("lat", err.Error())
		}
		return bounds, true, nil
	}

	return utils.CoordinateBounds{}, false, nil
}

func parseCoordinate(raw, field string) (float64, error) {
	if raw == "" {
		return 0, apperrors.NewInputError(field, "is required")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apperrors.NewInputError(field, "must be a number")
	}
	return v, nil
}
