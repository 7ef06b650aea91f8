// Package feed downloads GTFS-realtime snapshots and turns them into the typed
// records the rest of the service works with.
package feed

import "time"

// UnknownDirection is reported when a vehicle's trip carries no direction.
const UnknownDirection = "unknown"

// VehicleReport is one vehicle observation from a vehicle-positions snapshot.
type VehicleReport struct {
	ID          string  `json:"id"`
	RouteID     string  `json:"routeId"`
	DirectionID string  `json:"directionId"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Bearing     float64 `json:"bearing"`
	Timestamp   int64   `json:"timestamp"`
}

// StopTimeUpdate is a predicted stop visit within a Trip. Arrival is nil when
// the feed carries no arrival time for the stop.
type StopTimeUpdate struct {
	StopID  string
	Arrival *time.Time
}

// Trip is one trip update from a trip-updates snapshot. StopTimeUpdates keep
// feed order.
type Trip struct {
	ID              string
	RouteID         string
	DirectionID     string
	StopTimeUpdates []StopTimeUpdate
}
