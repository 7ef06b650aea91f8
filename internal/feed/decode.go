package feed

import (
	"errors"
	"strconv"
	"time"

	gtfsrt "github.com/OneBusAway/go-gtfs/proto"
	"google.golang.org/protobuf/proto"
	"stoptracker.transitpulse.org/internal/apperrors"
)

const protobufFormat = "gtfs-realtime protobuf"

func decodeMessage(b []byte) (*gtfsrt.FeedMessage, error) {
	var msg gtfsrt.FeedMessage
	if err := proto.Unmarshal(b, &msg); err != nil {
		return nil, &apperrors.DecodeError{Format: protobufFormat, Err: err}
	}
	if msg.GetHeader() == nil {
		return nil, &apperrors.DecodeError{Format: protobufFormat, Err: errors.New("missing feed header")}
	}
	return &msg, nil
}

// DecodeVehicles decodes a vehicle-positions snapshot. Entities without a
// vehicle position, or whose vehicle has no coordinates, are skipped.
func DecodeVehicles(b []byte) ([]VehicleReport, error) {
	msg, err := decodeMessage(b)
	if err != nil {
		return nil, err
	}

	vehicles := make([]VehicleReport, 0, len(msg.GetEntity()))
	for _, entity := range msg.GetEntity() {
		vp := entity.GetVehicle()
		if vp == nil || vp.GetPosition() == nil {
			continue
		}

		id := vp.GetVehicle().GetLabel()
		if id == "" {
			id = entity.GetId()
		}

		direction := UnknownDirection
		if trip := vp.GetTrip(); trip != nil && trip.DirectionId != nil {
			direction = strconv.FormatUint(uint64(trip.GetDirectionId()), 10)
		}

		pos := vp.GetPosition()
		vehicles = append(vehicles, VehicleReport{
			ID:          id,
			RouteID:     vp.GetTrip().GetRouteId(),
			DirectionID: direction,
			Lat:         float64(pos.GetLatitude()),
			Lng:         float64(pos.GetLongitude()),
			Bearing:     float64(pos.GetBearing()),
			Timestamp:   int64(vp.GetTimestamp()),
		})
	}
	return vehicles, nil
}

// DecodeTripUpdates decodes a trip-updates snapshot. Entities without a trip
// update are skipped.
func DecodeTripUpdates(b []byte) ([]Trip, error) {
	msg, err := decodeMessage(b)
	if err != nil {
		return nil, err
	}

	trips := make([]Trip, 0, len(msg.GetEntity()))
	for _, entity := range msg.GetEntity() {
		tu := entity.GetTripUpdate()
		if tu == nil {
			continue
		}

		descriptor := tu.GetTrip()
		trip := Trip{
			ID:              descriptor.GetTripId(),
			RouteID:         descriptor.GetRouteId(),
			DirectionID:     UnknownDirection,
			StopTimeUpdates: make([]StopTimeUpdate, 0, len(tu.GetStopTimeUpdate())),
		}
		if descriptor != nil && descriptor.DirectionId != nil {
			trip.DirectionID = strconv.FormatUint(uint64(descriptor.GetDirectionId()), 10)
		}

		for _, stu := range tu.GetStopTimeUpdate() {
			update := StopTimeUpdate{StopID: stu.GetStopId()}
			if arrival := stu.GetArrival(); arrival != nil && arrival.Time != nil {
				at := time.Unix(arrival.GetTime(), 0)
				update.Arrival = &at
			}
			trip.StopTimeUpdates = append(trip.StopTimeUpdates, update)
		}
		trips = append(trips, trip)
	}
	return trips, nil
}
