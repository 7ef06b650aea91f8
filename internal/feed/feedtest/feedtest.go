// Package feedtest builds GTFS-realtime protobuf bodies for tests.
package feedtest

import (
	"time"

	gtfsrt "github.com/OneBusAway/go-gtfs/proto"
	"google.golang.org/protobuf/proto"
)

// Vehicle describes one vehicle-position entity.
type Vehicle struct {
	EntityID  string
	Label     string
	RouteID   string
	Direction *uint32
	Lat       float32
	Lng       float32
	Bearing   *float32
	Timestamp time.Time
}

// StopUpdate describes one stop-time update. A zero Arrival leaves the
// arrival event out.
type StopUpdate struct {
	StopID  string
	Arrival time.Time
}

// TripUpdate describes one trip-update entity.
type TripUpdate struct {
	EntityID string
	TripID   string
	RouteID  string
	Stops    []StopUpdate
}

func header() *gtfsrt.FeedHeader {
	incrementality := gtfsrt.FeedHeader_FULL_DATASET
	return &gtfsrt.FeedHeader{
		GtfsRealtimeVersion: proto.String("2.0"),
		Incrementality:      &incrementality,
		Timestamp:           proto.Uint64(uint64(time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC).Unix())),
	}
}

// VehiclePositions returns a marshaled vehicle-positions feed.
func VehiclePositions(vehicles ...Vehicle) []byte {
	entities := make([]*gtfsrt.FeedEntity, 0, len(vehicles))
	for _, v := range vehicles {
		vp := &gtfsrt.VehiclePosition{
			Trip: &gtfsrt.TripDescriptor{
				RouteId:     proto.String(v.RouteID),
				DirectionId: v.Direction,
			},
			Position: &gtfsrt.Position{
				Latitude:  proto.Float32(v.Lat),
				Longitude: proto.Float32(v.Lng),
				Bearing:   v.Bearing,
			},
		}
		if v.Label != "" {
			vp.Vehicle = &gtfsrt.VehicleDescriptor{Label: proto.String(v.Label)}
		}
		if !v.Timestamp.IsZero() {
			vp.Timestamp = proto.Uint64(uint64(v.Timestamp.Unix()))
		}
		entities = append(entities, &gtfsrt.FeedEntity{
			Id:      proto.String(v.EntityID),
			Vehicle: vp,
		})
	}
	return marshal(entities)
}

// TripUpdates returns a marshaled trip-updates feed.
func TripUpdates(trips ...TripUpdate) []byte {
	entities := make([]*gtfsrt.FeedEntity, 0, len(trips))
	for _, tu := range trips {
		updates := make([]*gtfsrt.TripUpdate_StopTimeUpdate, 0, len(tu.Stops))
		for _, s := range tu.Stops {
			stu := &gtfsrt.TripUpdate_StopTimeUpdate{StopId: proto.String(s.StopID)}
			if !s.Arrival.IsZero() {
				stu.Arrival = &gtfsrt.TripUpdate_StopTimeEvent{Time: proto.Int64(s.Arrival.Unix())}
			}
			updates = append(updates, stu)
		}
		entities = append(entities, &gtfsrt.FeedEntity{
			Id: proto.String(tu.EntityID),
			TripUpdate: &gtfsrt.TripUpdate{
				Trip: &gtfsrt.TripDescriptor{
					TripId:  proto.String(tu.TripID),
					RouteId: proto.String(tu.RouteID),
				},
				StopTimeUpdate: updates,
			},
		})
	}
	return marshal(entities)
}

// Alerts returns a feed whose only entity is an alert, which neither decoder
// consumes.
func Alerts(entityID string) []byte {
	return marshal([]*gtfsrt.FeedEntity{{
		Id:    proto.String(entityID),
		Alert: &gtfsrt.Alert{},
	}})
}

func marshal(entities []*gtfsrt.FeedEntity) []byte {
	data, err := proto.Marshal(&gtfsrt.FeedMessage{Header: header(), Entity: entities})
	if err != nil {
		panic(err)
	}
	return data
}
