package stopdir

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/OneBusAway/go-gtfs"
)

// FromStatic derives a directory from a static GTFS archive: every stop
// served by a route's trips. A stop is labelled with the compass direction
// its trips travel through it, falling back to the trip headsign and then to
// the GTFS direction id. Routes are keyed by short name, falling back to
// route id.
func FromStatic(archive []byte) (*Directory, error) {
	static, err := gtfs.ParseStatic(archive, gtfs.ParseStaticOptions{})
	if err != nil {
		return nil, fmt.Errorf("parse static GTFS: %w", err)
	}

	calc := newDirectionCalculator()
	for _, trip := range static.Trips {
		if trip.Route == nil {
			continue
		}
		calc.addTrip(routeName(trip.Route), int64(trip.DirectionId), locatedStops(trip))
	}

	type key struct{ route, stop, dir string }
	seen := make(map[key]bool)
	raw := make(map[string][]Stop)

	for _, trip := range static.Trips {
		if trip.Route == nil {
			continue
		}
		route := routeName(trip.Route)
		for _, st := range orderedStopTimes(trip) {
			if st.Stop == nil {
				continue
			}
			dir := calc.direction(route, st.Stop.Id, int64(trip.DirectionId))
			if dir == "" {
				dir = trip.Headsign
			}
			if dir == "" {
				dir = "Direction " + strconv.FormatInt(int64(trip.DirectionId), 10)
			}
			k := key{route: route, stop: st.Stop.Id, dir: dir}
			if seen[k] {
				continue
			}
			seen[k] = true
			name := st.Stop.Name
			if name == "" {
				name = st.Stop.Id
			}
			raw[route] = append(raw[route], Stop{ID: st.Stop.Id, Name: name, Dir: dir})
		}
	}
	return New(raw), nil
}

func routeName(r *gtfs.Route) string {
	if r.ShortName != "" {
		return r.ShortName
	}
	return r.Id
}

func orderedStopTimes(trip gtfs.ScheduledTrip) []gtfs.ScheduledStopTime {
	stopTimes := append([]gtfs.ScheduledStopTime(nil), trip.StopTimes...)
	sort.SliceStable(stopTimes, func(i, j int) bool {
		return stopTimes[i].StopSequence < stopTimes[j].StopSequence
	})
	return stopTimes
}

// locatedStops returns the trip's stops that carry coordinates, in order.
func locatedStops(trip gtfs.ScheduledTrip) []point {
	var out []point
	for _, st := range orderedStopTimes(trip) {
		if st.Stop == nil || st.Stop.Latitude == nil || st.Stop.Longitude == nil {
			continue
		}
		out = append(out, point{stopID: st.Stop.Id, lat: *st.Stop.Latitude, lon: *st.Stop.Longitude})
	}
	return out
}

// LoadStaticFile reads a GTFS zip from path and derives a directory from it.
func LoadStaticFile(path string) (*Directory, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading local GTFS file: %w", err)
	}
	return FromStatic(b)
}
