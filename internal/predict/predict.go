// Package predict derives ranked upcoming arrivals at a stop from a decoded
// trip-updates snapshot.
package predict

import (
	"math"
	"sort"
	"time"

	"stoptracker.transitpulse.org/internal/feed"
	"stoptracker.transitpulse.org/internal/routeid"
)

// DefaultLimit is the number of arrivals returned per query.
const DefaultLimit = 3

// ClockLayout renders the arrival instant for people.
const ClockLayout = "03:04 PM"

// Arrival is one predicted vehicle arrival at a stop.
type Arrival struct {
	RouteID string    `json:"routeId"`
	Minutes int       `json:"minutes"`
	Time    string    `json:"time"`
	At      time.Time `json:"-"`
}

// Predictor ranks arrivals. The zero value uses DefaultLimit and UTC.
type Predictor struct {
	Limit    int
	Location *time.Location
}

// New returns a Predictor with limit results per query, rendering clock
// times in loc.
func New(limit int, loc *time.Location) *Predictor {
	return &Predictor{Limit: limit, Location: loc}
}

// Predict returns at most Limit future arrivals at stopID, soonest first.
//
// Only the first stop-time update of each trip that matches stopID is used,
// so a loop trip visiting the stop twice contributes its first visit only.
// Updates without an arrival time and arrivals not strictly after now are
// dropped. Equal minute values keep feed order.
func (p *Predictor) Predict(stopID string, trips []feed.Trip, now time.Time) []Arrival {
	return p.rank(stopID, trips, now, func(feed.Trip) bool { return true })
}

// PredictRoute is Predict restricted to trips whose route normalizes to the
// same identity as route. The filter runs before truncation.
func (p *Predictor) PredictRoute(stopID, route string, trips []feed.Trip, now time.Time) []Arrival {
	canonical := routeid.Normalize(route)
	return p.rank(stopID, trips, now, func(trip feed.Trip) bool {
		return routeid.Normalize(trip.RouteID) == canonical
	})
}

func (p *Predictor) rank(stopID string, trips []feed.Trip, now time.Time, keep func(feed.Trip) bool) []Arrival {
	arrivals := make([]Arrival, 0)
	if stopID == "" {
		return arrivals
	}

	for _, trip := range trips {
		if !keep(trip) {
			continue
		}
		update, ok := firstVisit(trip, stopID)
		if !ok || update.Arrival == nil {
			continue
		}
		at := *update.Arrival
		if !at.After(now) {
			continue
		}
		arrivals = append(arrivals, Arrival{
			RouteID: trip.RouteID,
			Minutes: int(math.Round(at.Sub(now).Minutes())),
			Time:    at.In(p.location()).Format(ClockLayout),
			At:      at,
		})
	}

	sort.SliceStable(arrivals, func(i, j int) bool {
		return arrivals[i].Minutes < arrivals[j].Minutes
	})

	if limit := p.limit(); len(arrivals) > limit {
		arrivals = arrivals[:limit]
	}
	return arrivals
}

func firstVisit(trip feed.Trip, stopID string) (feed.StopTimeUpdate, bool) {
	for _, update := range trip.StopTimeUpdates {
		if update.StopID == stopID {
			return update, true
		}
	}
	return feed.StopTimeUpdate{}, false
}

func (p *Predictor) limit() int {
	if p == nil || p.Limit <= 0 {
		return DefaultLimit
	}
	return p.Limit
}

func (p *Predictor) location() *time.Location {
	if p == nil || p.Location == nil {
		return time.UTC
	}
	return p.Location
}
