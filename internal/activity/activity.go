// Package activity reads the route-sighting log and classifies how recently
// each tracked route was seen.
package activity

import (
	"fmt"
	"time"

	"stoptracker.transitpulse.org/internal/routeid"
)

// DefaultThreshold is the largest age, in minutes, still reported as active.
const DefaultThreshold = 10

// Entry is one row of the activity log.
type Entry struct {
	Timestamp int64 // unix milliseconds
	RouteID   string
	VehicleID string
}

// Kind classifies a route's freshness.
type Kind string

const (
	Unknown Kind = "unknown"
	Active  Kind = "active"
	Stalled Kind = "stalled"
)

// Status is the freshness of one route. AgeMinutes is meaningful only when
// Kind is Active or Stalled.
type Status struct {
	Kind       Kind  `json:"status"`
	AgeMinutes int64 `json:"ageMinutes"`
	LastSeenMs int64 `json:"lastSeen,omitempty"`
}

// Text renders s the way the dashboard shows it.
func (s Status) Text() string {
	switch s.Kind {
	case Active:
		return fmt.Sprintf("System Active (Last log %dm ago)", s.AgeMinutes)
	case Stalled:
		return fmt.Sprintf("Stalled / No Data (Last log %dm ago)", s.AgeMinutes)
	default:
		return "Status Unknown"
	}
}

// Classify reports the freshness of trackedRoute given the log entries.
// Entries are compared on their normalized route. With no matching entry the
// status is Unknown; otherwise the newest entry's age in whole minutes
// (floored) decides between Active (age <= threshold) and Stalled.
func Classify(entries []Entry, trackedRoute string, now time.Time, threshold int) Status {
	target := routeid.Normalize(trackedRoute)

	var newest int64
	found := false
	for _, e := range entries {
		if routeid.Normalize(e.RouteID) != target {
			continue
		}
		if !found || e.Timestamp > newest {
			newest = e.Timestamp
			found = true
		}
	}
	if !found {
		return Status{Kind: Unknown}
	}
	return classifyAge(newest, now, threshold)
}

func classifyAge(lastSeenMs int64, now time.Time, threshold int) Status {
	age := floorDiv(now.UnixMilli()-lastSeenMs, 60000)
	kind := Stalled
	if age <= int64(threshold) {
		kind = Active
	}
	return Status{Kind: kind, AgeMinutes: age, LastSeenMs: lastSeenMs}
}

// floorDiv divides rounding toward negative infinity, so entries stamped
// slightly in the future yield a negative age instead of 0.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Snapshot is the newest sighting per canonical route from one log download.
type Snapshot struct {
	FetchedAt time.Time
	lastSeen  map[string]int64
}

// NewSnapshot indexes entries by canonical route.
func NewSnapshot(entries []Entry, fetchedAt time.Time) *Snapshot {
	s := &Snapshot{FetchedAt: fetchedAt, lastSeen: make(map[string]int64)}
	for _, e := range entries {
		route := routeid.Normalize(e.RouteID)
		if route == "" {
			continue
		}
		if prev, ok := s.lastSeen[route]; !ok || e.Timestamp > prev {
			s.lastSeen[route] = e.Timestamp
		}
	}
	return s
}

// Status classifies route against the snapshot with Classify, fed the newest
// entry kept for the route. A nil snapshot yields Unknown.
func (s *Snapshot) Status(route string, now time.Time, threshold int) Status {
	if s == nil {
		return Status{Kind: Unknown}
	}
	canonical := routeid.Normalize(route)
	lastSeen, ok := s.lastSeen[canonical]
	if !ok {
		return Status{Kind: Unknown}
	}
	return Classify([]Entry{{Timestamp: lastSeen, RouteID: canonical}}, canonical, now, threshold)
}

// Routes returns the number of distinct routes seen.
func (s *Snapshot) Routes() int {
	if s == nil {
		return 0
	}
	return len(s.lastSeen)
}
