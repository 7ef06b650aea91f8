package realtime

import (
	"sort"
	"sync"
	"time"

	"github.com/twpayne/go-polyline"
	"stoptracker.transitpulse.org/internal/feed"
	"stoptracker.transitpulse.org/internal/utils"
)

// TrailPoint is one recorded vehicle position.
type TrailPoint struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Timestamp int64   `json:"timestamp"`
}

// Trail is the recent path of one vehicle, oldest point first.
type Trail struct {
	ID           string       `json:"id"`
	RouteID      string       `json:"routeId"`
	Points       []TrailPoint `json:"points"`
	Polyline     string       `json:"polyline"`
	LengthMeters float64      `json:"lengthMeters"`
}

// TrailStore keeps a bounded window of positions per vehicle in memory.
type TrailStore struct {
	mu        sync.RWMutex
	maxPoints int
	maxAge    time.Duration
	trails    map[string]*trail
}

type trail struct {
	routeID string
	points  []TrailPoint
}

// NewTrailStore keeps at most maxPoints points per vehicle, none older than maxAge.
func NewTrailStore(maxPoints int, maxAge time.Duration) *TrailStore {
	if maxPoints <= 0 {
		maxPoints = 20
	}
	if maxAge <= 0 {
		maxAge = 15 * time.Minute
	}
	return &TrailStore{
		maxPoints: maxPoints,
		maxAge:    maxAge,
		trails:    make(map[string]*trail),
	}
}

// Record appends the positions of a snapshot. A report repeating the last
// recorded timestamp of its vehicle is ignored. Reports without a timestamp
// are stamped with now.
func (s *TrailStore) Record(vehicles []feed.VehicleReport, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range vehicles {
		if v.ID == "" {
			continue
		}
		ts := v.Timestamp
		if ts == 0 {
			ts = now.Unix()
		}
		t, ok := s.trails[v.ID]
		if !ok {
			t = &trail{}
			s.trails[v.ID] = t
		}
		t.routeID = v.RouteID
		if n := len(t.points); n > 0 && t.points[n-1].Timestamp >= ts {
			continue
		}
		t.points = append(t.points, TrailPoint{Lat: v.Lat, Lng: v.Lng, Timestamp: ts})
		if over := len(t.points) - s.maxPoints; over > 0 {
			t.points = append(t.points[:0:0], t.points[over:]...)
		}
	}
	s.pruneLocked(now)
}

// pruneLocked drops points older than maxAge and vehicles left without points.
func (s *TrailStore) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.maxAge).Unix()
	for id, t := range s.trails {
		i := sort.Search(len(t.points), func(i int) bool { return t.points[i].Timestamp >= cutoff })
		t.points = t.points[i:]
		if len(t.points) == 0 {
			delete(s.trails, id)
		}
	}
}

// Get returns the trail of vehicle id.
func (s *TrailStore) Get(id string) (Trail, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.trails[id]
	if !ok || len(t.points) == 0 {
		return Trail{}, false
	}
	points := make([]TrailPoint, len(t.points))
	copy(points, t.points)

	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Lat, p.Lng}
	}
	return Trail{
		ID:           id,
		RouteID:      t.routeID,
		Points:       points,
		Polyline:     string(polyline.EncodeCoords(coords)),
		LengthMeters: utils.PathLength(coords),
	}, true
}

// Len returns the number of vehicles with a trail.
func (s *TrailStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trails)
}
