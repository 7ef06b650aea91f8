package realtime

import (
	"github.com/tidwall/rtree"
	"stoptracker.transitpulse.org/internal/feed"
	"stoptracker.transitpulse.org/internal/utils"
)

// vehicleIndex is an immutable spatial index over one vehicle snapshot.
// Points are stored as [lat, lng].
type vehicleIndex struct {
	tree     rtree.RTreeG[int]
	vehicles []feed.VehicleReport
}

func newVehicleIndex(vehicles []feed.VehicleReport) *vehicleIndex {
	idx := &vehicleIndex{vehicles: vehicles}
	for i, v := range vehicles {
		p := [2]float64{v.Lat, v.Lng}
		idx.tree.Insert(p, p, i)
	}
	return idx
}

// within returns the vehicles inside b in snapshot order.
func (idx *vehicleIndex) within(b utils.CoordinateBounds) []feed.VehicleReport {
	hits := make([]bool, len(idx.vehicles))
	idx.tree.Search(
		[2]float64{b.MinLat, b.MinLon},
		[2]float64{b.MaxLat, b.MaxLon},
		func(_, _ [2]float64, i int) bool {
			hits[i] = true
			return true
		},
	)
	out := make([]feed.VehicleReport, 0)
	for i, hit := range hits {
		if hit {
			out = append(out, idx.vehicles[i])
		}
	}
	return out
}
