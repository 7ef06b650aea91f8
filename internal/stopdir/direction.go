package stopdir

import (
	"math"
	"sort"

	"stoptracker.transitpulse.org/internal/utils"
)

const defaultVarianceThreshold = 0.7

type directionKey struct {
	route string
	stop  string
	dirID int64
}

// directionCalculator collects the travel orientation of every trip at every
// stop and reduces them to a compass label such as "Northbound".
type directionCalculator struct {
	varianceThreshold float64
	samples           map[directionKey][]float64
}

func newDirectionCalculator() *directionCalculator {
	return &directionCalculator{
		varianceThreshold: defaultVarianceThreshold,
		samples:           make(map[directionKey][]float64),
	}
}

type point struct {
	stopID   string
	lat, lon float64
}

// addTrip records the orientation at each stop of an ordered trip, measured
// from the previous stop to the next one. Trips with fewer than two located
// stops add nothing.
func (c *directionCalculator) addTrip(route string, dirID int64, stops []point) {
	if len(stops) < 2 {
		return
	}
	for i, p := range stops {
		from, to := stops[max(i-1, 0)], stops[min(i+1, len(stops)-1)]
		if from.lat == to.lat && from.lon == to.lon {
			continue
		}
		bearing := utils.Bearing(from.lat, from.lon, to.lat, to.lon)
		k := directionKey{route: route, stop: p.stopID, dirID: dirID}
		c.samples[k] = append(c.samples[k], (90.0-bearing)*math.Pi/180.0)
	}
}

// direction returns the compass label for a stop, or "" when there are no
// samples or they disagree too much.
func (c *directionCalculator) direction(route, stopID string, dirID int64) string {
	orientations := c.samples[directionKey{route: route, stop: stopID, dirID: dirID}]
	switch len(orientations) {
	case 0:
		return ""
	case 1:
		return angleAsDirection(orientations[0])
	}

	xs := make([]float64, len(orientations))
	ys := make([]float64, len(orientations))
	for i, o := range orientations {
		xs[i] = math.Cos(o)
		ys[i] = math.Sin(o)
	}
	xMu, yMu := mean(xs), mean(ys)
	if xMu == 0 && yMu == 0 {
		return ""
	}
	if math.Sqrt(variance(xs, xMu)) > c.varianceThreshold || math.Sqrt(variance(ys, yMu)) > c.varianceThreshold {
		return ""
	}

	thetaMu := math.Atan2(yMu, xMu)
	thetas := make([]float64, len(orientations))
	for i, o := range orientations {
		thetas[i] = thetaMu + normalizeAngle(o-thetaMu)
	}
	sort.Float64s(thetas)
	return angleAsDirection(median(thetas))
}

// normalizeAngle maps theta into [-pi, pi).
func normalizeAngle(theta float64) float64 {
	for theta >= math.Pi {
		theta -= 2 * math.Pi
	}
	for theta < -math.Pi {
		theta += 2 * math.Pi
	}
	return theta
}

// angleAsDirection buckets an orientation (radians counterclockwise from
// east) into one of the four bound labels.
func angleAsDirection(theta float64) string {
	theta = normalizeAngle(theta)
	switch int(math.Floor((theta + math.Pi/4) / (math.Pi / 2))) {
	case 0:
		return "Eastbound"
	case 1:
		return "Northbound"
	case -1:
		return "Southbound"
	default:
		return "Westbound"
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// variance is the sample variance around mu.
func variance(values []float64, mu float64) float64 {
	if len(values) <= 1 {
		return 0
	}
	sumSquares := 0.0
	for _, v := range values {
		d := v - mu
		sumSquares += d * d
	}
	return sumSquares / float64(len(values)-1)
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
