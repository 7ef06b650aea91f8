// Package stopdir holds the read-only directory of trackable stops per route.
package stopdir

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
	"stoptracker.transitpulse.org/internal/routeid"
)

//go:embed default_stops.yaml
var defaultStops []byte

// Stop is one trackable stop on a route.
type Stop struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	Dir  string `yaml:"dir" json:"dir"`
}

// Directory maps routes to their trackable stops. Routes are keyed by their
// canonical identity; the first spelling seen is kept for display.
type Directory struct {
	routes  map[string][]Stop
	display map[string]string
}

// New builds a Directory from a route -> stops mapping.
func New(raw map[string][]Stop) *Directory {
	d := &Directory{
		routes:  make(map[string][]Stop, len(raw)),
		display: make(map[string]string, len(raw)),
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, route := range keys {
		canonical := routeid.Normalize(route)
		if canonical == "" {
			continue
		}
		if _, ok := d.display[canonical]; !ok {
			d.display[canonical] = route
		}
		d.routes[canonical] = append(d.routes[canonical], raw[route]...)
	}
	return d
}

// Parse decodes a YAML (or JSON) document of the form route -> [{id, name, dir}].
func Parse(data []byte) (*Directory, error) {
	var raw map[string][]Stop
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse stop directory: %w", err)
	}
	for route, stops := range raw {
		for i, s := range stops {
			if s.ID == "" {
				return nil, fmt.Errorf("parse stop directory: route %q stop %d has no id", route, i)
			}
		}
	}
	return New(raw), nil
}

// LoadFile reads a directory document from path.
func LoadFile(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stop directory: %w", err)
	}
	return Parse(data)
}

// Default returns the built-in directory.
func Default() *Directory {
	d, err := Parse(defaultStops)
	if err != nil {
		panic(err)
	}
	return d
}

// Lookup finds stopID on route. When direction is not empty it must match
// the stop's direction as well.
func (d *Directory) Lookup(route, stopID, direction string) (Stop, bool) {
	for _, s := range d.routes[routeid.Normalize(route)] {
		if s.ID != stopID {
			continue
		}
		if direction != "" && s.Dir != direction {
			continue
		}
		return s, true
	}
	return Stop{}, false
}

// Stops returns the stops of route in directory order.
func (d *Directory) Stops(route string) []Stop {
	stops := d.routes[routeid.Normalize(route)]
	out := make([]Stop, len(stops))
	copy(out, stops)
	return out
}

// Routes returns the display names of every route, sorted.
func (d *Directory) Routes() []string {
	out := make([]string, 0, len(d.display))
	for _, name := range d.display {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// All returns the full mapping keyed by display route name.
func (d *Directory) All() map[string][]Stop {
	out := make(map[string][]Stop, len(d.routes))
	for canonical := range d.routes {
		out[d.display[canonical]] = d.Stops(canonical)
	}
	return out
}
