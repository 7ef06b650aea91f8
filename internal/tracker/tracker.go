// Package tracker owns the user's list of tracked stop/route pairs and keeps
// it persisted in the key-value store.
package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"stoptracker.transitpulse.org/internal/apperrors"
	"stoptracker.transitpulse.org/internal/clock"
	"stoptracker.transitpulse.org/internal/logging"
	"stoptracker.transitpulse.org/internal/stopdir"
	"stoptracker.transitpulse.org/internal/storage"
)

// StateKey is the store key holding the JSON array of tracked items.
const StateKey = "myTrackers"

// TrackedItem is one stop/route pair the user follows.
type TrackedItem struct {
	ID        int64  `json:"id"`
	Route     string `json:"route"`
	StopID    string `json:"stopId"`
	StopName  string `json:"stopName"`
	Direction string `json:"dir"`
}

// NewItem is the caller-supplied part of a TrackedItem.
type NewItem struct {
	Route     string `json:"route"`
	StopID    string `json:"stopId"`
	Direction string `json:"dir"`
}

// Directory resolves a stop on a route; *stopdir.Directory satisfies it.
type Directory interface {
	Lookup(route, stopID, direction string) (stopdir.Stop, bool)
}

// Options configures Load.
type Options struct {
	Store     storage.Store
	Directory Directory
	Clock     clock.Clock
	Logger    *slog.Logger
	// OnCount, when set, is called with the item count after load and after
	// every successful mutation.
	OnCount func(n int)
}

// Registry is the authoritative tracked item list. All methods are safe for
// concurrent use.
type Registry struct {
	mu     sync.Mutex
	items  []TrackedItem
	lastID int64

	store   storage.Store
	dir     Directory
	clock   clock.Clock
	logger  *slog.Logger
	onCount func(int)
}

// Load builds a Registry from the persisted state. Missing or unparseable
// state yields an empty list; only a failing store read is an error.
func Load(ctx context.Context, opts Options) (*Registry, error) {
	r := &Registry{
		store:   opts.Store,
		dir:     opts.Directory,
		clock:   opts.Clock,
		logger:  opts.Logger,
		onCount: opts.OnCount,
		items:   []TrackedItem{},
	}
	if r.clock == nil {
		r.clock = clock.RealClock{}
	}
	if r.logger == nil {
		r.logger = logging.FromContext(ctx)
	}
	r.logger = r.logger.With(slog.String("component", "tracker_registry"))

	raw, ok, err := r.store.Get(ctx, StateKey)
	if err != nil {
		return nil, fmt.Errorf("load tracked items: %w", err)
	}
	switch {
	case !ok:
		logging.LogOperation(r.logger, "tracked_items_initialized_empty")
	default:
		var items []TrackedItem
		if err := json.Unmarshal(raw, &items); err != nil {
			logging.LogError(r.logger, "persisted tracked items unreadable, starting empty", err)
		} else if items != nil {
			r.items = items
		}
	}
	for _, item := range r.items {
		if item.ID > r.lastID {
			r.lastID = item.ID
		}
	}
	r.notify()
	return r, nil
}

// Add validates item, resolves its stop name and appends it. Route, direction
// and stop id are required and the stop must be served by the route in that
// direction; otherwise an *apperrors.InputError is returned and nothing
// changes.
func (r *Registry) Add(ctx context.Context, item NewItem) (TrackedItem, error) {
	route := strings.TrimSpace(item.Route)
	stopID := strings.TrimSpace(item.StopID)
	direction := strings.TrimSpace(item.Direction)

	switch {
	case route == "":
		return TrackedItem{}, apperrors.NewInputError("route", "route is required")
	case direction == "":
		return TrackedItem{}, apperrors.NewInputError("dir", "direction is required")
	case stopID == "":
		return TrackedItem{}, apperrors.NewInputError("stopId", "stop is required")
	}

	stop, ok := r.dir.Lookup(route, stopID, direction)
	if !ok {
		return TrackedItem{}, apperrors.NewInputError("stopId",
			fmt.Sprintf("stop %s is not served by route %s %s", stopID, route, direction))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tracked := TrackedItem{
		ID:        r.nextID(),
		Route:     route,
		StopID:    stop.ID,
		StopName:  stop.Name,
		Direction: stop.Dir,
	}

	next := make([]TrackedItem, len(r.items), len(r.items)+1)
	copy(next, r.items)
	next = append(next, tracked)
	if err := r.commit(ctx, next); err != nil {
		return TrackedItem{}, err
	}
	r.lastID = tracked.ID

	logging.LogOperation(r.logger, "tracked_item_added",
		slog.Int64("id", tracked.ID),
		slog.String("route", tracked.Route),
		slog.String("stop_id", tracked.StopID))
	return tracked, nil
}

// Remove deletes the item with id. An unknown id is a no-op.
func (r *Registry) Remove(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make([]TrackedItem, 0, len(r.items))
	for _, item := range r.items {
		if item.ID != id {
			next = append(next, item)
		}
	}
	if len(next) == len(r.items) {
		return nil
	}
	if err := r.commit(ctx, next); err != nil {
		return err
	}
	logging.LogOperation(r.logger, "tracked_item_removed", slog.Int64("id", id))
	return nil
}

// List returns a copy of the items in insertion order.
func (r *Registry) List() []TrackedItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TrackedItem, len(r.items))
	copy(out, r.items)
	return out
}

// Get returns the item with id.
func (r *Registry) Get(id int64) (TrackedItem, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.items {
		if item.ID == id {
			return item, true
		}
	}
	return TrackedItem{}, false
}

// nextID returns the current time in milliseconds, bumped past the last
// issued id. Caller holds r.mu.
func (r *Registry) nextID() int64 {
	id := r.clock.NowUnixMilli()
	if id <= r.lastID {
		id = r.lastID + 1
	}
	return id
}

// commit persists next and installs it. The in-memory list is untouched when
// the write fails. Caller holds r.mu.
func (r *Registry) commit(ctx context.Context, next []TrackedItem) error {
	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode tracked items: %w", err)
	}
	if err := r.store.Put(ctx, StateKey, raw); err != nil {
		logging.LogError(r.logger, "failed to persist tracked items", err)
		return fmt.Errorf("persist tracked items: %w", err)
	}
	r.items = next
	r.notify()
	return nil
}

func (r *Registry) notify() {
	if r.onCount != nil {
		r.onCount(len(r.items))
	}
}
