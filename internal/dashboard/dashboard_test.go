package dashboard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"stoptracker.transitpulse.org/internal/activity"
	"stoptracker.transitpulse.org/internal/clock"
	"stoptracker.transitpulse.org/internal/feed"
	"stoptracker.transitpulse.org/internal/predict"
	"stoptracker.transitpulse.org/internal/tracker"
)

var now = time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC)

type staticItems struct {
	mu    sync.Mutex
	items []tracker.TrackedItem
}

func (s *staticItems) List() []tracker.TrackedItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tracker.TrackedItem(nil), s.items...)
}

type fakeRealtime struct {
	trips       []feed.Trip
	err         error
	failFirst   atomic.Bool
	tripCalls   atomic.Int32
	vehicleCall atomic.Int32
}

func (f *fakeRealtime) TripUpdates(context.Context) ([]feed.Trip, error) {
	f.tripCalls.Add(1)
	if f.failFirst.CompareAndSwap(true, false) {
		return nil, errors.New("feed hiccup")
	}
	return f.trips, f.err
}

func (f *fakeRealtime) Vehicles(context.Context) ([]feed.VehicleReport, error) {
	f.vehicleCall.Add(1)
	return nil, errors.New("vehicles down")
}

type fakeActivity struct {
	entries []activity.Entry
	err     error
}

func (f *fakeActivity) Load(context.Context) ([]activity.Entry, error) {
	return f.entries, f.err
}

type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *countingObserver) ObserveCard(kind string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	key := kind + ":ok"
	if err != nil {
		key = kind + ":error"
	}
	o.counts[key]++
}

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func trips() []feed.Trip {
	return []feed.Trip{
		{ID: "t1", RouteID: "A", StopTimeUpdates: []feed.StopTimeUpdate{{StopID: "34233", Arrival: at(12 * time.Minute)}}},
		{ID: "t2", RouteID: "107R", StopTimeUpdates: []feed.StopTimeUpdate{{StopID: "34600", Arrival: at(4 * time.Minute)}}},
		{ID: "t3", RouteID: "A", StopTimeUpdates: []feed.StopTimeUpdate{{StopID: "34233", Arrival: at(3 * time.Minute)}}},
		{ID: "t4", RouteID: "121", StopTimeUpdates: []feed.StopTimeUpdate{{StopID: "34233", Arrival: at(1 * time.Minute)}}},
	}
}

func items() *staticItems {
	return &staticItems{items: []tracker.TrackedItem{
		{ID: 1, Route: "A", StopID: "34233", StopName: "Union Station (Track 1)", Direction: "Eastbound"},
		{ID: 2, Route: "R", StopID: "34600", StopName: "Lincoln Station", Direction: "Northbound"},
		{ID: 3, Route: "121", StopID: "24806", StopName: "Peoria St & 17th Ave", Direction: "Northbound"},
	}}
}

func newService(rt Realtime, act ActivityLoader, observer CardObserver, list *staticItems) *Service {
	return New(Config{MaxConcurrent: 2}, Options{
		Items:     list,
		Realtime:  rt,
		Activity:  act,
		Predictor: predict.New(3, time.UTC),
		Clock:     clock.NewMockClock(now),
		Observer:  observer,
	})
}

func TestRefreshPredictions(t *testing.T) {
	rt := &fakeRealtime{trips: trips()}
	observer := &countingObserver{counts: map[string]int{}}
	s := newService(rt, nil, observer, items())

	s.RefreshPredictions(context.Background())

	cards := s.Cards()
	require.Len(t, cards, 3)

	// Route filter runs before truncation, so the route 121 arrival at the
	// same stop does not count for the A card.
	assert.Equal(t, []int{3, 12}, minutes(cards[0].Prediction))
	assert.Equal(t, "3 min (05:03 PM - Route A)", cards[0].PredictionText)
	assert.True(t, cards[0].Urgent)

	assert.Equal(t, []int{4}, minutes(cards[1].Prediction), "107R counts for R")
	assert.True(t, cards[1].Urgent)

	assert.Empty(t, cards[2].Prediction)
	assert.Equal(t, NoArrivalsText, cards[2].PredictionText)
	assert.False(t, cards[2].Urgent)
	assert.Equal(t, now, cards[2].UpdatedAt)

	assert.Equal(t, int32(1), rt.vehicleCall.Load(), "vehicle refresh rides the prediction tick")
	assert.Equal(t, 3, observer.counts["prediction:ok"])
}

func TestRefreshPredictions_FailureIsolatedPerItem(t *testing.T) {
	rt := &fakeRealtime{trips: trips()}
	rt.failFirst.Store(true)
	list := items()
	list.items = list.items[:2]
	s := newService(rt, nil, nil, list)

	s.RefreshPredictions(context.Background())

	placeholders := 0
	for _, c := range s.Cards() {
		if c.PredictionText == NoArrivalsText {
			placeholders++
		}
	}
	assert.Equal(t, 1, placeholders, "only the failed task's card degrades")
	assert.Equal(t, int32(2), rt.tripCalls.Load())
}

func TestRefreshActivity(t *testing.T) {
	act := &fakeActivity{entries: []activity.Entry{
		{Timestamp: now.Add(-2 * time.Minute).UnixMilli(), RouteID: "A"},
		{Timestamp: now.Add(-30 * time.Minute).UnixMilli(), RouteID: "107R"},
	}}
	s := newService(&fakeRealtime{}, act, nil, items())

	s.RefreshActivity(context.Background())

	cards := s.Cards()
	assert.Equal(t, Freshness{Status: activity.Active, AgeMinutes: 2, Text: "System Active (Last log 2m ago)"}, cards[0].Freshness)
	assert.Equal(t, Freshness{Status: activity.Stalled, AgeMinutes: 30, Text: "Stalled / No Data (Last log 30m ago)"}, cards[1].Freshness)
	assert.Equal(t, activity.Unknown, cards[2].Freshness.Status)
	assert.Equal(t, StatusUnknownText, cards[2].Freshness.Text)

	assert.Equal(t, activity.Active, s.RouteStatus("a").Kind)

	// A failed download keeps the previous snapshot.
	act.err = errors.New("sheet unavailable")
	s.RefreshActivity(context.Background())
	assert.Equal(t, activity.Active, s.Cards()[0].Freshness.Status)
}

func TestCardFreshnessAgesBetweenTicks(t *testing.T) {
	clk := clock.NewMockClock(now)
	act := &fakeActivity{entries: []activity.Entry{{Timestamp: now.Add(-8 * time.Minute).UnixMilli(), RouteID: "A"}}}
	s := New(Config{}, Options{Items: items(), Realtime: &fakeRealtime{}, Activity: act, Clock: clk})

	s.RefreshActivity(context.Background())
	assert.Equal(t, Freshness{Status: activity.Active, AgeMinutes: 8, Text: "System Active (Last log 8m ago)"}, s.Cards()[0].Freshness)

	clk.Advance(3 * time.Minute)
	card := s.Cards()[0]
	assert.Equal(t, Freshness{Status: activity.Stalled, AgeMinutes: 11, Text: "Stalled / No Data (Last log 11m ago)"}, card.Freshness)
	assert.Equal(t, s.RouteStatus("A").AgeMinutes, card.Freshness.AgeMinutes)
}

func TestCardsPlaceholdersAndRemovedItems(t *testing.T) {
	list := items()
	s := newService(&fakeRealtime{trips: trips()}, nil, nil, list)

	cards := s.Cards()
	require.Len(t, cards, 3)
	for _, c := range cards {
		assert.Equal(t, NoArrivalsText, c.PredictionText)
		assert.Equal(t, StatusUnknownText, c.Freshness.Text)
		assert.NotNil(t, c.Prediction)
	}

	s.RefreshPredictions(context.Background())
	list.mu.Lock()
	list.items = list.items[1:]
	list.mu.Unlock()
	s.RefreshPredictions(context.Background())

	s.mu.RLock()
	_, kept := s.cards[1]
	s.mu.RUnlock()
	assert.False(t, kept, "state of removed items is dropped")
	assert.Len(t, s.Cards(), 2)
}

func TestStartAndShutdown(t *testing.T) {
	rt := &fakeRealtime{trips: trips()}
	s := New(Config{PredictionInterval: 10 * time.Millisecond, ActivityInterval: 10 * time.Millisecond}, Options{
		Items:    items(),
		Realtime: rt,
		Activity: &fakeActivity{},
		Clock:    clock.NewMockClock(now),
	})

	s.Start()
	s.Start()
	assert.Eventually(t, func() bool { return rt.vehicleCall.Load() >= 2 }, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Shutdown()
		s.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Shutdown did not complete within timeout")
	}
}

func minutes(arrivals []predict.Arrival) []int {
	out := make([]int, 0, len(arrivals))
	for _, a := range arrivals {
		out = append(out, a.Minutes)
	}
	return out
}
