// Package dashboard keeps one card per tracked item up to date: upcoming
// arrivals refreshed on one ticker, route freshness on another.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"stoptracker.transitpulse.org/internal/activity"
	"stoptracker.transitpulse.org/internal/clock"
	"stoptracker.transitpulse.org/internal/feed"
	"stoptracker.transitpulse.org/internal/logging"
	"stoptracker.transitpulse.org/internal/predict"
	"stoptracker.transitpulse.org/internal/tracker"
)

// Placeholder texts shown when there is nothing to report.
const (
	NoArrivalsText     = "No upcoming arrivals"
	StatusUnknownText  = "Status Unknown"
	defaultUrgent      = 5
	defaultConcurrency = 4
)

// Items lists the tracked items; *tracker.Registry satisfies it.
type Items interface {
	List() []tracker.TrackedItem
}

// Realtime supplies snapshots; *realtime.Manager satisfies it.
type Realtime interface {
	TripUpdates(ctx context.Context) ([]feed.Trip, error)
	Vehicles(ctx context.Context) ([]feed.VehicleReport, error)
}

// ActivityLoader downloads the activity log; *activity.Source satisfies it.
type ActivityLoader interface {
	Load(ctx context.Context) ([]activity.Entry, error)
}

// CardObserver is told about every card refresh; *metrics.Metrics satisfies it.
type CardObserver interface {
	ObserveCard(kind string, err error)
}

// Config holds the loop timings and card rules.
type Config struct {
	PredictionInterval time.Duration
	ActivityInterval   time.Duration
	// RefreshTimeout bounds one tick.
	RefreshTimeout time.Duration
	MaxConcurrent  int
	Threshold      int
	UrgentMinutes  int
}

// Options carries the collaborators. Activity and Observer may be nil.
type Options struct {
	Items     Items
	Realtime  Realtime
	Activity  ActivityLoader
	Predictor *predict.Predictor
	Clock     clock.Clock
	Logger    *slog.Logger
	Observer  CardObserver
}

// Freshness is the activity part of a card.
type Freshness struct {
	Status     activity.Kind `json:"status"`
	AgeMinutes int64         `json:"ageMinutes"`
	Text       string        `json:"text"`
}

// Card is the rendered state of one tracked item.
type Card struct {
	Item           tracker.TrackedItem `json:"item"`
	Prediction     []predict.Arrival   `json:"prediction"`
	PredictionText string              `json:"predictionText"`
	Urgent         bool                `json:"urgent"`
	Freshness      Freshness           `json:"freshness"`
	UpdatedAt      time.Time           `json:"updatedAt"`
}

type cardState struct {
	prediction     []predict.Arrival
	predictionText string
	urgent         bool
	updatedAt      time.Time
}

// Service runs the two refresh loops. Card state is keyed by item id and the
// last completed task wins.
type Service struct {
	config    Config
	items     Items
	realtime  Realtime
	activity  ActivityLoader
	predictor *predict.Predictor
	clock     clock.Clock
	logger    *slog.Logger
	observer  CardObserver

	mu       sync.RWMutex
	cards    map[int64]*cardState
	snapshot *activity.Snapshot

	shutdownChan chan struct{}
	shutdownOnce sync.Once
	startOnce    sync.Once
	wg           sync.WaitGroup
}

// New returns a stopped Service.
func New(config Config, opts Options) *Service {
	if config.PredictionInterval <= 0 {
		config.PredictionInterval = 30 * time.Second
	}
	if config.ActivityInterval <= 0 {
		config.ActivityInterval = 60 * time.Second
	}
	if config.RefreshTimeout <= 0 {
		config.RefreshTimeout = 15 * time.Second
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = defaultConcurrency
	}
	if config.UrgentMinutes <= 0 {
		config.UrgentMinutes = defaultUrgent
	}
	if config.Threshold <= 0 {
		config.Threshold = activity.DefaultThreshold
	}

	s := &Service{
		config:       config,
		items:        opts.Items,
		realtime:     opts.Realtime,
		activity:     opts.Activity,
		predictor:    opts.Predictor,
		clock:        opts.Clock,
		logger:       opts.Logger,
		observer:     opts.Observer,
		cards:        make(map[int64]*cardState),
		shutdownChan: make(chan struct{}),
	}
	if s.predictor == nil {
		s.predictor = predict.New(predict.DefaultLimit, time.UTC)
	}
	if s.clock == nil {
		s.clock = clock.RealClock{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With(slog.String("component", "dashboard"))
	return s
}

// Start runs an immediate refresh of both kinds and then the two tickers
// until Shutdown.
func (s *Service) Start() {
	s.startOnce.Do(func() {
		s.wg.Add(2)
		go s.loop("predictions", s.config.PredictionInterval, s.RefreshPredictions)
		go s.loop("activity", s.config.ActivityInterval, s.RefreshActivity)
	})
}

// Shutdown stops both loops and waits for an in-flight tick to finish.
func (s *Service) Shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
	})
	s.wg.Wait()
}

func (s *Service) loop(name string, interval time.Duration, refresh func(context.Context)) {
	defer s.wg.Done()

	logger := s.logger.With(slog.String("loop", name))
	tick := func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.RefreshTimeout)
		defer cancel()
		refresh(logging.WithLogger(ctx, logger))
	}

	tick()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			tick()
		case <-s.shutdownChan:
			logging.LogOperation(logger, "shutting_down_dashboard_loop")
			return
		}
	}
}

type predictionResult struct {
	itemID   int64
	arrivals []predict.Arrival
	err      error
}

// RefreshPredictions runs one prediction tick: one task per tracked item,
// plus one vehicle refresh, at most MaxConcurrent at a time. A failing task
// only degrades its own card.
func (s *Service) RefreshPredictions(ctx context.Context) {
	items := s.items.List()
	results := make([]predictionResult, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxConcurrent)

	g.Go(func() error {
		if _, err := s.realtime.Vehicles(gctx); err != nil {
			logging.LogError(s.logger, "vehicle refresh failed", err)
		}
		return nil
	})
	for i, item := range items {
		g.Go(func() error {
			results[i] = s.predictItem(gctx, item)
			return nil
		})
	}
	_ = g.Wait()

	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retainLocked(items)
	for _, r := range results {
		state := s.stateLocked(r.itemID)
		state.prediction = r.arrivals
		state.predictionText, state.urgent = s.describe(r.arrivals)
		state.updatedAt = now
	}
}

func (s *Service) predictItem(ctx context.Context, item tracker.TrackedItem) (result predictionResult) {
	result.itemID = item.ID
	defer func() {
		if s.observer != nil {
			s.observer.ObserveCard("prediction", result.err)
		}
	}()

	trips, err := s.realtime.TripUpdates(ctx)
	if err != nil {
		logging.LogError(s.logger, "Error updating card", err,
			slog.Int64("item_id", item.ID),
			slog.String("stop_id", item.StopID))
		result.err = err
		result.arrivals = []predict.Arrival{}
		return result
	}
	result.arrivals = s.predictor.PredictRoute(item.StopID, item.Route, trips, s.clock.Now())
	return result
}

func (s *Service) describe(arrivals []predict.Arrival) (string, bool) {
	if len(arrivals) == 0 {
		return NoArrivalsText, false
	}
	next := arrivals[0]
	return fmt.Sprintf("%d min (%s - Route %s)", next.Minutes, next.Time, next.RouteID),
		next.Minutes <= s.config.UrgentMinutes
}

// RefreshActivity runs one activity tick. The log is downloaded once per
// tick; when the download fails the previous snapshot keeps being used.
// Card freshness is classified against the snapshot when cards are read, so
// ages keep counting between ticks.
func (s *Service) RefreshActivity(ctx context.Context) {
	if s.activity == nil {
		return
	}
	entries, err := s.activity.Load(ctx)
	if s.observer != nil {
		s.observer.ObserveCard("activity", err)
	}
	if err != nil {
		logging.LogError(s.logger, "Error fetching activity log", err)
		return
	}

	snapshot := activity.NewSnapshot(entries, s.clock.Now())
	s.mu.Lock()
	s.snapshot = snapshot
	s.mu.Unlock()
	logging.LogOperation(s.logger, "activity_log_refreshed",
		slog.Int("entries", len(entries)),
		slog.Int("routes", snapshot.Routes()))
}

// RouteStatus classifies any route against the latest activity snapshot.
func (s *Service) RouteStatus(route string) activity.Status {
	s.mu.RLock()
	snapshot := s.snapshot
	s.mu.RUnlock()
	return snapshot.Status(route, s.clock.Now(), s.config.Threshold)
}

// Cards returns one card per tracked item in registry order. Items without a
// prediction yet carry the placeholders; freshness is classified now.
func (s *Service) Cards() []Card {
	items := s.items.List()
	now := s.clock.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	cards := make([]Card, 0, len(items))
	for _, item := range items {
		card := Card{
			Item:           item,
			Prediction:     []predict.Arrival{},
			PredictionText: NoArrivalsText,
			Freshness:      toFreshness(s.snapshot.Status(item.Route, now, s.config.Threshold)),
		}
		if state, ok := s.cards[item.ID]; ok {
			if state.prediction != nil {
				card.Prediction = state.prediction
			}
			if state.predictionText != "" {
				card.PredictionText = state.predictionText
			}
			card.Urgent = state.urgent
			card.UpdatedAt = state.updatedAt
		}
		cards = append(cards, card)
	}
	return cards
}

// stateLocked returns the card state for id, creating it. Caller holds s.mu.
func (s *Service) stateLocked(id int64) *cardState {
	state, ok := s.cards[id]
	if !ok {
		state = &cardState{}
		s.cards[id] = state
	}
	return state
}

// retainLocked forgets cards of items no longer tracked. Caller holds s.mu.
func (s *Service) retainLocked(items []tracker.TrackedItem) {
	keep := make(map[int64]bool, len(items))
	for _, item := range items {
		keep[item.ID] = true
	}
	for id := range s.cards {
		if !keep[id] {
			delete(s.cards, id)
		}
	}
}

func toFreshness(status activity.Status) Freshness {
	return Freshness{
		Status:     status.Kind,
		AgeMinutes: status.AgeMinutes,
		Text:       status.Text(),
	}
}
