// Package clock abstracts the current time so predictions, freshness checks
// and tracker ids can be computed against a controlled instant in tests and
// when replaying captured feeds.
package clock

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Clock reports the current time.
type Clock interface {
	Now() time.Time
	NowUnixMilli() int64
}

// RealClock reads the system time.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

func (RealClock) NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}

// MockClock is a settable, goroutine-safe Clock.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock returns a MockClock stopped at t.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *MockClock) NowUnixMilli() int64 {
	return m.Now().UnixMilli()
}

// Set moves the clock to t.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Advance moves the clock by d, which may be negative.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// pinnedLayouts are tried after RFC3339 and interpreted in the configured zone.
var pinnedLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParsePinned parses a configured replay instant. RFC3339 values carry their
// own offset; the other accepted layouts are read in loc.
func ParsePinned(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if loc == nil {
		return time.Time{}, fmt.Errorf("unable to parse pinned time %q: not RFC3339 and no time zone configured", value)
	}
	for _, layout := range pinnedLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse pinned time %q: expected RFC3339, YYYY-MM-DD HH:MM:SS, YYYY-MM-DDTHH:MM:SS or YYYY-MM-DD", value)
}

// New returns RealClock when pinned is empty and a MockClock stopped at the
// parsed instant otherwise.
func New(pinned string, loc *time.Location) (Clock, error) {
	if strings.TrimSpace(pinned) == "" {
		return RealClock{}, nil
	}
	t, err := ParsePinned(pinned, loc)
	if err != nil {
		return nil, err
	}
	return NewMockClock(t), nil
}
