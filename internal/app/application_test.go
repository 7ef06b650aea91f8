package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"stoptracker.transitpulse.org/internal/metrics"
	"stoptracker.transitpulse.org/internal/storage"
)

type closeCounter struct{ closed int }

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func TestShutdown_EmptyApplication(t *testing.T) {
	assert.NotPanics(t, (&Application{}).Shutdown)
}

func TestShutdown_ReleasesResources(t *testing.T) {
	store, err := storage.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	m := metrics.New()
	m.StartDBStatsCollector(store.DB, time.Minute)
	publisher := &closeCounter{}

	app := &Application{Store: store, Metrics: m, Publisher: publisher}
	app.Shutdown()

	assert.Equal(t, 1, publisher.closed)
	assert.Error(t, store.Ping(context.Background()), "store is closed")
}
