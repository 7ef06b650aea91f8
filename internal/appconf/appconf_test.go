package appconf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
env: production
server:
  port: 8080
  apiKeys: [key1, key2]
feeds:
  tripUpdatesURL: https://feeds.example.com/TripUpdate.pb
  vehiclePositionsURL: https://feeds.example.com/VehiclePosition.pb
  cacheTTL: 5s
activity:
  logURL: https://docs.example.com/export?format=csv
  thresholdMinutes: 15
dashboard:
  predictionInterval: 45s
`

const feedsYAML = `
feeds:
  tripUpdatesURL: https://feeds.example.com/TripUpdate.pb
  vehiclePositionsURL: https://feeds.example.com/VehiclePosition.pb
`

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PORT", "API_KEYS", "DATABASE_URL", "NATS_URL", "FEED_AUTH_HEADER_KEY", "FEED_AUTH_HEADER_VALUE"} {
		t.Setenv(k, "")
	}
}

func TestParse_AppliesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, Production, cfg.Env)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"key1", "key2"}, cfg.Server.APIKeys)
	assert.Equal(t, 5*time.Second, cfg.Feeds.CacheTTL)
	assert.Equal(t, 10*time.Second, cfg.Feeds.Timeout, "default kept")
	assert.Equal(t, 15, cfg.Activity.ThresholdMinutes)
	assert.Equal(t, 60*time.Second, cfg.Activity.RefreshInterval)
	assert.Equal(t, 45*time.Second, cfg.Dashboard.PredictionInterval)
	assert.Equal(t, 3, cfg.Dashboard.PredictionLimit)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "America/Denver", cfg.Location().String())
}

func TestParse_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://tracker@localhost/tracker")
	t.Setenv("FEED_AUTH_HEADER_KEY", "Authorization")
	t.Setenv("FEED_AUTH_HEADER_VALUE", "Bearer abc")

	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "postgres://tracker@localhost/tracker", cfg.Storage.DSN)
	assert.Equal(t, "Bearer abc", cfg.Feeds.Headers["Authorization"])
}

func TestParse_Invalid(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing feeds", "server: {port: 1}\n", "invalid configuration"},
		{"bad url", "feeds: {tripUpdatesURL: nope, vehiclePositionsURL: https://x.example.com/v.pb}\n", "invalid configuration"},
		{"bad driver", validYAML + "storage: {driver: redis}\n", "invalid configuration"},
		{"postgres without dsn", validYAML + "storage: {driver: postgres, dsn: \"\"}\n", "postgres storage requires"},
		{"bad zone", feedsYAML + "dashboard: {timeZone: Mars/Olympus}\n", "timeZone"},
		{"malformed", "server: [", "failed to parse YAML config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to stat config file")
}

func TestEnvFlagToEnvironment(t *testing.T) {
	assert.Equal(t, Production, EnvFlagToEnvironment("Production"))
	assert.Equal(t, Production, EnvFlagToEnvironment("prod"))
	assert.Equal(t, Test, EnvFlagToEnvironment("test"))
	assert.Equal(t, Development, EnvFlagToEnvironment(""))
	assert.Equal(t, Development, EnvFlagToEnvironment("staging"))
	assert.Equal(t, "production", Production.String())
}

func TestParseAPIKeys(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"test-key", []string{"test-key"}},
		{" key1 , key2 , key3 ", []string{"key1", "key2", "key3"}},
		{"", []string{}},
		{"key1,", []string{"key1", ""}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, ParseAPIKeys(tt.input), tt.input)
	}
}
