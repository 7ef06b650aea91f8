// Package appconf loads and validates the service configuration.
package appconf

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Environment int

const (
	Development Environment = iota
	Test
	Production
)

// EnvFlagToEnvironment maps the -env flag / config value onto an Environment.
// Unknown values fall back to Development.
func EnvFlagToEnvironment(env string) Environment {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod":
		return Production
	case "test":
		return Test
	default:
		return Development
	}
}

func (e Environment) String() string {
	switch e {
	case Production:
		return "production"
	case Test:
		return "test"
	default:
		return "development"
	}
}

func (e *Environment) UnmarshalYAML(node *yaml.Node) error {
	*e = EnvFlagToEnvironment(node.Value)
	return nil
}

type ServerConfig struct {
	Port      int      `yaml:"port" validate:"gte=0,lte=65535"`
	RateLimit int      `yaml:"rateLimit" validate:"gte=0"`
	APIKeys   []string `yaml:"apiKeys"`
	PublicDir string   `yaml:"publicDir"`
	Verbose   bool     `yaml:"verbose"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

type FeedsConfig struct {
	TripUpdatesURL      string            `yaml:"tripUpdatesURL" validate:"required,url"`
	VehiclePositionsURL string            `yaml:"vehiclePositionsURL" validate:"required,url"`
	Headers             map[string]string `yaml:"headers"`
	Timeout             time.Duration     `yaml:"timeout" validate:"gte=0"`
	CacheTTL            time.Duration     `yaml:"cacheTTL" validate:"gte=0"`
}

type ActivityConfig struct {
	LogURL           string        `yaml:"logURL" validate:"omitempty,url"`
	ThresholdMinutes int           `yaml:"thresholdMinutes" validate:"gte=0"`
	RefreshInterval  time.Duration `yaml:"refreshInterval" validate:"gte=0"`
}

type DashboardConfig struct {
	PredictionInterval time.Duration `yaml:"predictionInterval" validate:"gte=0"`
	MaxConcurrent      int           `yaml:"maxConcurrent" validate:"gte=0"`
	PredictionLimit    int           `yaml:"predictionLimit" validate:"gte=0"`
	UrgentMinutes      int           `yaml:"urgentMinutes" validate:"gte=0"`
	TimeZone           string        `yaml:"timeZone"`
}

type StopsConfig struct {
	File       string `yaml:"file"`
	StaticGTFS string `yaml:"staticGTFS"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" validate:"omitempty,oneof=sqlite postgres"`
	DSN    string `yaml:"dsn"`
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subjectPrefix"`
}

type TrailConfig struct {
	MaxPoints int           `yaml:"maxPoints" validate:"gte=0"`
	MaxAge    time.Duration `yaml:"maxAge" validate:"gte=0"`
}

type ClockConfig struct {
	// Pinned freezes the service clock at this instant, for replaying
	// captured feeds.
	Pinned string `yaml:"pinned"`
}

// Config is the whole service configuration.
type Config struct {
	Env       Environment     `yaml:"env"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Feeds     FeedsConfig     `yaml:"feeds"`
	Activity  ActivityConfig  `yaml:"activity"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Stops     StopsConfig     `yaml:"stops"`
	Storage   StorageConfig   `yaml:"storage"`
	NATS      NATSConfig      `yaml:"nats"`
	Trail     TrailConfig     `yaml:"trail"`
	Clock     ClockConfig     `yaml:"clock"`
}

// Default returns a configuration with every optional knob set. Feed URLs
// are left empty and must be supplied.
func Default() Config {
	return Config{
		Env: Development,
		Server: ServerConfig{
			Port:      4000,
			RateLimit: 100,
			PublicDir: "public",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Feeds: FeedsConfig{
			Timeout:  10 * time.Second,
			CacheTTL: 15 * time.Second,
		},
		Activity: ActivityConfig{
			ThresholdMinutes: 10,
			RefreshInterval:  60 * time.Second,
		},
		Dashboard: DashboardConfig{
			PredictionInterval: 30 * time.Second,
			MaxConcurrent:      4,
			PredictionLimit:    3,
			UrgentMinutes:      5,
			TimeZone:           "America/Denver",
		},
		Storage: StorageConfig{Driver: "sqlite", DSN: "stoptracker.db"},
		NATS:    NATSConfig{SubjectPrefix: "vehicles"},
		Trail: TrailConfig{
			MaxPoints: 20,
			MaxAge:    15 * time.Minute,
		},
	}
}

// LoadFromFile reads a YAML file over Default(), applies environment
// overrides (after loading .env when present) and validates the result.
func LoadFromFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over Default(), applies environment overrides and
// validates.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	// .env is optional.
	_ = godotenv.Load()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides secrets and deployment-specific values from the
// environment. lookup is normally os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("API_KEYS"); ok && v != "" {
		c.Server.APIKeys = ParseAPIKeys(v)
	}
	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		c.Storage.Driver = "postgres"
		c.Storage.DSN = v
	}
	if v, ok := lookup("NATS_URL"); ok {
		c.NATS.URL = v
	}
	key, hasKey := lookup("FEED_AUTH_HEADER_KEY")
	value, hasValue := lookup("FEED_AUTH_HEADER_VALUE")
	if hasKey && hasValue && key != "" {
		if c.Feeds.Headers == nil {
			c.Feeds.Headers = map[string]string{}
		}
		c.Feeds.Headers[key] = value
	}
	return nil
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		return errors.New("invalid configuration: postgres storage requires storage.dsn or DATABASE_URL")
	}
	if c.Dashboard.TimeZone != "" {
		if _, err := time.LoadLocation(c.Dashboard.TimeZone); err != nil {
			return fmt.Errorf("invalid configuration: dashboard.timeZone: %w", err)
		}
	}
	return nil
}

// Location returns the configured display time zone, UTC when unset.
func (c *Config) Location() *time.Location {
	if c.Dashboard.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Dashboard.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseAPIKeys splits a comma separated key list, trimming spaces.
func ParseAPIKeys(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	keys := make([]string, len(parts))
	for i, p := range parts {
		keys[i] = strings.TrimSpace(p)
	}
	return keys
}
