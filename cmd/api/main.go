package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"stoptracker.transitpulse.org/internal/appconf"
	"stoptracker.transitpulse.org/internal/logging"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	port := flag.Int("port", 0, "API server port, overrides the configuration")
	env := flag.String("env", "", "environment (development|test|production), overrides the configuration")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *port, *env)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	coreApp, err := BuildApplication(*cfg)
	if err != nil {
		logging.LogError(slog.Default(), "failed to build application", err)
		os.Exit(1)
	}

	srv, api := CreateServer(coreApp, *cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx, srv, coreApp, api); err != nil {
		logging.LogError(coreApp.Logger, "server exited with error", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig(path string, port int, env string) (*appconf.Config, error) {
	cfg, err := appconf.LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if env != "" {
		cfg.Env = appconf.EnvFlagToEnvironment(env)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
