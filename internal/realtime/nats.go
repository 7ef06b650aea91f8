package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"
	"stoptracker.transitpulse.org/internal/feed"
	"stoptracker.transitpulse.org/internal/logging"
)

// Publisher fans decoded vehicle snapshots out to other consumers.
type Publisher interface {
	PublishVehicles(ctx context.Context, vehicles []feed.VehicleReport) error
}

// NATSPublisher publishes every vehicle report as JSON on
// <prefix>.<route>.<vehicle>.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	logger *slog.Logger
}

// NewNATSPublisher connects to url. prefix defaults to "vehicles".
func NewNATSPublisher(url, prefix string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "nats_publisher"))
	if prefix == "" {
		prefix = "vehicles"
	}

	nc, err := nats.Connect(url,
		nats.Name("stoptracker"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logging.LogError(logger, "nats disconnected", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logging.LogOperation(logger, "nats_reconnected", slog.String("url", c.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logging.LogOperation(logger, "nats_closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logger: logger}, nil
}

// PublishVehicles publishes one message per vehicle and returns the joined
// publish errors.
func (p *NATSPublisher) PublishVehicles(ctx context.Context, vehicles []feed.VehicleReport) error {
	var errs []error
	for _, v := range vehicles {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		b, err := json.Marshal(v)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := p.nc.Publish(vehicleSubject(p.prefix, v), b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	err := p.nc.Drain()
	p.nc.Close()
	return err
}

func vehicleSubject(prefix string, v feed.VehicleReport) string {
	return prefix + "." + subjectToken(v.RouteID) + "." + subjectToken(v.ID)
}

// subjectToken makes s usable as a single NATS subject token.
func subjectToken(s string) string {
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(strings.TrimSpace(s))
	if s == "" {
		return "_"
	}
	return s
}
