package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"credential-lifecycle/internal/platform/logging"
)

// Pinger is a store that can report readiness (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger (e.g. a Redis or Mongo ping).
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

const pingTimeout = 2 * time.Second

// Monitor drives the standard grpc.health.v1 server from store pings. With no
// pingers registered every service reports SERVING.
type Monitor struct {
	server   *health.Server
	services []string
	log      *slog.Logger

	mu      sync.Mutex
	pingers map[string]Pinger
}

// NewMonitor returns a Monitor that updates srv for the overall ("") status and each
// of services.
func NewMonitor(srv *health.Server, log *slog.Logger, services ...string) *Monitor {
	return &Monitor{
		server:   srv,
		services: append([]string{""}, services...),
		log:      logging.OrDefault(log),
		pingers:  make(map[string]Pinger),
	}
}

// Add registers a named store check. A nil pinger is ignored.
func (m *Monitor) Add(name string, p Pinger) {
	if p == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingers[name] = p
}

// Check pings every store and sets the serving status. It returns the joined ping errors.
func (m *Monitor) Check(ctx context.Context) error {
	m.mu.Lock()
	names := make([]string, 0, len(m.pingers))
	for name := range m.pingers {
		names = append(names, name)
	}
	pingers := make(map[string]Pinger, len(m.pingers))
	for k, v := range m.pingers {
		pingers[k] = v
	}
	m.mu.Unlock()
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := pingers[name].PingContext(pctx)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	err := errors.Join(errs...)

	status := healthpb.HealthCheckResponse_SERVING
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		m.log.WarnContext(ctx, "health: store check failed", "error", err)
	}
	for _, svc := range m.services {
		m.server.SetServingStatus(svc, status)
	}
	return err
}

// Run checks immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	_ = m.Check(ctx)
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_ = m.Check(ctx)
		}
	}
}
