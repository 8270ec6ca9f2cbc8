// Package health probes the storefront's dependencies and publishes the
// result over the gRPC health protocol and GET /health.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const ServiceName = "storefront"

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusError    = "error"
)

// Probe returns nil when the dependency is usable.
type Probe func(ctx context.Context) error

type Check struct {
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Critical  bool      `json:"critical"`
	CheckedAt time.Time `json:"checked_at"`
}

type Report struct {
	Status string           `json:"status"`
	Checks map[string]Check `json:"checks"`
}

type probe struct {
	name     string
	fn       Probe
	critical bool
}

// Monitor runs the registered probes on an interval. A failing critical
// probe marks the service NOT_SERVING; a failing optional one only degrades
// the report.
type Monitor struct {
	server  *health.Server
	timeout time.Duration
	log     *zap.Logger
	now     func() time.Time

	mu     sync.RWMutex
	probes []probe
	checks map[string]Check
}

func NewMonitor(server *health.Server, timeout time.Duration, log *zap.Logger) *Monitor {
	return &Monitor{
		server:  server,
		timeout: timeout,
		log:     log.Named("health"),
		now:     time.Now,
		checks:  make(map[string]Check),
	}
}

func (m *Monitor) Register(name string, critical bool, fn Probe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes = append(m.probes, probe{name: name, fn: fn, critical: critical})
}

func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	m.CheckNow(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.CheckNow(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// CheckNow runs every probe once and publishes the result.
func (m *Monitor) CheckNow(ctx context.Context) Report {
	m.mu.RLock()
	probes := append([]probe(nil), m.probes...)
	m.mu.RUnlock()

	checks := make(map[string]Check, len(probes))
	for _, p := range probes {
		pctx, cancel := context.WithTimeout(ctx, m.timeout)
		err := p.fn(pctx)
		cancel()

		c := Check{Status: StatusOK, Critical: p.critical, CheckedAt: m.now().UTC()}
		if err != nil {
			c.Status = StatusError
			c.Error = err.Error()
			m.log.Warn("dependency check failed", zap.String("dependency", p.name), zap.Error(err))
		}
		checks[p.name] = c
	}

	m.mu.Lock()
	m.checks = checks
	m.mu.Unlock()

	report := Report{Status: deriveStatus(checks), Checks: checks}
	serving := healthpb.HealthCheckResponse_SERVING
	if report.Status == StatusError {
		serving = healthpb.HealthCheckResponse_NOT_SERVING
	}
	if m.server != nil {
		m.server.SetServingStatus("", serving)
		m.server.SetServingStatus(ServiceName, serving)
	}
	return report
}

// Report returns the result of the last check round.
func (m *Monitor) Report() Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	checks := make(map[string]Check, len(m.checks))
	for k, v := range m.checks {
		checks[k] = v
	}
	return Report{Status: deriveStatus(checks), Checks: checks}
}

// Names lists the registered probes in order.
func (m *Monitor) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.probes))
	for _, p := range m.probes {
		names = append(names, p.name)
	}
	sort.Strings(names)
	return names
}

func deriveStatus(checks map[string]Check) string {
	status := StatusOK
	for _, c := range checks {
		if c.Status == StatusOK {
			continue
		}
		if c.Critical {
			return StatusError
		}
		status = StatusDegraded
	}
	return status
}
