package observability

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/blockstat/forensics/internal/backend"
	"github.com/blockstat/forensics/internal/store"
)

// ComponentStatus is the health of one dependency.
type ComponentStatus string

const (
	StatusHealthy   ComponentStatus = "healthy"
	StatusDegraded  ComponentStatus = "degraded"
	StatusUnhealthy ComponentStatus = "unhealthy"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) ComponentHealth

// ComponentHealth is the latest probe result for a dependency.
type ComponentHealth struct {
	Name        string          `json:"name"`
	Status      ComponentStatus `json:"status"`
	Message     string          `json:"message,omitempty"`
	LastChecked time.Time       `json:"last_checked"`
	Latency     time.Duration   `json:"latency_ms"`
	Details     map[string]any  `json:"details,omitempty"`
}

// SystemHealth aggregates all components; its status is the worst one.
type SystemHealth struct {
	Status     ComponentStatus            `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  time.Time                  `json:"ts"`
	Uptime     time.Duration              `json:"uptime"`
}

// HealthMonitor probes registered components on an interval and logs
// status transitions.
type HealthMonitor struct {
	mu        sync.RWMutex
	checks    map[string]HealthCheck
	results   map[string]ComponentHealth
	startTime time.Time
	interval  time.Duration
}

// NewHealthMonitor creates a monitor that probes every interval.
func NewHealthMonitor(interval time.Duration) *HealthMonitor {
	return &HealthMonitor{
		checks:    make(map[string]HealthCheck),
		results:   make(map[string]ComponentHealth),
		startTime: time.Now(),
		interval:  interval,
	}
}

// Register adds a named check.
func (m *HealthMonitor) Register(name string, check HealthCheck) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// Run probes until ctx is cancelled. It always returns nil so it can sit in
// an errgroup next to the server.
func (m *HealthMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.runChecks(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.runChecks(ctx)
		}
	}
}

// Check probes every component now and returns the aggregate.
func (m *HealthMonitor) Check(ctx context.Context) SystemHealth {
	m.runChecks(ctx)
	return m.Snapshot()
}

// Snapshot returns the last results without probing.
func (m *HealthMonitor) Snapshot() SystemHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	components := make(map[string]ComponentHealth, len(m.results))
	worst := StatusHealthy
	for name, h := range m.results {
		components[name] = h
		if statusSeverity(h.Status) > statusSeverity(worst) {
			worst = h.Status
		}
	}
	return SystemHealth{
		Status:     worst,
		Components: components,
		Timestamp:  time.Now(),
		Uptime:     time.Since(m.startTime),
	}
}

func (m *HealthMonitor) runChecks(ctx context.Context) {
	m.mu.RLock()
	checks := make(map[string]HealthCheck, len(m.checks))
	for name, fn := range m.checks {
		checks[name] = fn
	}
	m.mu.RUnlock()

	fresh := make(map[string]ComponentHealth, len(checks))
	for name, fn := range checks {
		start := time.Now()
		result := fn(ctx)
		result.Name = name
		result.LastChecked = time.Now()
		result.Latency = time.Since(start)
		fresh[name] = result
	}

	m.mu.Lock()
	old := m.results
	m.results = fresh
	m.mu.Unlock()

	for name, cur := range fresh {
		if prev, ok := old[name]; ok && prev.Status == cur.Status {
			continue
		}
		evt := log.Info()
		switch cur.Status {
		case StatusUnhealthy:
			evt = log.Error()
		case StatusDegraded:
			evt = log.Warn()
		}
		evt.Str("component", name).Str("status", string(cur.Status)).Str("message", cur.Message).
			Msg("health: status changed")
	}
}

func statusSeverity(s ComponentStatus) int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	case StatusUnhealthy:
		return 2
	default:
		return -1
	}
}

// ---------------------------------------------------------------------------
// Checks
// ---------------------------------------------------------------------------

// BackendPinger is the part of the backend client the check needs.
type BackendPinger interface {
	Health(ctx context.Context) (*backend.Health, error)
}

// BackendCheck reports the analysis backend as degraded, not unhealthy,
// when unreachable: analyses still succeed on synthetic data.
func BackendCheck(p BackendPinger) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		h, err := p.Health(ctx)
		if err != nil {
			return ComponentHealth{Status: StatusDegraded, Message: err.Error()}
		}
		return ComponentHealth{
			Status:  StatusHealthy,
			Details: map[string]any{"service": h.Service, "version": h.Version, "status": h.Status},
		}
	}
}

// StoreCheck reads a sentinel key; a miss counts as healthy.
func StoreCheck(s store.Store) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		_, err := s.Get(ctx, "healthcheck")
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return ComponentHealth{Status: StatusUnhealthy, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusHealthy}
	}
}
