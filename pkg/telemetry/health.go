package telemetry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// statusRank defines precedence; higher number = worse.
func statusRank(s Status) int {
	switch s {
	case StatusUnhealthy:
		return 3
	case StatusDegraded:
		return 2
	default:
		return 1
	}
}

// CheckFunc probes one subsystem. Returning an error marks the component
// unhealthy; a non-nil ComponentStatus lets the check report degraded states
// with detail.
type CheckFunc func(ctx context.Context) ComponentStatus

// ComponentStatus describes a single subsystem check result.
type ComponentStatus struct {
	Name      string            `json:"name"`
	Status    Status            `json:"status"`
	CheckedAt time.Time         `json:"checked_at"`
	Message   string            `json:"message,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// Healthy is a convenience result for a passing check.
func Healthy() ComponentStatus { return ComponentStatus{Status: StatusHealthy} }

// Degraded is a convenience result for a limping check.
func Degraded(msg string) ComponentStatus {
	return ComponentStatus{Status: StatusDegraded, Message: msg}
}

// Unhealthy is a convenience result for a failing check.
func Unhealthy(msg string) ComponentStatus {
	return ComponentStatus{Status: StatusUnhealthy, Message: msg}
}

// HealthReport aggregates every component into a worst-of overall status.
type HealthReport struct {
	Service     string            `json:"service"`
	GeneratedAt time.Time         `json:"generated_at"`
	Overall     Status            `json:"overall"`
	Components  []ComponentStatus `json:"components"`
}

// HealthChecker runs registered component checks and aggregates results.
// A panicking check is recovered and reported as unhealthy rather than
// taking the health endpoint down with it.
type HealthChecker struct {
	mu      sync.Mutex
	service string
	checks  map[string]CheckFunc
	now     func() time.Time
}

// NewHealthChecker returns an empty checker for a named service.
func NewHealthChecker(service string) *HealthChecker {
	return &HealthChecker{
		service: strings.TrimSpace(service),
		checks:  make(map[string]CheckFunc),
		now:     time.Now,
	}
}

// Register adds or replaces a named check.
func (h *HealthChecker) Register(name string, fn CheckFunc) {
	name = strings.TrimSpace(name)
	if name == "" || fn == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = fn
}

// Check runs every registered check and returns the aggregated report.
// Components are sorted by name so the report is deterministic.
func (h *HealthChecker) Check(ctx context.Context) HealthReport {
	h.mu.Lock()
	names := make([]string, 0, len(h.checks))
	for n := range h.checks {
		names = append(names, n)
	}
	fns := make(map[string]CheckFunc, len(h.checks))
	for n, fn := range h.checks {
		fns[n] = fn
	}
	now := h.now
	h.mu.Unlock()
	sort.Strings(names)

	report := HealthReport{
		Service:     h.service,
		GeneratedAt: now().UTC(),
		Overall:     StatusHealthy,
		Components:  make([]ComponentStatus, 0, len(names)),
	}
	for _, name := range names {
		cs := runCheck(ctx, fns[name])
		cs.Name = name
		cs.CheckedAt = now().UTC()
		if cs.Status == "" {
			cs.Status = StatusHealthy
		}
		if statusRank(cs.Status) > statusRank(report.Overall) {
			report.Overall = cs.Status
		}
		report.Components = append(report.Components, cs)
	}
	return report
}

func runCheck(ctx context.Context, fn CheckFunc) (cs ComponentStatus) {
	defer func() {
		if r := recover(); r != nil {
			cs = Unhealthy(fmt.Sprintf("check panicked: %v", r))
		}
	}()
	return fn(ctx)
}

// SetClock overrides the timestamp source. Test hook.
func (h *HealthChecker) SetClock(now func() time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = now
}
