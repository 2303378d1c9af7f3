// internal/monitoring/health.go
package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status   HealthStatus           `json:"status"`
	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Duration time.Duration          `json:"duration"`
}

// HealthCheck is a named check. An unhealthy critical check makes the
// whole process unhealthy; a non-critical one only degrades it.
type HealthCheck struct {
	Name      string
	Critical  bool
	Timeout   time.Duration
	CheckFunc func(ctx context.Context) HealthCheckResult
}

// SystemHealth is the /health response body
type SystemHealth struct {
	Status     HealthStatus                 `json:"status"`
	Timestamp  time.Time                    `json:"timestamp"`
	Version    string                       `json:"version,omitempty"`
	Uptime     string                       `json:"uptime"`
	Checks     map[string]HealthCheckResult `json:"checks,omitempty"`
	Goroutines int                          `json:"goroutines"`
	HeapAlloc  uint64                       `json:"heap_alloc_bytes"`
}

// HealthManager runs registered checks on demand
type HealthManager struct {
	mu      sync.RWMutex
	checks  map[string]*HealthCheck
	started time.Time
	version string
}

// NewHealthManager creates a health manager reporting version
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		checks:  make(map[string]*HealthCheck),
		started: time.Now(),
		version: version,
	}
}

// RegisterCheck adds or replaces a check
func (hm *HealthManager) RegisterCheck(check *HealthCheck) {
	if check.Timeout == 0 {
		check.Timeout = 5 * time.Second
	}
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checks[check.Name] = check
}

// GetHealth runs every check and aggregates the result
func (hm *HealthManager) GetHealth(ctx context.Context) SystemHealth {
	hm.mu.RLock()
	names := make([]string, 0, len(hm.checks))
	for name := range hm.checks {
		names = append(names, name)
	}
	checks := make([]*HealthCheck, 0, len(names))
	sort.Strings(names)
	for _, name := range names {
		checks = append(checks, hm.checks[name])
	}
	hm.mu.RUnlock()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	health := SystemHealth{
		Status:     HealthStatusHealthy,
		Timestamp:  time.Now(),
		Version:    hm.version,
		Uptime:     time.Since(hm.started).Round(time.Second).String(),
		Checks:     make(map[string]HealthCheckResult, len(checks)),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  m.HeapAlloc,
	}

	for _, check := range checks {
		res := runCheck(ctx, check)
		health.Checks[check.Name] = res

		switch res.Status {
		case HealthStatusUnhealthy:
			if check.Critical {
				health.Status = HealthStatusUnhealthy
			} else if health.Status == HealthStatusHealthy {
				health.Status = HealthStatusDegraded
			}
		case HealthStatusDegraded:
			if health.Status == HealthStatusHealthy {
				health.Status = HealthStatusDegraded
			}
		}
	}
	return health
}

func runCheck(ctx context.Context, check *HealthCheck) HealthCheckResult {
	ctx, cancel := context.WithTimeout(ctx, check.Timeout)
	defer cancel()

	start := time.Now()
	res := check.CheckFunc(ctx)
	res.Duration = time.Since(start)
	if res.Status == "" {
		res.Status = HealthStatusHealthy
	}
	return res
}

// HealthHandler serves the aggregated health. Unhealthy answers 503.
func (hm *HealthManager) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := hm.GetHealth(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if health.Status == HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(health)
	}
}
