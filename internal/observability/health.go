package observability

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// HealthChecker manages liveness and readiness state.
// Readiness requires the ready flag plus every registered dependency to be up.
type HealthChecker struct {
	ready     atomic.Bool
	startTime time.Time

	mu   sync.RWMutex
	deps map[string]bool
}

// NewHealthChecker creates a new health checker.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		startTime: time.Now(),
		deps:      make(map[string]bool),
	}
}

// SetReady marks the service as ready to accept traffic.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// SetDependency records whether a named dependency (postgres, nats, redis)
// is reachable.
func (h *HealthChecker) SetDependency(name string, up bool) {
	h.mu.Lock()
	h.deps[name] = up
	h.mu.Unlock()
}

// IsReady returns whether the service is ready.
func (h *HealthChecker) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, up := range h.deps {
		if !up {
			return false
		}
	}
	return true
}

func (h *HealthChecker) dependencyStatus() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.deps))
	for name := range h.deps {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make(map[string]string, len(names))
	for _, name := range names {
		if h.deps[name] {
			out[name] = "up"
		} else {
			out[name] = "down"
		}
	}
	return out
}

// LivenessHandler returns HTTP 200 while the process is alive.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "alive",
		"uptime": time.Since(h.startTime).String(),
	})
}

// ReadinessHandler returns HTTP 200 once replay is done and dependencies
// are up, 503 otherwise.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	status, code := "ready", http.StatusOK
	if !h.IsReady() {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":       status,
		"dependencies": h.dependencyStatus(),
	})
}
