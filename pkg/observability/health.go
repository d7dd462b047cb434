package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// DependencyCheck probes one dependency (object store reachability, local
// cache usability) and returns an error when it is unavailable.
type DependencyCheck func(ctx context.Context) error

// HealthChecker aggregates dependency probes for the readiness endpoint
type HealthChecker struct {
	checks map[string]DependencyCheck
}

// NewHealthChecker creates a health checker with the given named probes
func NewHealthChecker(checks map[string]DependencyCheck) *HealthChecker {
	if checks == nil {
		checks = make(map[string]DependencyCheck)
	}
	return &HealthChecker{checks: checks}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Liveness returns a simple liveness probe (always 200 while the server runs)
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness runs every dependency probe and reports aggregate health
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(status)
}

// Check performs all dependency probes
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Dependencies: make(map[string]DependencyStatus),
	}

	for name, check := range h.checks {
		start := time.Now()
		dep := DependencyStatus{Status: StatusHealthy, Timestamp: start}
		if err := check(ctx); err != nil {
			dep.Status = StatusUnhealthy
			dep.Message = err.Error()
			status.Status = StatusUnhealthy
		}
		dep.Latency = time.Since(start)
		status.Dependencies[name] = dep
	}

	return status
}

// NewHealthRouter builds the router serving health probes and the Prometheus
// metrics endpoint. It is intended for a dedicated operational port.
func NewHealthRouter(checker *HealthChecker, registry *prometheus.Registry) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", checker.Readiness).Methods(http.MethodGet)
	r.HandleFunc("/health/live", checker.Liveness).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", checker.Readiness).Methods(http.MethodGet)
	if registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return r
}
