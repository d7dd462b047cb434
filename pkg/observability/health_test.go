package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiveness(t *testing.T) {
	router := NewHealthRouter(NewHealthChecker(nil), nil)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, StatusHealthy, body["status"])
}

func TestReadinessHealthy(t *testing.T) {
	checker := NewHealthChecker(map[string]DependencyCheck{
		"local_cache": func(ctx context.Context) error { return nil },
	})
	router := NewHealthRouter(checker, nil)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, StatusHealthy, status.Status)
	assert.Equal(t, StatusHealthy, status.Dependencies["local_cache"].Status)
}

func TestReadinessUnhealthyDependency(t *testing.T) {
	checker := NewHealthChecker(map[string]DependencyCheck{
		"object_store": func(ctx context.Context) error { return errors.New("connection refused") },
		"local_cache":  func(ctx context.Context) error { return nil },
	})
	router := NewHealthRouter(checker, nil)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, StatusUnhealthy, status.Dependencies["object_store"].Status)
	assert.Contains(t, status.Dependencies["object_store"].Message, "connection refused")
	assert.Equal(t, StatusHealthy, status.Dependencies["local_cache"].Status)
}

func TestMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.QueriesTotal.WithLabelValues("cached", "ok").Inc()

	router := NewHealthRouter(NewHealthChecker(nil), registry)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "curlens_queries_total")
}
