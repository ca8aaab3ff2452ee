package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsHandlerServesRegisteredCollectorOutput(t *testing.T) {
	registry := NewMetricsRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "dipeo_test_total", Help: "test counter"})
	registry.MustRegister(counter)
	counter.Inc()

	handler := MetricsHandler(registry)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "dipeo_test_total 1") {
		t.Errorf("expected exposition output to include the counter, got %q", rec.Body.String())
	}
}
