package ops

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chainsight-ai/chainsight-backend/pkg/logger"
)

type stubPinger struct {
	err error
}

func (s *stubPinger) Ping(context.Context) error {
	return s.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func TestHealthzAlwaysOK(t *testing.T) {
	handler := NewHandler(testLogger(), prometheus.NewRegistry())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestReadyzReportsHealthyDeps(t *testing.T) {
	handler := NewHandler(testLogger(), prometheus.NewRegistry(),
		NamedPinger{Name: "postgres", Pinger: &stubPinger{}},
		NamedPinger{Name: "redis", Pinger: &stubPinger{}},
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("readyz status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestReadyzFailsWhenDependencyDown(t *testing.T) {
	handler := NewHandler(testLogger(), prometheus.NewRegistry(),
		NamedPinger{Name: "postgres", Pinger: &stubPinger{}},
		NamedPinger{Name: "bigquery", Pinger: &stubPinger{err: errors.New("dataset missing")}},
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Inc()

	handler := NewHandler(testLogger(), registry)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want %d", rec.Code, http.StatusOK)
	}
	if body := rec.Body.String(); !strings.Contains(body, "test_counter_total") {
		t.Fatalf("metrics output missing registered counter: %s", body)
	}
}
