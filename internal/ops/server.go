package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chainsight-ai/chainsight-backend/pkg/logger"
)

const readinessTimeout = 5 * time.Second

// Pinger reports whether one backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NamedPinger pairs a dependency with the name reported in readiness output.
type NamedPinger struct {
	Name   string
	Pinger Pinger
}

// NewHandler builds the operational endpoint router: liveness, readiness, and
// Prometheus metrics. Readiness fails when any registered dependency does.
func NewHandler(logg *logger.Logger, gatherer prometheus.Gatherer, deps ...NamedPinger) http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		status := http.StatusOK
		checks := make(map[string]string, len(deps))
		for _, dep := range deps {
			if dep.Pinger == nil {
				continue
			}
			if err := dep.Pinger.Ping(ctx); err != nil {
				logg.Error(ctx, "readiness check failed for "+dep.Name, err)
				checks[dep.Name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			checks[dep.Name] = "ok"
		}
		writeJSON(w, status, checks)
	})

	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return router
}

// Serve runs the ops server until the context is canceled, then shuts it down
// gracefully.
func Serve(ctx context.Context, port string, handler http.Handler, logg *logger.Logger) error {
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "ops server shutdown", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
