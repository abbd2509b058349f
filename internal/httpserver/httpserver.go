// Package httpserver exposes a small read-only admin surface over the
// broker: health, Prometheus metrics, and per-queue size inspection.
package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/taskflowio/ltq/internal/adapter/observability"
	"github.com/taskflowio/ltq/internal/broker"
)

// Server is the admin HTTP surface. It holds no business logic of its own —
// every handler delegates to the broker; GET /queues/{task}/size is the HTTP
// equivalent of the CLI's "size" subcommand.
type Server struct {
	Broker broker.Broker
}

// Router builds the chi handler: CORS permissive by default, IP rate
// limiting on every route to protect the broker from inspection-endpoint
// abuse.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))
	r.Use(httprate.LimitByIP(120, time.Minute))
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "admin")
	})

	r.Get("/healthz", s.healthzHandler())
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/queues/{task}/size", s.queueSizeHandler())

	return r
}

func (s *Server) healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func (s *Server) queueSizeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		task := chi.URLParam(r, "task")
		if task == "" {
			http.Error(w, "task name required", http.StatusBadRequest)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		n, err := s.Broker.Len(ctx, task)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		observability.SetQueueReadyDepth(task, float64(n))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"task": task, "size": n})
	}
}
