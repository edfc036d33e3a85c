package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the producer-facing routes plus /metrics.
func NewRouter(h *Handlers, metricsRegistry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Post("/jobs", h.AddJob)
	r.Post("/jobs/bulk", h.AddBulkJobs)
	r.Post("/jobs/retry-failed", h.RetryFailed)
	r.Get("/jobs", h.GetJobs)
	r.Delete("/jobs/{id}", h.RemoveJob)
	r.Post("/catalog/{brand}", h.ScheduleCatalog)
	r.Get("/stats", h.GetStats)
	r.Get("/health", h.Health)

	if metricsRegistry != nil {
		r.Method(http.MethodGet, "/metrics",
			promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}))
	}
	return r
}
