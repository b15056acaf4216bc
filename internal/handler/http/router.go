package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions toggles the optional parts of the HTTP surface
type RouterOptions struct {
	// Limiter guards /convert; nil disables rate limiting
	Limiter       RateLimiter
	EnableMetrics bool
}

// NewRouter wires the public routes
func NewRouter(h *Handler, logger *slog.Logger, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(
		RecoveryMiddleware(logger),
		RequestIDMiddleware,
		LoggingMiddleware(logger),
		CORSMiddleware,
	)
	if opts.EnableMetrics {
		r.Use(MetricsMiddleware)
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Get("/health/live", h.HealthCheck)
	r.Get("/r/{slug}", h.Visit)

	r.Group(func(r chi.Router) {
		if opts.Limiter != nil {
			r.Use(RateLimitMiddleware(opts.Limiter, logger))
		}
		r.Post("/convert", h.Convert)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}
