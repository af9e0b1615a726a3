package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/agrolink/internal/auth"
	"github.com/onnwee/agrolink/internal/middleware"
)

// RouterConfig wires handlers and cross-cutting concerns into the router.
type RouterConfig struct {
	Feed    *FeedHandlers
	Health  *HealthHandlers
	Tokens  middleware.TokenValidator
	Metrics *middleware.Metrics
	// Gatherer backs GET /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
	// ServiceName enables request tracing when non-empty.
	ServiceName string
}

// NewRouter builds the HTTP handler:
// RequestID -> Tracing -> Logging -> HTTPMetrics -> [Auth] -> handler.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if cfg.ServiceName != "" {
		r.Use(middleware.Tracing(cfg.ServiceName))
	}
	r.Use(middleware.Logging(logger))
	if cfg.Metrics != nil {
		r.Use(middleware.HTTPMetrics(cfg.Metrics))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
	})

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.Health)
		r.Get("/ready", cfg.Health.Ready)
	}
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	if cfg.Feed != nil {
		authed := middleware.Auth(cfg.Tokens, cfg.Metrics, writeAuthFailure)
		r.With(authed).Get("/feed", cfg.Feed.GetFeed)
		r.Get("/feed/trending", cfg.Feed.GetTrending)
	}

	return r
}

func writeAuthFailure(w http.ResponseWriter, r *http.Request, err error) {
	msg := "Invalid or missing bearer token"
	switch {
	case errors.Is(err, middleware.ErrMissingToken):
		msg = "Missing bearer token"
	case errors.Is(err, auth.ErrExpiredToken):
		msg = "Token has expired"
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="agrolink"`)
	WriteError(w, r.Context(), http.StatusUnauthorized, ErrCodeAuthFailed, msg)
}
