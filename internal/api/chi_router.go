// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/gadgetgrove/internal/config"
	"github.com/tomtom215/gadgetgrove/internal/middleware"
)

// MiddlewareConfigFrom maps the security settings onto the Chi middleware.
func MiddlewareConfigFrom(sec config.SecurityConfig) *ChiMiddlewareConfig {
	mc := DefaultChiMiddlewareConfig()
	mc.CORSAllowedOrigins = sec.CORSOrigins
	if sec.RateLimitReqs > 0 {
		mc.RateLimitRequests = sec.RateLimitReqs
	}
	if sec.RateLimitWindow > 0 {
		mc.RateLimitWindow = sec.RateLimitWindow
	}
	mc.RateLimitDisabled = sec.RateLimitDisabled
	return mc
}

// NewRouter builds the Chi router.
func NewRouter(h *Handler, mc *ChiMiddlewareConfig) http.Handler {
	chiMw := NewChiMiddleware(mc)
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	r.Use(chiMw.CORS())

	r.Get("/", h.Index)
	r.Get("/simulate", h.Simulate)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.With(chiMw.RateLimitIngest()).Post("/analytics", h.IngestEvent)
		r.Get("/analytics/stats", h.QueueStats)

		r.Get("/reports/summary", h.ReportSummary)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, ErrCodeBadRequest, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, ErrCodeBadRequest, "method not allowed")
	})
	return r
}
