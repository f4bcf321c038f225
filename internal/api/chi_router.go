// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/playwatch/internal/auth"
	"github.com/tomtom215/playwatch/internal/middleware"
)

// Router binds the handlers to routes.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	auth          *auth.Middleware
}

// NewRouter creates a router. chiMW may be nil for defaults.
func NewRouter(handler *Handler, chiMW *ChiMiddleware, authMW *auth.Middleware) *Router {
	if chiMW == nil {
		chiMW = NewChiMiddleware(nil)
	}
	return &Router{handler: handler, chiMiddleware: chiMW, auth: authMW}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())
	r.Use(middleware.PrometheusMetrics)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Use(APISecurityHeaders())
		r.Get("/", router.handler.Health)
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(router.auth.Authenticate)
		r.Use(router.auth.RequireRole(auth.RoleAdmin))

		r.Get("/activity", router.handler.Activity)
		r.Get("/activity/live", router.handler.LiveActivity)
		r.Get("/activity/{key}", router.handler.SessionByKey)
		r.Post("/sessions/flush", router.handler.FlushSessions)

		r.Get("/history", router.handler.History)
		r.Get("/history/{id}", router.handler.HistoryByID)
		r.Post("/history/regroup", router.handler.RegroupHistory)
		r.Delete("/history/users/{id}", router.handler.PurgeUserHistory)
		r.Delete("/history/libraries/{id}", router.handler.PurgeLibraryHistory)

		r.Get("/audit", router.handler.AuditEvents)

		r.Get("/notifiers", router.handler.Notifiers)
		r.Post("/notifiers/{name}/test", router.handler.TestNotifier)
	})

	return r
}
