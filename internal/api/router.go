// Livewall - Real-Time Social Wall with Moderated Ingestion
// Copyright 2026 A. Warren (awarren)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/awarren/livewall

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/awarren/livewall/internal/middleware"
)

// Router assembles the HTTP surface.
type Router struct {
	handler    *Handler
	middleware *Middleware
	wsHandler  http.HandlerFunc
}

// NewRouter creates a router serving the given websocket upgrade
// handler alongside health and metrics.
func NewRouter(handler *Handler, middleware *Middleware, wsHandler http.HandlerFunc) *Router {
	return &Router{
		handler:    handler,
		middleware: middleware,
		wsHandler:  wsHandler,
	}
}

// Setup configures all routes and returns the root handler.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	r.Use(router.middleware.CORS()) // global so OPTIONS preflight works everywhere

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.middleware.RateLimitHealth())
		r.Get("/", router.handler.Health)
	})

	r.Route("/ws", func(r chi.Router) {
		r.Use(router.middleware.RateLimit())
		r.Get("/", router.wsHandler)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
