// Livewall - Real-Time Social Wall with Moderated Ingestion
// Copyright 2026 A. Warren (awarren)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/awarren/livewall

// Package main is the entry point for the Livewall server.
//
// Livewall ingests a filtered social-media firehose, holds every matching
// item for moderation, and fans moderation decisions out to connected
// browsers in real time over WebSocket.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: load settings from environment variables and an
//     optional config file (Koanf v2)
//  2. Store: open BadgerDB (or an in-memory store when no path is set)
//     and seed the initial filter settings
//  3. Ingest: connect to the upstream filtered stream and persist
//     qualifying items
//  4. WebSocket hub: rooms, client lifecycle, and broadcast delivery
//  5. Fan-out router: store changefeeds to room broadcasts
//  6. HTTP server: WebSocket upgrade endpoint, health, and metrics
//
// All long-running components run under a suture supervisor tree and are
// restarted with backoff if they fail.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (see internal/config)
//   - Config file (config.yaml)
//   - Built-in defaults
//
// A minimal production setup needs the upstream endpoint and at least one
// seed hashtag:
//
//	export UPSTREAM_URL=https://stream.example.com/statuses/filter
//	export UPSTREAM_TOKEN=your-bearer-token
//	export SEED_HASHTAGS=#yourconf
//	export DATABASE_PATH=/data/livewall
//	./livewall
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops accepting new connections
//   - Closes the upstream subscription
//   - Disconnects WebSocket clients
//   - Flushes and closes the store
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awarren/livewall/internal/api"
	"github.com/awarren/livewall/internal/config"
	"github.com/awarren/livewall/internal/fanout"
	"github.com/awarren/livewall/internal/firehose"
	"github.com/awarren/livewall/internal/ingest"
	"github.com/awarren/livewall/internal/logging"
	"github.com/awarren/livewall/internal/models"
	"github.com/awarren/livewall/internal/store"
	"github.com/awarren/livewall/internal/supervisor"
	"github.com/awarren/livewall/internal/supervisor/services"
	ws "github.com/awarren/livewall/internal/websocket"
)

const version = "1.0.0"

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize zerolog with configuration
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Msg("Starting Livewall with supervisor tree")
	logging.Info().
		Str("upstream_url", cfg.Upstream.URL).
		Str("provider", cfg.Upstream.Provider).
		Str("db_path", cfg.Database.Path).
		Strs("seed_hashtags", cfg.Seed.Hashtags).
		Msg("Configuration loaded")

	// Open the store. An empty path selects BadgerDB's in-memory mode,
	// which is useful for development and CI.
	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()
	logging.Info().Msg("Store opened successfully")

	bus := store.NewBus()
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing changefeed bus")
		}
	}()

	events := store.NewEvents(db, bus)
	settings := store.NewSettings(db, bus)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Seed filter settings on first boot. An existing settings document
	// is left untouched so moderator edits survive restarts.
	now := time.Now().UTC()
	if err := settings.Init(ctx, models.Settings{
		Hashtags:       cfg.Seed.Hashtags,
		Publishers:     cfg.Seed.Publishers,
		AutoPublishAll: cfg.Seed.AutoPublishAll,
		From:           now,
		To:             now.Add(cfg.Seed.Window),
	}); err != nil {
		logging.Fatal().Err(err).Msg("Failed to seed filter settings")
	}

	// Create structured logger for supervisor using our slog adapter
	slogLogger := logging.NewSlogLogger()

	tree := supervisor.NewTree(slogLogger, supervisor.DefaultTreeConfig())

	// WebSocket hub must exist before the gateway and fan-out router,
	// which both broadcast through it.
	hub := ws.NewHub()
	gateway := ws.NewGateway(hub, events, settings)
	router := fanout.NewRouter(events, settings, hub)

	// Upstream ingestion
	upstream := firehose.NewHTTPClient(firehose.HTTPClientConfig{
		URL:            cfg.Upstream.URL,
		Token:          cfg.Upstream.Token,
		ReconnectEvery: cfg.Upstream.ReconnectEvery,
		ReconnectBurst: cfg.Upstream.ReconnectBurst,
	})
	consumer := ingest.NewConsumer(ingest.Config{
		Provider:        cfg.Upstream.Provider,
		DrainGrace:      cfg.Ingest.DrainGrace,
		InsertRetries:   cfg.Ingest.InsertRetries,
		BreakerFailures: cfg.Ingest.BreakerFailures,
		BreakerTimeout:  cfg.Ingest.BreakerTimeout,
	}, upstream, events, settings)

	// HTTP surface
	handler := api.NewHandler(hub, version)
	middleware := api.NewMiddleware(&api.MiddlewareConfig{
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
		RateLimitRequests:  cfg.Server.RateLimitReqs,
		RateLimitWindow:    cfg.Server.RateLimitWindow,
	})
	apiRouter := api.NewRouter(handler, middleware, gateway.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      apiRouter.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// === ADD SERVICES TO SUPERVISOR TREE ===

	// Ingest layer
	tree.AddIngestService(consumer)
	logging.Info().Msg("Upstream consumer added to supervisor tree")

	// Messaging layer
	tree.AddMessagingService(hub)
	tree.AddMessagingService(router)
	logging.Info().Msg("WebSocket hub and fan-out router added to supervisor tree")

	// API layer
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	// === START SUPERVISOR TREE ===

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// Wait for supervisor to finish (either from signal or error)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}
