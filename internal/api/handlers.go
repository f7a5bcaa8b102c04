// Livewall - Real-Time Social Wall with Moderated Ingestion
// Copyright 2026 A. Warren (awarren)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/awarren/livewall

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/awarren/livewall/internal/logging"
)

// ClientCounter reports connected websocket sessions. *websocket.Hub
// implements it.
type ClientCounter interface {
	ClientCount() int
}

// Handler serves the plain HTTP endpoints.
type Handler struct {
	hub     ClientCounter
	version string
	started time.Time
}

// NewHandler creates the endpoint handler.
func NewHandler(hub ClientCounter, version string) *Handler {
	return &Handler{
		hub:     hub,
		version: version,
		started: time.Now().UTC(),
	}
}

// HealthResponse is the health endpoint payload.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Clients       int    `json:"clients"`
}

// Health reports process liveness and basic session stats.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Clients:       h.hub.ClientCount(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("Failed to encode response")
	}
}
