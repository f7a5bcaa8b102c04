// Livewall - Real-Time Social Wall with Moderated Ingestion
// Copyright 2026 A. Warren (awarren)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/awarren/livewall

// Package metrics provides Prometheus instrumentation for the ingestion
// pipeline, the stores, and the websocket fan-out.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics

	IngestItemsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livewall_ingest_items_accepted_total",
			Help: "Total upstream items accepted by the classifier",
		},
	)

	IngestItemsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livewall_ingest_items_rejected_total",
			Help: "Total upstream items rejected by the classifier",
		},
		[]string{"reason"}, // window, reshare, hashtag
	)

	IngestInsertErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livewall_ingest_insert_errors_total",
			Help: "Total ingestion-path store inserts dropped after retry",
		},
	)

	IngestSubscriptionSwaps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livewall_ingest_subscription_swaps_total",
			Help: "Total upstream subscription rebuilds triggered by settings changes",
		},
	)

	IngestSubscriptionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livewall_ingest_subscription_errors_total",
			Help: "Total failed attempts to open the upstream subscription",
		},
	)

	// Store metrics

	StoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "livewall_store_op_duration_seconds",
			Help:    "Duration of store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "collection"},
	)

	StoreOpErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livewall_store_op_errors_total",
			Help: "Total store operation errors",
		},
		[]string{"operation", "collection"},
	)

	EventsStored = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livewall_events_stored",
			Help: "Current number of events in the store",
		},
	)

	// WebSocket metrics

	WSClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livewall_websocket_clients",
			Help: "Current number of connected websocket clients",
		},
	)

	WSBroadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livewall_websocket_broadcasts_total",
			Help: "Total messages broadcast to websocket rooms",
		},
		[]string{"room", "type"},
	)

	WSDroppedMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livewall_websocket_dropped_messages_total",
			Help: "Total broadcast messages dropped due to slow clients",
		},
	)

	WSCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livewall_websocket_commands_total",
			Help: "Total client commands processed by the session gateway",
		},
		[]string{"type", "status"}, // status: ok, error, rejected
	)

	// HTTP metrics

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "livewall_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livewall_http_active_requests",
			Help: "Current number of in-flight HTTP requests",
		},
	)
)

// TrackActiveRequest adjusts the in-flight HTTP request gauge.
func TrackActiveRequest(active bool) {
	if active {
		HTTPActiveRequests.Inc()
	} else {
		HTTPActiveRequests.Dec()
	}
}

// RecordHTTPRequest records a completed HTTP request.
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveStoreOp records the duration of a store operation.
func ObserveStoreOp(operation, collection string, start time.Time) {
	StoreOpDuration.WithLabelValues(operation, collection).Observe(time.Since(start).Seconds())
}
