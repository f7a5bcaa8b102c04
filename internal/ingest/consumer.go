// Livewall - Real-Time Social Wall with Moderated Ingestion
// Copyright 2026 A. Warren (awarren)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/awarren/livewall

/*
Package ingest owns the upstream subscription and the classification of
inbound items into Event records.

The Consumer holds at most one live subscription at any instant. When
the settings singleton changes it closes the current subscription,
drains in-flight items for a short grace window, and opens a
replacement tracking the new hashtag set. Store writes on this path go
through a circuit breaker with bounded retries so a failing store slows
ingestion down instead of tearing the subscription loop apart.
*/
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/awarren/livewall/internal/firehose"
	"github.com/awarren/livewall/internal/logging"
	"github.com/awarren/livewall/internal/metrics"
	"github.com/awarren/livewall/internal/models"
	"github.com/awarren/livewall/internal/store"
)

// ErrSubscription wraps upstream subscription failures. It is logged
// and counted; the consumer stays alive and retries on the next
// settings change.
var ErrSubscription = errors.New("ingest: subscription failed")

// EventWriter is the slice of the event store the consumer needs.
type EventWriter interface {
	Insert(ctx context.Context, event *models.Event) error
}

// SettingsSource supplies the current filter settings and their
// change notifications.
type SettingsSource interface {
	Fetch(ctx context.Context) (*models.Settings, error)
	Changes(ctx context.Context) (<-chan store.SettingsChange, error)
}

// Config tunes the consumer's resilience behavior.
type Config struct {
	// Provider is the origin tag stamped on every created Event.
	Provider string

	// DrainGrace bounds how long items from a closed subscription are
	// still read (and discarded) before the replacement goes live.
	DrainGrace time.Duration

	// InsertRetries is how many extra attempts a failed insert gets.
	InsertRetries int

	// BreakerFailures is the consecutive-failure count that opens the
	// insert circuit breaker.
	BreakerFailures uint32

	// BreakerTimeout is how long the breaker stays open before probing.
	BreakerTimeout time.Duration
}

// Consumer maintains the single upstream subscription and persists
// qualifying items.
type Consumer struct {
	cfg      Config
	client   firehose.Client
	events   EventWriter
	settings SettingsSource
	breaker  *gobreaker.CircuitBreaker[any]
}

// NewConsumer wires a consumer against the upstream client and stores.
func NewConsumer(cfg Config, client firehose.Client, events EventWriter, settings SettingsSource) *Consumer {
	if cfg.DrainGrace <= 0 {
		cfg.DrainGrace = 250 * time.Millisecond
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	c := &Consumer{
		cfg:      cfg,
		client:   client,
		events:   events,
		settings: settings,
	}

	c.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    "ingest-insert",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Insert breaker state change")
		},
	})

	return c
}

// String names the consumer in supervisor logs.
func (c *Consumer) String() string {
	return "ingest-consumer"
}

// Serve runs the subscription loop until ctx ends. It implements
// suture.Service.
func (c *Consumer) Serve(ctx context.Context) error {
	current, err := c.settings.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch settings: %w", err)
	}

	changes, err := c.settings.Changes(ctx)
	if err != nil {
		return fmt.Errorf("subscribe settings changes: %w", err)
	}

	stream := c.open(ctx, current)
	defer func() {
		if stream != nil {
			_ = stream.Close()
		}
	}()

	var items <-chan firehose.RawItem
	if stream != nil {
		items = stream.Items()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case change, ok := <-changes:
			if !ok {
				return fmt.Errorf("%w: settings changefeed closed", ErrSubscription)
			}
			if change.Next == nil {
				continue
			}
			current = change.Next
			stream = c.swap(ctx, stream, current)
			if stream != nil {
				items = stream.Items()
			} else {
				items = nil
			}

		case item, ok := <-items:
			if !ok {
				// The stream's own reconnect logic gave up only because
				// the context ended; otherwise the channel stays open.
				items = nil
				continue
			}
			c.handle(ctx, item, current)
		}
	}
}

// open starts a subscription for the given settings. A rejected filter
// (for instance an empty hashtag set) leaves the consumer idle until
// the next settings change rather than failing the service.
func (c *Consumer) open(ctx context.Context, settings *models.Settings) firehose.Stream {
	stream, err := c.client.Open(ctx, settings.Hashtags)
	if err != nil {
		metrics.IngestSubscriptionErrors.Inc()
		logging.Warn().
			Err(fmt.Errorf("%w: %v", ErrSubscription, err)).
			Strs("hashtags", settings.Hashtags).
			Msg("Subscription not opened, waiting for settings change")
		return nil
	}
	return stream
}

// swap atomically replaces the live subscription: the old one is closed
// and drained before the new one is opened, so no two subscriptions are
// ever concurrently live and no stale item is classified under the new
// rules.
func (c *Consumer) swap(ctx context.Context, old firehose.Stream, settings *models.Settings) firehose.Stream {
	if old != nil {
		_ = old.Close()
		c.drain(old.Items())
	}

	metrics.IngestSubscriptionSwaps.Inc()
	logging.Info().
		Strs("hashtags", settings.Hashtags).
		Msg("Rebuilding subscription for new settings")

	return c.open(ctx, settings)
}

// drain discards whatever the closed subscription still delivers,
// bounded by the grace window.
func (c *Consumer) drain(items <-chan firehose.RawItem) {
	timer := time.NewTimer(c.cfg.DrainGrace)
	defer timer.Stop()
	for {
		select {
		case _, ok := <-items:
			if !ok {
				return
			}
		case <-timer.C:
			return
		}
	}
}

// handle classifies one inbound item and persists it when it qualifies.
func (c *Consumer) handle(ctx context.Context, item firehose.RawItem, settings *models.Settings) {
	verdict := Classify(item, settings)
	if !verdict.Accept {
		metrics.IngestItemsRejected.WithLabelValues(verdict.Reason).Inc()
		logging.Trace().
			Str("item", item.ID).
			Str("reason", verdict.Reason).
			Msg("Item rejected")
		return
	}

	event := BuildEvent(item, verdict, c.cfg.Provider)
	if err := c.persist(ctx, event); err != nil {
		metrics.IngestInsertErrors.Inc()
		logging.Warn().
			Err(err).
			Str("item", item.ID).
			Msg("Dropping item after failed insert")
		return
	}

	metrics.IngestItemsAccepted.Inc()
	logging.Debug().
		Str("event_id", event.ID).
		Str("username", event.Username).
		Bool("published", event.Published).
		Msg("Item ingested")
}

// persist writes the event through the circuit breaker, retrying a
// bounded number of times. An open breaker fails fast without burning
// the retry budget.
func (c *Consumer) persist(ctx context.Context, event *models.Event) error {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.InsertRetries; attempt++ {
		_, err := c.breaker.Execute(func() (any, error) {
			return nil, c.events.Insert(ctx, event)
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
	}
	return lastErr
}
