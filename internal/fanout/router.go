// Livewall - Real-Time Social Wall with Moderated Ingestion
// Copyright 2026 A. Warren (awarren)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/awarren/livewall

/*
Package fanout bridges store change records to room-scoped session
broadcasts.

Moderators (room "admin") see every event change raw, plus settings
changes. Viewers (room "feed") only ever learn about published events:
an event crossing the publication boundary surfaces to them as an add
or a removal, whichever direction it crossed. An unpublished event must
never reach the feed room in any form.
*/
package fanout

import (
	"context"

	"github.com/awarren/livewall/internal/logging"
	"github.com/awarren/livewall/internal/models"
	"github.com/awarren/livewall/internal/store"
	"github.com/awarren/livewall/internal/websocket"
)

// Sink receives room-scoped broadcasts. *websocket.Hub implements it.
type Sink interface {
	Broadcast(room, messageType string, payload interface{})
}

// EventSource supplies event change records.
type EventSource interface {
	Changes(ctx context.Context) (<-chan store.EventChange, error)
}

// SettingsSource supplies settings change records.
type SettingsSource interface {
	Changes(ctx context.Context) (<-chan store.SettingsChange, error)
}

// Router consumes both changefeeds and translates each record into the
// broadcasts its rooms are entitled to. One router instance serves all
// sessions; per-store record order is preserved because each feed is
// drained by this single loop.
type Router struct {
	events   EventSource
	settings SettingsSource
	sink     Sink
}

// NewRouter wires a router against the stores and the broadcast sink.
func NewRouter(events EventSource, settings SettingsSource, sink Sink) *Router {
	return &Router{events: events, settings: settings, sink: sink}
}

// String names the router in supervisor logs.
func (r *Router) String() string {
	return "fanout-router"
}

// Serve drains the changefeeds until ctx ends. It implements
// suture.Service.
func (r *Router) Serve(ctx context.Context) error {
	eventChanges, err := r.events.Changes(ctx)
	if err != nil {
		return err
	}
	settingsChanges, err := r.settings.Changes(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case change, ok := <-eventChanges:
			if !ok {
				eventChanges = nil
				continue
			}
			r.routeEvent(change)

		case change, ok := <-settingsChanges:
			if !ok {
				settingsChanges = nil
				continue
			}
			r.routeSettings(change)
		}
	}
}

// routeEvent maps one event change record onto the admin and feed
// rooms.
func (r *Router) routeEvent(change store.EventChange) {
	switch {
	case change.Previous == nil && change.Next != nil:
		r.sink.Broadcast(websocket.RoomAdmin, websocket.MessageTypeEventAdded, change.Next)
		if change.Next.Published {
			r.sink.Broadcast(websocket.RoomFeed, websocket.MessageTypeEventAdded, change.Next)
		}

	case change.Previous != nil && change.Next != nil:
		r.sink.Broadcast(websocket.RoomAdmin, websocket.MessageTypeEventUpdated, change.Next)
		r.routeMutationToFeed(change.Previous, change.Next)

	case change.Previous != nil && change.Next == nil:
		removed := websocket.RemovedPayload{ID: change.Previous.ID}
		r.sink.Broadcast(websocket.RoomAdmin, websocket.MessageTypeEventRemoved, removed)
		if change.Previous.Published {
			r.sink.Broadcast(websocket.RoomFeed, websocket.MessageTypeEventRemoved, removed)
		}

	default:
		logging.Warn().Msg("Dropping empty change record")
	}
}

// routeMutationToFeed translates a mutation into what the feed room may
// learn from it. The publication transition decides the shape:
//
//	unpublished -> published: the event just became visible, so the
//	feed sees an add, not an update of something it never had.
//	published -> published:   a plain update (viewed flag changes).
//	published -> unpublished: visibility was revoked, the feed sees a
//	removal.
//	unpublished -> unpublished: nothing; the moderation queue stays
//	invisible.
func (r *Router) routeMutationToFeed(previous, next *models.Event) {
	switch {
	case !previous.Published && next.Published:
		r.sink.Broadcast(websocket.RoomFeed, websocket.MessageTypeEventAdded, next)
	case previous.Published && next.Published:
		r.sink.Broadcast(websocket.RoomFeed, websocket.MessageTypeEventUpdated, next)
	case previous.Published && !next.Published:
		r.sink.Broadcast(websocket.RoomFeed, websocket.MessageTypeEventRemoved, websocket.RemovedPayload{ID: next.ID})
	}
}

// routeSettings forwards settings changes to moderators. Viewers never
// receive raw settings.
func (r *Router) routeSettings(change store.SettingsChange) {
	if change.Next == nil {
		return
	}
	r.sink.Broadcast(websocket.RoomAdmin, websocket.MessageTypeSettingsUpdated, change.Next)
}
