// Livewall - Real-Time Social Wall with Moderated Ingestion
// Copyright 2026 A. Warren (awarren)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/awarren/livewall

package websocket

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/awarren/livewall/internal/logging"
	"github.com/awarren/livewall/internal/metrics"
	"github.com/awarren/livewall/internal/models"
	"github.com/awarren/livewall/internal/store"
	"github.com/awarren/livewall/internal/validation"
)

// defaultOpTimeout bounds a single store call made on behalf of a
// session command.
const defaultOpTimeout = 10 * time.Second

// EventStore is the slice of the event store the gateway needs.
type EventStore interface {
	Fetch(ctx context.Context, criteria models.FetchCriteria) ([]models.Event, error)
	Update(ctx context.Context, id string, patch models.EventPatch) (*models.Event, error)
	Remove(ctx context.Context, id string) error
}

// SettingsStore is the slice of the settings store the gateway needs.
type SettingsStore interface {
	Fetch(ctx context.Context) (*models.Settings, error)
	Update(ctx context.Context, patch models.SettingsPatch) (*models.Settings, error)
}

// Gateway dispatches session commands to the stores. Each connection's
// commands are handled on its own read pump, so one session's pending
// store call never stalls another session.
//
// Mutating commands send no direct success reply: the effect reaches
// the session through the room broadcast driven by the store
// changefeed. Failures are reported to the issuing session only.
type Gateway struct {
	hub       *Hub
	events    EventStore
	settings  SettingsStore
	opTimeout time.Duration
	upgrader  websocket.Upgrader
}

// NewGateway wires a gateway against the hub and stores.
func NewGateway(hub *Hub, events EventStore, settings SettingsStore) *Gateway {
	return &Gateway{
		hub:       hub,
		events:    events,
		settings:  settings,
		opTimeout: defaultOpTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser viewers connect from the wall's own origin; the
			// router's CORS policy is the authority for everything else.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler upgrades an HTTP request into a websocket session.
func (g *Gateway) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := g.upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Warn().Err(err).Msg("Websocket upgrade failed")
			return
		}

		client := NewClient(g.hub, g, conn)
		g.hub.Register <- client
		client.Start()
	}
}

// Dispatch routes one decoded command to its handler.
func (g *Gateway) Dispatch(client *Client, cmd Command) {
	var err error

	switch cmd.Type {
	case CommandJoinAdmin:
		err = g.join(client, RoleModerator, RoomAdmin)
	case CommandJoinFeed:
		err = g.joinFeed(client)
	case CommandFetchEvents:
		err = g.fetchEvents(client, cmd)
	case CommandFetchSettings:
		err = g.fetchSettings(client, cmd)
	case CommandPublish:
		err = g.patchEvent(client, cmd, models.EventPatch{Published: models.Bool(true)})
	case CommandUnpublish:
		err = g.patchEvent(client, cmd, models.EventPatch{Published: models.Bool(false)})
	case CommandRemove:
		err = g.removeEvent(client, cmd)
	case CommandMarkViewed:
		err = g.markViewed(client, cmd)
	case CommandUpdateSettings:
		err = g.updateSettings(client, cmd)
	default:
		err = errors.New("unknown command type")
	}

	status := "ok"
	if err != nil {
		status = "error"
		client.Send(MessageTypeError, ErrorPayload{Command: cmd.Type, Message: err.Error()})
		logging.Debug().
			Err(err).
			Uint64("client_id", client.id).
			Str("command", cmd.Type).
			Msg("Command rejected")
	}
	metrics.WSCommands.WithLabelValues(cmd.Type, status).Inc()
}

// join assigns the session's role, adds it to the room, and
// acknowledges. Re-joining with the same role is idempotent; a session's
// role is fixed by its first join, so switching rooms is rejected rather
// than letting a moderator keep receiving feed broadcasts (or vice
// versa).
func (g *Gateway) join(client *Client, role, room string) error {
	if client.role != "" && client.role != role {
		return errors.New("session already joined with another role")
	}
	client.role = role
	g.hub.Join(room, client)
	client.Send(MessageTypeJoined, JoinedPayload{Role: role})
	return nil
}

// joinFeed acknowledges the join and delivers the published-events
// snapshot, so a (re)connecting viewer starts from current state
// without any changefeed replay.
func (g *Gateway) joinFeed(client *Client) error {
	if err := g.join(client, RoleViewer, RoomFeed); err != nil {
		return err
	}

	ctx, cancel := g.opContext()
	defer cancel()

	events, err := g.events.Fetch(ctx, models.FetchCriteria{Published: models.Bool(true)})
	if err != nil {
		logging.Warn().Err(err).Uint64("client_id", client.id).Msg("Feed snapshot fetch failed")
		return errors.New("snapshot unavailable")
	}
	client.Send(MessageTypeEvents, events)
	return nil
}

// fetchEvents answers with the events visible to the session's role.
// Viewers only ever see published events, whatever criteria they ask
// for.
func (g *Gateway) fetchEvents(client *Client, cmd Command) error {
	if client.role == "" {
		return errors.New("join before fetching")
	}

	var criteria models.FetchCriteria
	if len(cmd.Payload) > 0 {
		if err := json.Unmarshal(cmd.Payload, &criteria); err != nil {
			return errors.New("malformed criteria")
		}
	}
	if client.role != RoleModerator {
		criteria.Published = models.Bool(true)
	}

	ctx, cancel := g.opContext()
	defer cancel()

	events, err := g.events.Fetch(ctx, criteria)
	if err != nil {
		return errors.New("fetch failed")
	}
	client.Send(MessageTypeEvents, events)
	return nil
}

// fetchSettings answers with the raw settings record, moderators only.
func (g *Gateway) fetchSettings(client *Client, _ Command) error {
	if client.role != RoleModerator {
		return errors.New("moderator role required")
	}

	ctx, cancel := g.opContext()
	defer cancel()

	settings, err := g.settings.Fetch(ctx)
	if err != nil {
		return errors.New("fetch failed")
	}
	client.Send(MessageTypeSettings, settings)
	return nil
}

// patchEvent applies a publish or unpublish transition.
func (g *Gateway) patchEvent(client *Client, cmd Command, patch models.EventPatch) error {
	if client.role != RoleModerator {
		return errors.New("moderator role required")
	}

	id, err := decodeID(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := g.opContext()
	defer cancel()

	if _, err := g.events.Update(ctx, id, patch); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errors.New("no such event")
		}
		return errors.New("update failed")
	}
	return nil
}

// removeEvent tombstones an event. Removal is terminal: the id cannot
// be republished afterwards.
func (g *Gateway) removeEvent(client *Client, cmd Command) error {
	if client.role != RoleModerator {
		return errors.New("moderator role required")
	}

	id, err := decodeID(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := g.opContext()
	defer cancel()

	if err := g.events.Remove(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errors.New("no such event")
		}
		return errors.New("remove failed")
	}
	return nil
}

// markViewed flags an event as seen, viewers only. The write itself is
// best-effort display housekeeping: store failures are logged, never
// surfaced to the viewer.
func (g *Gateway) markViewed(client *Client, cmd Command) error {
	if client.role != RoleViewer {
		return errors.New("viewer role required")
	}

	id, err := decodeID(cmd)
	if err != nil {
		return nil
	}

	ctx, cancel := g.opContext()
	defer cancel()

	if _, err := g.events.Update(ctx, id, models.EventPatch{Viewed: models.Bool(true)}); err != nil {
		logging.Debug().
			Err(err).
			Str("event_id", id).
			Uint64("client_id", client.id).
			Msg("markViewed dropped")
	}
	return nil
}

// updateSettings applies a partial settings patch, moderators only.
// The new record reaches moderators via the settingsUpdated broadcast.
func (g *Gateway) updateSettings(client *Client, cmd Command) error {
	if client.role != RoleModerator {
		return errors.New("moderator role required")
	}

	var patch models.SettingsPatch
	if len(cmd.Payload) == 0 {
		return errors.New("missing settings payload")
	}
	if err := json.Unmarshal(cmd.Payload, &patch); err != nil {
		return errors.New("malformed settings payload")
	}
	if patch.IsZero() {
		return errors.New("empty settings payload")
	}
	if verr := validation.ValidateStruct(&patch); verr != nil {
		return verr
	}

	ctx, cancel := g.opContext()
	defer cancel()

	if _, err := g.settings.Update(ctx, patch); err != nil {
		return errors.New("update failed")
	}
	return nil
}

func (g *Gateway) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), g.opTimeout)
}

func decodeID(cmd Command) (string, error) {
	var payload IDPayload
	if len(cmd.Payload) == 0 {
		return "", errors.New("missing id")
	}
	if err := json.Unmarshal(cmd.Payload, &payload); err != nil || payload.ID == "" {
		return "", errors.New("missing id")
	}
	return payload.ID, nil
}
