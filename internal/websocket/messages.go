// Livewall - Real-Time Social Wall with Moderated Ingestion
// Copyright 2026 A. Warren (awarren)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/awarren/livewall

package websocket

import (
	"github.com/goccy/go-json"
)

// Logical rooms a session can join.
const (
	RoomAdmin = "admin"
	RoomFeed  = "feed"
)

// Session roles, assigned by the join command.
const (
	RoleModerator = "moderator"
	RoleViewer    = "viewer"
)

// Client-to-server command types.
const (
	CommandJoinAdmin      = "joinAdmin"
	CommandJoinFeed       = "joinFeed"
	CommandFetchEvents    = "fetchEvents"
	CommandFetchSettings  = "fetchSettings"
	CommandPublish        = "publish"
	CommandUnpublish      = "unpublish"
	CommandRemove         = "remove"
	CommandMarkViewed     = "markViewed"
	CommandUpdateSettings = "updateSettings"
)

// Server-to-client message types.
const (
	MessageTypeEvents          = "events"
	MessageTypeSettings        = "settings"
	MessageTypeEventAdded      = "eventAdded"
	MessageTypeEventUpdated    = "eventUpdated"
	MessageTypeEventRemoved    = "eventRemoved"
	MessageTypeSettingsUpdated = "settingsUpdated"
	MessageTypeJoined          = "joined"
	MessageTypeError           = "error"
)

// Message is the server-to-client envelope.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Command is the client-to-server envelope. The payload stays raw until
// the dispatcher knows which shape the type calls for.
type Command struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinedPayload acknowledges a join command.
type JoinedPayload struct {
	Role string `json:"role"`
}

// IDPayload carries the target of publish/unpublish/remove/markViewed.
type IDPayload struct {
	ID string `json:"id"`
}

// RemovedPayload announces a deletion to a room.
type RemovedPayload struct {
	ID string `json:"id"`
}

// ErrorPayload reports a failed command to the session that issued it.
type ErrorPayload struct {
	Command string `json:"command"`
	Message string `json:"message"`
}

// MarshalMessage converts a message to JSON.
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
