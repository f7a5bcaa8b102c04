// Livewall - Real-Time Social Wall with Moderated Ingestion
// Copyright 2026 A. Warren (awarren)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/awarren/livewall

package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/awarren/livewall/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // 64 KB; commands are small
)

// clientIDCounter generates unique, monotonically increasing client ids
// so broadcast iteration can be sorted into a stable order.
var clientIDCounter atomic.Uint64

// Client is a middleman between one websocket connection and the hub.
// Its role starts empty and is assigned by the first join command; all
// command handling for a connection runs on that connection's read
// pump, so role needs no locking.
type Client struct {
	id      uint64
	hub     *Hub
	gateway *Gateway
	conn    *websocket.Conn
	send    chan Message
	role    string

	// done signals disconnection. The send channel itself is never
	// closed: the hub disconnects a client by calling close(), and the
	// gateway may still be sending a reply on the read pump at that
	// moment, so closing send would race.
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a client for an upgraded connection.
func NewClient(hub *Hub, gateway *Gateway, conn *websocket.Conn) *Client {
	return &Client{
		id:      clientIDCounter.Add(1),
		hub:     hub,
		gateway: gateway,
		conn:    conn,
		send:    make(chan Message, 256),
		done:    make(chan struct{}),
	}
}

// ID returns the client's unique identifier.
func (c *Client) ID() uint64 {
	return c.id
}

// Role returns the role assigned by the session's join command, or ""
// before any join.
func (c *Client) Role() string {
	return c.role
}

// Send queues a message for this client only. A full buffer drops the
// message; messages for a disconnected client are dropped silently.
func (c *Client) Send(messageType string, payload interface{}) {
	select {
	case c.send <- Message{Type: messageType, Payload: payload}:
	case <-c.done:
	default:
		logging.Warn().
			Uint64("client_id", c.id).
			Str("message_type", messageType).
			Msg("Client send buffer full, dropping message")
	}
}

// close marks the client disconnected and tells the write pump to send
// a close frame and exit. Safe to call from any goroutine, repeatedly.
func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// closed reports whether the client has been disconnected.
func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// readPump pumps commands from the websocket connection to the gateway.
func (c *Client) readPump() {
	defer func() {
		// The hub drains Unregister while serving; once it has shut
		// down (or already disconnected this client) done is closed
		// and there is nothing left to unregister from.
		select {
		case c.hub.Unregister <- c:
		case <-c.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var cmd Command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error().Err(err).Msg("Unexpected websocket close error")
			}
			break
		}

		c.gateway.Dispatch(c, cmd)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("Failed to set write deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
				logging.Error().Err(err).Msg("Failed to write close message")
			}
			return

		case message := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("Failed to set write deadline")
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				logging.Error().Err(err).Msg("Failed to write JSON message")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("Failed to set write deadline for ping")
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start begins reading and writing for the client.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
