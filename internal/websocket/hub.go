// Livewall - Real-Time Social Wall with Moderated Ingestion
// Copyright 2026 A. Warren (awarren)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/awarren/livewall

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/awarren/livewall/internal/logging"
	"github.com/awarren/livewall/internal/metrics"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful shutdown path.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline may indicate a hung shutdown operation.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// roomMessage pairs an outbound message with its target room.
type roomMessage struct {
	room string
	msg  Message
}

// Hub maintains the set of active clients, their room membership, and
// delivers room-scoped broadcasts. A client receives a broadcast only
// for rooms it has joined; joining the same room twice is a no-op, so
// no client is ever delivered the same broadcast more than once.
type Hub struct {
	clients    map[*Client]bool
	rooms      map[string]map[*Client]bool
	broadcast  chan roomMessage
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan roomMessage, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
	}
}

// Serve runs the hub until ctx ends. It implements suture.Service.
//
// Selection is priority-ordered so behavior stays predictable when
// several channels are ready at once: shutdown first, then client
// lifecycle, then broadcasts. Go's select picks randomly among ready
// cases, which would otherwise let a broadcast race a disconnect.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		// Priority 1: shutdown (non-blocking check).
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: client lifecycle (non-blocking check).
		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		// Priority 3: wait for anything.
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()

		case client := <-h.Register:
			h.addClient(client)

		case client := <-h.Unregister:
			h.removeClient(client)

		case rm := <-h.broadcast:
			h.broadcastToRoom(rm)
		}
	}
}

// String names the hub in supervisor logs.
func (h *Hub) String() string {
	return "websocket-hub"
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSClients.Inc()
	logging.Info().Int("total_clients", total).Msg("Websocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		for _, members := range h.rooms {
			delete(members, client)
		}
		client.close()
		metrics.WSClients.Dec()
	}
	total := len(h.clients)
	h.mu.Unlock()

	logging.Info().Int("total_clients", total).Msg("Websocket client disconnected")
}

// Join adds the client to a room. Idempotent: a second join of the same
// room changes nothing.
func (h *Hub) Join(room string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[client] {
		// Not registered (or already unregistered); joining would leak.
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]bool)
		h.rooms[room] = members
	}
	members[client] = true
}

// InRoom reports whether the client is a member of the room.
func (h *Hub) InRoom(room string, client *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[room][client]
}

// Broadcast queues a message for every member of the room. A full queue
// drops the message rather than blocking the producer.
func (h *Hub) Broadcast(room, messageType string, payload interface{}) {
	rm := roomMessage{room: room, msg: Message{Type: messageType, Payload: payload}}

	select {
	case h.broadcast <- rm:
	default:
		metrics.WSDroppedMessages.Inc()
		logging.Warn().
			Str("room", room).
			Str("message_type", messageType).
			Msg("Broadcast channel full, dropping message")
	}
}

// broadcastToRoom delivers one message to the room's members in client
// id order, so delivery order is reproducible in tests. A client whose
// send buffer is full is disconnected rather than allowed to stall the
// hub.
func (h *Hub) broadcastToRoom(rm roomMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members := h.rooms[rm.room]
	if len(members) == 0 {
		return
	}

	clients := make([]*Client, 0, len(members))
	for client := range members {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- rm.msg:
		default:
			toRemove = append(toRemove, client)
		}
	}

	metrics.WSBroadcasts.WithLabelValues(rm.room, rm.msg.Type).Inc()

	for _, client := range toRemove {
		metrics.WSDroppedMessages.Inc()
		client.close()
		delete(h.clients, client)
		for _, m := range h.rooms {
			delete(m, client)
		}
		metrics.WSClients.Dec()
	}
}

// logGracefulShutdown closes every client and logs the shutdown with
// structured fields. ctx.Err() is not logged as an error: cancellation
// is the expected shutdown path.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.ClientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("Websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// closeAllClients closes clients in id order for a consistent shutdown.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		client.close()
		delete(h.clients, client)
		metrics.WSClients.Dec()
	}
	h.rooms = make(map[string]map[*Client]bool)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomCount returns the number of members of a room.
func (h *Hub) RoomCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
