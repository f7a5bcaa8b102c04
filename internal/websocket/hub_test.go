// Livewall - Real-Time Social Wall with Moderated Ingestion
// Copyright 2026 A. Warren (awarren)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/awarren/livewall

package websocket

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/awarren/livewall/internal/logging"
)

//nolint:gochecknoinits // init ensures quiet logging for tests
func init() {
	logging.Init(logging.Config{Level: "error", Format: "json", Output: io.Discard})
}

// startHub runs the hub loop for the duration of the test.
func startHub(t *testing.T) *Hub {
	t.Helper()

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("hub did not stop")
		}
	})
	return hub
}

// register connects a pump-less client and waits until the hub has it.
func register(t *testing.T, hub *Hub) *Client {
	t.Helper()

	client := NewClient(hub, nil, nil)
	hub.Register <- client

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 || !clientKnown(hub, client) {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(time.Millisecond)
	}
	return client
}

func clientKnown(hub *Hub, client *Client) bool {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return hub.clients[client]
}

func recvMessage(t *testing.T, client *Client) Message {
	t.Helper()
	select {
	case msg, ok := <-client.send:
		if !ok {
			t.Fatal("client send channel closed")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func assertNoMessage(t *testing.T, client *Client) {
	t.Helper()
	select {
	case msg := <-client.send:
		t.Fatalf("unexpected message %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := startHub(t)
	client := register(t, hub)

	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("client count = %d, want 1", got)
	}

	hub.Unregister <- client
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never unregistered")
		}
		time.Sleep(time.Millisecond)
	}

	if !client.closed() {
		t.Error("client not marked disconnected on unregister")
	}
}

func TestBroadcastReachesOnlyRoomMembers(t *testing.T) {
	hub := startHub(t)
	admin := register(t, hub)
	viewer := register(t, hub)

	hub.Join(RoomAdmin, admin)
	hub.Join(RoomFeed, viewer)

	hub.Broadcast(RoomAdmin, MessageTypeSettingsUpdated, nil)

	msg := recvMessage(t, admin)
	if msg.Type != MessageTypeSettingsUpdated {
		t.Errorf("admin message type = %s", msg.Type)
	}
	assertNoMessage(t, viewer)
}

func TestJoinIsIdempotent(t *testing.T) {
	hub := startHub(t)
	client := register(t, hub)

	hub.Join(RoomFeed, client)
	hub.Join(RoomFeed, client)

	if got := hub.RoomCount(RoomFeed); got != 1 {
		t.Fatalf("room count = %d, want 1 after double join", got)
	}

	hub.Broadcast(RoomFeed, MessageTypeEventAdded, nil)
	recvMessage(t, client)
	assertNoMessage(t, client) // no duplicate delivery
}

func TestJoinIgnoresUnregisteredClient(t *testing.T) {
	hub := startHub(t)
	stranger := NewClient(hub, nil, nil)

	hub.Join(RoomFeed, stranger)
	if got := hub.RoomCount(RoomFeed); got != 0 {
		t.Errorf("room count = %d, want 0 for unregistered client", got)
	}
}

func TestUnregisterLeavesRooms(t *testing.T) {
	hub := startHub(t)
	client := register(t, hub)
	hub.Join(RoomFeed, client)

	hub.Unregister <- client
	deadline := time.Now().Add(2 * time.Second)
	for hub.RoomCount(RoomFeed) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("room membership not cleaned up")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestShutdownClosesClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Serve(ctx)
	}()

	client := NewClient(hub, nil, nil)
	hub.Register <- client
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	if hub.ClientCount() != 0 {
		t.Error("clients not closed on shutdown")
	}
	if !client.closed() {
		t.Error("client not marked disconnected on shutdown")
	}
}

// A slow client is disconnected by the hub while the gateway may still
// be sending replies on that client's read pump. Sending to a
// disconnected client must be a silent drop, never a panic.
func TestSendSafeDuringSlowClientDisconnect(t *testing.T) {
	hub := startHub(t)
	client := register(t, hub)
	hub.Join(RoomFeed, client)

	// No pumps drain the buffer, so filling it makes the next
	// broadcast disconnect the client.
	for i := 0; i < cap(client.send); i++ {
		client.send <- Message{Type: MessageTypeEventAdded}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			client.Send(MessageTypeEvents, nil)
		}
	}()

	hub.Broadcast(RoomFeed, MessageTypeEventAdded, nil)

	deadline := time.Now().Add(2 * time.Second)
	for !client.closed() {
		if time.Now().After(deadline) {
			t.Fatal("slow client never disconnected")
		}
		time.Sleep(time.Millisecond)
	}
	wg.Wait()

	if clientKnown(hub, client) {
		t.Error("client still registered after slow-client disconnect")
	}
	client.Send(MessageTypeEvents, nil) // still a no-op, not a panic
}
