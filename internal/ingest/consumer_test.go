// Livewall - Real-Time Social Wall with Moderated Ingestion
// Copyright 2026 A. Warren (awarren)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/awarren/livewall

package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/awarren/livewall/internal/firehose"
	"github.com/awarren/livewall/internal/models"
	"github.com/awarren/livewall/internal/store"
)

// fakeStream hands out items pushed by the test.
type fakeStream struct {
	items  chan firehose.RawItem
	closed chan struct{}
	once   sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		items:  make(chan firehose.RawItem, 16),
		closed: make(chan struct{}),
	}
}

func (s *fakeStream) Items() <-chan firehose.RawItem { return s.items }

func (s *fakeStream) Close() error {
	s.once.Do(func() {
		close(s.closed)
		close(s.items)
	})
	return nil
}

// fakeClient records every Open and exposes the streams it created.
type fakeClient struct {
	mu      sync.Mutex
	opens   [][]string
	streams []*fakeStream
	opened  chan *fakeStream
}

func newFakeClient() *fakeClient {
	return &fakeClient{opened: make(chan *fakeStream, 4)}
}

func (c *fakeClient) Open(_ context.Context, terms []string) (firehose.Stream, error) {
	if len(terms) == 0 {
		return nil, firehose.ErrEmptyFilter
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s := newFakeStream()
	c.opens = append(c.opens, terms)
	c.streams = append(c.streams, s)
	c.opened <- s
	return s, nil
}

func (c *fakeClient) openCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.opens)
}

// fakeWriter records inserts and can fail a configured number of times.
type fakeWriter struct {
	mu       sync.Mutex
	inserted []models.Event
	failures int
	attempts int
	added    chan models.Event
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{added: make(chan models.Event, 16)}
}

func (w *fakeWriter) Insert(_ context.Context, event *models.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts++
	if w.failures > 0 {
		w.failures--
		return errors.New("store unavailable")
	}
	event.ID = models.NewEventID()
	w.inserted = append(w.inserted, *event)
	w.added <- *event
	return nil
}

func (w *fakeWriter) insertAttempts() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.attempts
}

// fakeSettings serves a fixed record and a test-driven changefeed.
type fakeSettings struct {
	mu      sync.Mutex
	current models.Settings
	changes chan store.SettingsChange
}

func newFakeSettings(s models.Settings) *fakeSettings {
	return &fakeSettings{current: s, changes: make(chan store.SettingsChange, 4)}
}

func (f *fakeSettings) Fetch(_ context.Context) (*models.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.current
	return &s, nil
}

func (f *fakeSettings) Changes(_ context.Context) (<-chan store.SettingsChange, error) {
	return f.changes, nil
}

func (f *fakeSettings) push(next models.Settings) {
	f.mu.Lock()
	prev := f.current
	f.current = next
	f.mu.Unlock()
	f.changes <- store.SettingsChange{Previous: &prev, Next: &next}
}

func startConsumer(t *testing.T, cfg Config, client firehose.Client, writer EventWriter, settings SettingsSource) context.CancelFunc {
	t.Helper()
	if cfg.Provider == "" {
		cfg.Provider = "twitter"
	}
	ctx, cancel := context.WithCancel(context.Background())
	consumer := NewConsumer(cfg, client, writer, settings)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = consumer.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("consumer did not stop")
		}
	})
	return cancel
}

func awaitStream(t *testing.T, client *fakeClient) *fakeStream {
	t.Helper()
	select {
	case s := <-client.opened:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscription open")
	}
	return nil
}

func awaitEvent(t *testing.T, writer *fakeWriter) models.Event {
	t.Helper()
	select {
	case e := <-writer.added:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for insert")
	}
	return models.Event{}
}

func TestConsumerPersistsQualifyingItem(t *testing.T) {
	client := newFakeClient()
	writer := newFakeWriter()
	settings := newFakeSettings(*windowSettings())

	startConsumer(t, Config{}, client, writer, settings)
	stream := awaitStream(t, client)

	stream.items <- taggedItem(createdAtInWindow, "stranger", "js")

	event := awaitEvent(t, writer)
	if event.Published {
		t.Error("non-allow-listed originator should not auto-publish")
	}
	if event.ID == "" {
		t.Error("persisted event should carry an id")
	}
	if event.Provider != "twitter" {
		t.Errorf("provider = %s", event.Provider)
	}
}

func TestConsumerAutoPublishesAllowListed(t *testing.T) {
	client := newFakeClient()
	writer := newFakeWriter()
	settings := newFakeSettings(*windowSettings())

	startConsumer(t, Config{}, client, writer, settings)
	stream := awaitStream(t, client)

	stream.items <- taggedItem(createdAtInWindow, "gnat", "js")

	if event := awaitEvent(t, writer); !event.Published {
		t.Error("allow-listed originator should publish at ingestion")
	}
}

func TestConsumerDropsRejectedItems(t *testing.T) {
	client := newFakeClient()
	writer := newFakeWriter()
	settings := newFakeSettings(*windowSettings())

	startConsumer(t, Config{}, client, writer, settings)
	stream := awaitStream(t, client)

	stream.items <- taggedItem(createdAtOutside, "gnat", "js")
	stream.items <- taggedItem(createdAtInWindow, "gnat", "golang")
	stream.items <- taggedItem(createdAtInWindow, "gnat", "js")

	event := awaitEvent(t, writer)
	if writer.insertAttempts() != 1 {
		t.Errorf("insert attempts = %d, want only the qualifying item", writer.insertAttempts())
	}
	if !event.Published {
		t.Error("the surviving item should be the allow-listed one")
	}
}

func TestConsumerSwapsSubscriptionOnSettingsChange(t *testing.T) {
	client := newFakeClient()
	writer := newFakeWriter()
	settings := newFakeSettings(*windowSettings())

	startConsumer(t, Config{DrainGrace: 20 * time.Millisecond}, client, writer, settings)
	old := awaitStream(t, client)

	next := *windowSettings()
	next.Hashtags = []string{"#node"}
	settings.push(next)

	replacement := awaitStream(t, client)

	select {
	case <-old.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("old subscription never closed")
	}
	if client.openCount() != 2 {
		t.Fatalf("open count = %d, want 2", client.openCount())
	}
	client.mu.Lock()
	secondTerms := client.opens[1]
	client.mu.Unlock()
	if len(secondTerms) != 1 || secondTerms[0] != "#node" {
		t.Errorf("replacement terms = %v, want [#node]", secondTerms)
	}

	// An item matching only the old rules is discarded under the new ones.
	replacement.items <- taggedItem(createdAtInWindow, "gnat", "js")
	replacement.items <- taggedItem(createdAtInWindow, "gnat", "node")

	event := awaitEvent(t, writer)
	if writer.insertAttempts() != 1 {
		t.Errorf("insert attempts = %d, want only the #node item", writer.insertAttempts())
	}
	if event.Username != "gnat" {
		t.Errorf("event = %+v", event)
	}
}

func TestConsumerIdlesOnEmptyFilter(t *testing.T) {
	client := newFakeClient()
	writer := newFakeWriter()
	empty := *windowSettings()
	empty.Hashtags = nil
	settings := newFakeSettings(empty)

	startConsumer(t, Config{}, client, writer, settings)

	// No subscription opens for an empty hashtag set.
	time.Sleep(50 * time.Millisecond)
	if client.openCount() != 0 {
		t.Fatalf("open count = %d, want 0 while filter is empty", client.openCount())
	}

	// Supplying hashtags brings the consumer back to life.
	settings.push(*windowSettings())
	stream := awaitStream(t, client)
	stream.items <- taggedItem(createdAtInWindow, "gnat", "js")
	awaitEvent(t, writer)
}

func TestConsumerRetriesInsertOnce(t *testing.T) {
	client := newFakeClient()
	writer := newFakeWriter()
	writer.failures = 1
	settings := newFakeSettings(*windowSettings())

	startConsumer(t, Config{InsertRetries: 1}, client, writer, settings)
	stream := awaitStream(t, client)

	stream.items <- taggedItem(createdAtInWindow, "gnat", "js")

	awaitEvent(t, writer)
	if writer.insertAttempts() != 2 {
		t.Errorf("insert attempts = %d, want a single retry", writer.insertAttempts())
	}
}

func TestConsumerDropsItemAfterRetryBudget(t *testing.T) {
	client := newFakeClient()
	writer := newFakeWriter()
	writer.failures = 2
	settings := newFakeSettings(*windowSettings())

	startConsumer(t, Config{InsertRetries: 1}, client, writer, settings)
	stream := awaitStream(t, client)

	stream.items <- taggedItem(createdAtInWindow, "gnat", "js")
	// The next item proves the subscription survived the drop.
	stream.items <- taggedItem(createdAtInWindow, "gnat", "js")

	awaitEvent(t, writer)
	if got := writer.insertAttempts(); got != 3 {
		t.Errorf("insert attempts = %d, want 2 failed + 1 succeeded", got)
	}
}
