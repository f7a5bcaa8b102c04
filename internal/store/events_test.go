// Livewall - Real-Time Social Wall with Moderated Ingestion
// Copyright 2026 A. Warren (awarren)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/awarren/livewall

package store

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/awarren/livewall/internal/logging"
	"github.com/awarren/livewall/internal/models"
)

//nolint:gochecknoinits // init ensures quiet logging for tests
func init() {
	logging.Init(logging.Config{Level: "error", Format: "json", Output: io.Discard})
}

// newTestStores opens an in-memory database with a fresh bus.
func newTestStores(t *testing.T) (*Events, *Settings) {
	t.Helper()

	db, err := Open("")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	bus := NewBus()
	t.Cleanup(func() { _ = bus.Close() })

	return NewEvents(db, bus), NewSettings(db, bus)
}

func testEvent(ts time.Time) *models.Event {
	return &models.Event{
		Content:   "a #js post",
		Provider:  "twitter",
		Username:  "someone",
		Timestamp: ts,
	}
}

// recvEventChange waits for one change record or fails the test.
func recvEventChange(t *testing.T, ch <-chan EventChange) EventChange {
	t.Helper()
	select {
	case change, ok := <-ch:
		if !ok {
			t.Fatal("change channel closed")
		}
		return change
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change record")
	}
	return EventChange{}
}

func TestInsertAssignsID(t *testing.T) {
	events, _ := newTestStores(t)
	ctx := context.Background()

	e := testEvent(time.Now().UTC())
	if err := events.Insert(ctx, e); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if e.ID == "" {
		t.Error("insert should assign an id")
	}
}

func TestInsertFetchRoundTrip(t *testing.T) {
	events, _ := newTestStores(t)
	ctx := context.Background()

	e := testEvent(time.Now().UTC())
	if err := events.Insert(ctx, e); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := events.Fetch(ctx, models.FetchCriteria{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 1 || got[0].ID != e.ID {
		t.Fatalf("fetch after insert = %+v, want one event %s", got, e.ID)
	}
	if got[0].Content != e.Content {
		t.Errorf("content = %q, want %q", got[0].Content, e.Content)
	}
}

func TestFetchNewestFirst(t *testing.T) {
	events, _ := newTestStores(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if err := events.Insert(ctx, testEvent(base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, err := events.Fetch(ctx, models.FetchCriteria{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("fetch returned %d events, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Errorf("events out of order at %d: %v after %v", i, got[i].Timestamp, got[i-1].Timestamp)
		}
	}
}

func TestFetchFilters(t *testing.T) {
	events, _ := newTestStores(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	published := testEvent(base)
	published.Published = true
	if err := events.Insert(ctx, published); err != nil {
		t.Fatalf("insert: %v", err)
	}
	unpublished := testEvent(base.Add(time.Hour))
	if err := events.Insert(ctx, unpublished); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := events.Fetch(ctx, models.FetchCriteria{Published: models.Bool(true)})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 1 || got[0].ID != published.ID {
		t.Errorf("published filter = %+v, want only %s", got, published.ID)
	}

	got, err = events.Fetch(ctx, models.FetchCriteria{
		From: models.Time(base.Add(30 * time.Minute)),
		To:   models.Time(base.Add(2 * time.Hour)),
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 1 || got[0].ID != unpublished.ID {
		t.Errorf("range filter = %+v, want only %s", got, unpublished.ID)
	}
}

func TestUpdatePartialAndRoundTrip(t *testing.T) {
	events, _ := newTestStores(t)
	ctx := context.Background()

	e := testEvent(time.Now().UTC())
	if err := events.Insert(ctx, e); err != nil {
		t.Fatalf("insert: %v", err)
	}

	updated, err := events.Update(ctx, e.ID, models.EventPatch{Published: models.Bool(true)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.Published {
		t.Error("published not applied")
	}
	if updated.Viewed {
		t.Error("viewed changed by publish patch")
	}

	got, err := events.Fetch(ctx, models.FetchCriteria{Published: models.Bool(true)})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 1 || got[0].ID != e.ID {
		t.Errorf("published event missing from filtered fetch: %+v", got)
	}
}

func TestUpdateMissingReturnsNotFound(t *testing.T) {
	events, _ := newTestStores(t)

	_, err := events.Update(context.Background(), "no-such-id", models.EventPatch{Viewed: models.Bool(true)})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("update missing id error = %v, want ErrNotFound", err)
	}
}

func TestRemoveRoundTrip(t *testing.T) {
	events, _ := newTestStores(t)
	ctx := context.Background()

	e := testEvent(time.Now().UTC())
	if err := events.Insert(ctx, e); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := events.Remove(ctx, e.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}

	got, err := events.Fetch(ctx, models.FetchCriteria{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("fetch after remove = %+v, want empty", got)
	}

	if err := events.Remove(ctx, e.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second remove error = %v, want ErrNotFound", err)
	}
}

func TestChangefeedSequence(t *testing.T) {
	events, _ := newTestStores(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := events.Changes(ctx)
	if err != nil {
		t.Fatalf("subscribe changes: %v", err)
	}

	e := testEvent(time.Now().UTC())
	if err := events.Insert(ctx, e); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := events.Update(ctx, e.ID, models.EventPatch{Published: models.Bool(true)}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := events.Remove(ctx, e.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}

	created := recvEventChange(t, changes)
	if created.Previous != nil || created.Next == nil {
		t.Fatalf("creation record = %+v, want previous nil", created)
	}
	if created.Next.ID != e.ID {
		t.Errorf("creation id = %s, want %s", created.Next.ID, e.ID)
	}

	mutated := recvEventChange(t, changes)
	if mutated.Previous == nil || mutated.Next == nil {
		t.Fatalf("mutation record = %+v, want both values", mutated)
	}
	if mutated.Previous.Published || !mutated.Next.Published {
		t.Errorf("mutation record published transition wrong: %+v", mutated)
	}

	deleted := recvEventChange(t, changes)
	if deleted.Previous == nil || deleted.Next != nil {
		t.Fatalf("deletion record = %+v, want next nil", deleted)
	}
	if deleted.Previous.ID != e.ID {
		t.Errorf("deletion id = %s, want %s", deleted.Previous.ID, e.ID)
	}
}

func TestChangefeedIndependentConsumers(t *testing.T) {
	events, _ := newTestStores(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := events.Changes(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	second, err := events.Changes(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := events.Insert(ctx, testEvent(time.Now().UTC())); err != nil {
		t.Fatalf("insert: %v", err)
	}

	a := recvEventChange(t, first)
	b := recvEventChange(t, second)
	if a.Next == nil || b.Next == nil || a.Next.ID != b.Next.ID {
		t.Errorf("both consumers should see the same creation: %+v vs %+v", a, b)
	}
}
