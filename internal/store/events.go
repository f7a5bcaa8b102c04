// Livewall - Real-Time Social Wall with Moderated Ingestion
// Copyright 2026 A. Warren (awarren)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/awarren/livewall

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/awarren/livewall/internal/logging"
	"github.com/awarren/livewall/internal/metrics"
	"github.com/awarren/livewall/internal/models"
)

const eventKeyPrefix = "event:"

// Events is the persisted event collection. All mutations publish a change
// record on the bus in commit order.
type Events struct {
	db  *badger.DB
	bus *Bus

	// mu serializes mutation+publish so changefeed order matches
	// commit order.
	mu sync.Mutex
}

// NewEvents creates the event store backed by db, publishing changes on bus.
func NewEvents(db *DB, bus *Bus) *Events {
	return &Events{db: db.db, bus: bus}
}

func eventKey(id string) []byte {
	return []byte(eventKeyPrefix + id)
}

// Insert persists a new event, assigning an identifier if absent.
func (s *Events) Insert(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = models.NewEventID()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(eventKey(event.ID), data)
	})
	metrics.ObserveStoreOp("insert", "events", start)
	if err != nil {
		metrics.StoreOpErrors.WithLabelValues("insert", "events").Inc()
		return fmt.Errorf("insert event %s: %w", event.ID, err)
	}

	metrics.EventsStored.Inc()
	logging.Debug().Str("id", event.ID).Str("provider", event.Provider).Msg("event inserted")

	next := *event
	return s.publishChange(EventChange{Next: &next})
}

// Fetch returns events matching the criteria, newest first.
func (s *Events) Fetch(ctx context.Context, criteria models.FetchCriteria) ([]models.Event, error) {
	start := time.Now()
	var events []models.Event

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(eventKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var event models.Event
				if err := json.Unmarshal(val, &event); err != nil {
					return fmt.Errorf("unmarshal event: %w", err)
				}
				if criteria.Matches(&event) {
					events = append(events, event)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	metrics.ObserveStoreOp("fetch", "events", start)
	if err != nil {
		metrics.StoreOpErrors.WithLabelValues("fetch", "events").Inc()
		return nil, fmt.Errorf("fetch events: %w", err)
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	return events, nil
}

// Get returns a single event by id.
func (s *Events) Get(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(eventKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &event)
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return &event, nil
}

// Update applies a partial patch to the event's mutable fields and returns
// the updated record. Returns ErrNotFound if the id does not exist.
func (s *Events) Update(ctx context.Context, id string, patch models.EventPatch) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var previous, next models.Event

	start := time.Now()
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(eventKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &previous)
		}); err != nil {
			return err
		}

		next = patch.Apply(previous)
		data, err := json.Marshal(&next)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		return txn.Set(eventKey(id), data)
	})
	metrics.ObserveStoreOp("update", "events", start)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		metrics.StoreOpErrors.WithLabelValues("update", "events").Inc()
		return nil, fmt.Errorf("update event %s: %w", id, err)
	}

	logging.Debug().Str("id", id).Msg("event updated")
	if err := s.publishChange(EventChange{Previous: &previous, Next: &next}); err != nil {
		return nil, err
	}
	return &next, nil
}

// Remove deletes the event. Returns ErrNotFound if the id does not exist.
// The emitted change record carries only the previous value.
func (s *Events) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var previous models.Event

	start := time.Now()
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(eventKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &previous)
		}); err != nil {
			return err
		}
		return txn.Delete(eventKey(id))
	})
	metrics.ObserveStoreOp("remove", "events", start)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		metrics.StoreOpErrors.WithLabelValues("remove", "events").Inc()
		return fmt.Errorf("remove event %s: %w", id, err)
	}

	metrics.EventsStored.Dec()
	logging.Debug().Str("id", id).Msg("event removed")
	return s.publishChange(EventChange{Previous: &previous})
}

// Changes returns a live stream of change records. There is no replay; a
// consumer that resubscribes must Fetch to resynchronize first.
func (s *Events) Changes(ctx context.Context) (<-chan EventChange, error) {
	return s.bus.SubscribeEventChanges(ctx)
}

func (s *Events) publishChange(change EventChange) error {
	if err := s.bus.publish(TopicEventChanges, change); err != nil {
		return fmt.Errorf("publish event change: %w", err)
	}
	return nil
}
