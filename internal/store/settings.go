// Livewall - Real-Time Social Wall with Moderated Ingestion
// Copyright 2026 A. Warren (awarren)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/awarren/livewall

package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/awarren/livewall/internal/logging"
	"github.com/awarren/livewall/internal/metrics"
	"github.com/awarren/livewall/internal/models"
)

var settingsKey = []byte(models.SettingsID)

// Settings is the persisted settings singleton. Updates are field-level
// partial merges; change records are published in commit order.
type Settings struct {
	db  *badger.DB
	bus *Bus

	mu sync.Mutex
}

// NewSettings creates the settings store backed by db, publishing changes
// on bus.
func NewSettings(db *DB, bus *Bus) *Settings {
	return &Settings{db: db.db, bus: bus}
}

// Init creates the singleton with the given defaults if it does not exist
// yet. It is a no-op when settings are already present.
func (s *Settings) Init(ctx context.Context, defaults models.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	defaults.ID = models.SettingsID

	created := false
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(settingsKey)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		data, err := json.Marshal(&defaults)
		if err != nil {
			return fmt.Errorf("marshal settings: %w", err)
		}
		created = true
		return txn.Set(settingsKey, data)
	})
	if err != nil {
		return fmt.Errorf("init settings: %w", err)
	}

	if created {
		logging.Info().
			Strs("hashtags", defaults.Hashtags).
			Bool("auto_publish_all", defaults.AutoPublishAll).
			Msg("settings seeded with defaults")
		return s.publishChange(SettingsChange{Next: &defaults})
	}
	return nil
}

// Fetch returns the settings singleton.
func (s *Settings) Fetch(ctx context.Context) (*models.Settings, error) {
	start := time.Now()
	var settings models.Settings

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(settingsKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &settings)
		})
	})
	metrics.ObserveStoreOp("fetch", "settings", start)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		metrics.StoreOpErrors.WithLabelValues("fetch", "settings").Inc()
		return nil, fmt.Errorf("fetch settings: %w", err)
	}
	return &settings, nil
}

// Update merges the patch into the singleton and returns the result.
// Unspecified fields are never touched; concurrent updates are last-write-
// wins at the record level.
func (s *Settings) Update(ctx context.Context, patch models.SettingsPatch) (*models.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var previous, next models.Settings

	start := time.Now()
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(settingsKey)
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
			return fmt.Errorf("marshal settings: %w", err)
		}
		return txn.Set(settingsKey, data)
	})
	metrics.ObserveStoreOp("update", "settings", start)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		metrics.StoreOpErrors.WithLabelValues("update", "settings").Inc()
		return nil, fmt.Errorf("update settings: %w", err)
	}

	logging.Info().Msg("settings updated")
	if err := s.publishChange(SettingsChange{Previous: &previous, Next: &next}); err != nil {
		return nil, err
	}
	return &next, nil
}

// Changes returns a live stream of settings change records.
func (s *Settings) Changes(ctx context.Context) (<-chan SettingsChange, error) {
	return s.bus.SubscribeSettingsChanges(ctx)
}

func (s *Settings) publishChange(change SettingsChange) error {
	if err := s.bus.publish(TopicSettingsChanges, change); err != nil {
		return fmt.Errorf("publish settings change: %w", err)
	}
	return nil
}
