// Livewall - Real-Time Social Wall with Moderated Ingestion
// Copyright 2026 A. Warren (awarren)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/awarren/livewall

package store

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/awarren/livewall/internal/models"
)

// ErrNotFound is returned by update/remove operations referencing a
// missing record id.
var ErrNotFound = errors.New("record not found")

// Changefeed topics carried by the Bus.
const (
	TopicEventChanges    = "events.changes"
	TopicSettingsChanges = "settings.changes"
)

// EventChange is a single change record from the events collection.
// Previous == nil denotes creation, Next == nil denotes deletion, both
// present denotes mutation.
type EventChange struct {
	Previous *models.Event `json:"previous,omitempty"`
	Next     *models.Event `json:"next,omitempty"`
}

// SettingsChange is a single change record from the settings singleton.
type SettingsChange struct {
	Previous *models.Settings `json:"previous,omitempty"`
	Next     *models.Settings `json:"next,omitempty"`
}

// DB wraps the shared Badger handle behind both stores.
type DB struct {
	db *badger.DB
}

// Open opens the Badger database at path. An empty path opens an in-memory
// database, which is only useful in tests.
func Open(path string) (*DB, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	// Badger's own logger bypasses zerolog; silence it and surface errors
	// through our own wrapping instead.
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	return &DB{db: db}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}
