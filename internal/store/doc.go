// Livewall - Real-Time Social Wall with Moderated Ingestion
// Copyright 2026 A. Warren (awarren)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/awarren/livewall

/*
Package store persists events and the settings singleton in BadgerDB and
exposes a live change notification stream for each collection.

Key Components:

  - Events: event collection with fetch/insert/update/remove and a changefeed
  - Settings: settings singleton with fetch/partial-update and a changefeed
  - Bus: in-process Watermill GoChannel pub/sub carrying change records

Change Notification Semantics:

Each store owns exactly one changefeed producer. Any number of consumers
subscribe independently; a consumer that goes away and comes back gets no
replay and must re-fetch to resynchronize. A change record carries the
previous and next value of the record:

  - Previous == nil: creation
  - Next == nil:     deletion
  - both present:    mutation

Within one collection, change records are delivered in commit order. No
ordering is guaranteed between the events and settings feeds.

Storage Layout:

Events live under "event:<id>" keys, the settings singleton under the fixed
"settings" key. Values are JSON. Fetch filtering and newest-first ordering
happen in process; no indexes beyond the primary key are maintained.
*/
package store
