// Livewall - Real-Time Social Wall with Moderated Ingestion
// Copyright 2026 A. Warren (awarren)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/awarren/livewall

// Package models defines the persisted domain types shared across the
// ingestion pipeline, the stores, and the session gateway.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Media kinds for event attachments.
const (
	MediaKindPhoto = "photo"
	MediaKindVideo = "video"
)

// Media describes an optional attachment on an event.
// Immutable after creation.
type Media struct {
	Kind string `json:"kind"` // photo or video
	URL  string `json:"url"`
}

// Event is a single wall item created by the stream consumer from a
// qualifying upstream post. Content, media, provider, username, and
// timestamp are immutable after creation; only Published and Viewed
// change over an event's lifetime.
type Event struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Media     *Media    `json:"media,omitempty"`
	Provider  string    `json:"provider"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
	Published bool      `json:"published"`
	Viewed    bool      `json:"viewed"`
}

// NewEventID returns a fresh event identifier.
func NewEventID() string {
	return uuid.New().String()
}

// EventPatch is a partial update to an event's mutable fields.
// Nil fields are left unchanged.
type EventPatch struct {
	Published *bool `json:"published,omitempty"`
	Viewed    *bool `json:"viewed,omitempty"`
}

// Apply merges the patch into a copy of e and returns it.
func (p EventPatch) Apply(e Event) Event {
	if p.Published != nil {
		e.Published = *p.Published
	}
	if p.Viewed != nil {
		e.Viewed = *p.Viewed
	}
	return e
}

// IsZero reports whether the patch changes nothing.
func (p EventPatch) IsZero() bool {
	return p.Published == nil && p.Viewed == nil
}

// FetchCriteria narrows an event fetch. Nil fields are not applied.
// Results are always ordered newest first.
type FetchCriteria struct {
	From      *time.Time `json:"from,omitempty"`
	To        *time.Time `json:"to,omitempty"`
	Published *bool      `json:"published,omitempty"`
	Viewed    *bool      `json:"viewed,omitempty"`
}

// Matches reports whether the event satisfies every set criterion.
func (c FetchCriteria) Matches(e *Event) bool {
	if c.From != nil && e.Timestamp.Before(*c.From) {
		return false
	}
	if c.To != nil && e.Timestamp.After(*c.To) {
		return false
	}
	if c.Published != nil && e.Published != *c.Published {
		return false
	}
	if c.Viewed != nil && e.Viewed != *c.Viewed {
		return false
	}
	return true
}

// Bool returns a pointer to b, for building patches and criteria.
func Bool(b bool) *bool { return &b }

// Time returns a pointer to t, for building criteria.
func Time(t time.Time) *time.Time { return &t }
