// Livewall - Real-Time Social Wall with Moderated Ingestion
// Copyright 2026 A. Warren (awarren)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/awarren/livewall

package models

import (
	"strings"
	"time"
)

// SettingsID is the fixed key of the settings singleton.
const SettingsID = "settings"

// Settings is the single operator-managed filter configuration. Exactly one
// record exists after initialization; updates are field-level partial merges.
type Settings struct {
	ID             string    `json:"id"`
	Hashtags       []string  `json:"hashtags"`
	Publishers     []string  `json:"publishers"`
	AutoPublishAll bool      `json:"autoPublishAll"`
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
}

// HasHashtag reports whether tag matches one of the configured hashtags,
// compared case-insensitively.
func (s *Settings) HasHashtag(tag string) bool {
	for _, h := range s.Hashtags {
		if strings.EqualFold(h, tag) {
			return true
		}
	}
	return false
}

// HasPublisher reports whether the originator handle is on the auto-publish
// allow list. Comparison is exact, matching the upstream handle as-is.
func (s *Settings) HasPublisher(handle string) bool {
	for _, p := range s.Publishers {
		if p == handle {
			return true
		}
	}
	return false
}

// InWindow reports whether t falls within the configured [From, To] window.
func (s *Settings) InWindow(t time.Time) bool {
	return !t.Before(s.From) && !t.After(s.To)
}

// SettingsPatch is a partial update to the settings singleton.
// Nil fields are left unchanged; slices replace wholesale when present.
type SettingsPatch struct {
	Hashtags       *[]string  `json:"hashtags,omitempty" validate:"omitempty,min=1,dive,hashtag"`
	Publishers     *[]string  `json:"publishers,omitempty" validate:"omitempty,dive,handle"`
	AutoPublishAll *bool      `json:"autoPublishAll,omitempty"`
	From           *time.Time `json:"from,omitempty"`
	To             *time.Time `json:"to,omitempty"`
}

// Apply merges the patch into a copy of s and returns it.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.Hashtags != nil {
		s.Hashtags = *p.Hashtags
	}
	if p.Publishers != nil {
		s.Publishers = *p.Publishers
	}
	if p.AutoPublishAll != nil {
		s.AutoPublishAll = *p.AutoPublishAll
	}
	if p.From != nil {
		s.From = *p.From
	}
	if p.To != nil {
		s.To = *p.To
	}
	return s
}

// IsZero reports whether the patch changes nothing.
func (p SettingsPatch) IsZero() bool {
	return p.Hashtags == nil && p.Publishers == nil &&
		p.AutoPublishAll == nil && p.From == nil && p.To == nil
}
