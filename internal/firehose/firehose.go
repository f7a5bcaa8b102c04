// Livewall - Real-Time Social Wall with Moderated Ingestion
// Copyright 2026 A. Warren (awarren)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/awarren/livewall

/*
Package firehose provides the upstream streaming client.

The upstream is a push-based filtered stream of candidate social posts
(the statuses/filter shape: one JSON document per line, filtered by a
comma-joined track parameter). The Client interface decouples the
ingestion pipeline from the transport so tests can drive it with an
in-memory fake.
*/
package firehose

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrEmptyFilter is returned when a stream is requested with no track terms.
// The upstream rejects an unfiltered subscription, so we refuse it locally
// before dialing.
var ErrEmptyFilter = errors.New("firehose: empty filter term set")

// createdAtLayout is the upstream's timestamp format.
const createdAtLayout = "Mon Jan 02 15:04:05 -0700 2006"

// Client opens filtered streams against the upstream source.
type Client interface {
	// Open establishes a subscription tracking the given terms.
	// It returns ErrEmptyFilter when terms is empty.
	Open(ctx context.Context, terms []string) (Stream, error)
}

// Stream is a live subscription handle. Items delivers decoded upstream
// documents until Close is called or the context passed to Open ends;
// the channel is closed afterwards.
type Stream interface {
	Items() <-chan RawItem
	Close() error
}

// RawItem is one upstream document as it appears on the wire.
type RawItem struct {
	ID              string           `json:"id_str"`
	Text            string           `json:"text"`
	CreatedAt       string           `json:"created_at"`
	User            RawUser          `json:"user"`
	RetweetedStatus *RawReference    `json:"retweeted_status,omitempty"`
	Entities        RawEntities      `json:"entities"`
	ExtendedEntities *RawMediaHolder `json:"extended_entities,omitempty"`
}

// RawUser identifies the originator of an item.
type RawUser struct {
	ScreenName string `json:"screen_name"`
}

// RawReference marks an item as a reshare of another item. Only its
// presence matters; the referenced content is not used.
type RawReference struct {
	ID string `json:"id_str"`
}

// RawEntities carries the parsed-out hashtags of an item.
type RawEntities struct {
	Hashtags []RawHashtag `json:"hashtags"`
}

// RawHashtag is one hashtag occurrence, without the leading '#'.
type RawHashtag struct {
	Text string `json:"text"`
}

// RawMediaHolder wraps the media attachments of an item.
type RawMediaHolder struct {
	Media []RawMedia `json:"media"`
}

// RawMedia is one attachment. Type is "photo" or "video"; photos carry
// a direct URL, videos carry encoded variants.
type RawMedia struct {
	Type      string        `json:"type"`
	MediaURL  string        `json:"media_url_https"`
	VideoInfo *RawVideoInfo `json:"video_info,omitempty"`
}

// RawVideoInfo lists the available encodings of a video attachment.
type RawVideoInfo struct {
	Variants []VideoVariant `json:"variants"`
}

// VideoVariant is one encoding of a video attachment. Adaptive playlist
// variants carry no bitrate.
type VideoVariant struct {
	Bitrate     int    `json:"bitrate"`
	ContentType string `json:"content_type"`
	URL         string `json:"url"`
}

// Timestamp parses the item's origin time.
func (r RawItem) Timestamp() (time.Time, error) {
	return time.Parse(createdAtLayout, r.CreatedAt)
}

// IsReshare reports whether the item republishes another item.
func (r RawItem) IsReshare() bool {
	return r.RetweetedStatus != nil
}

// HashtagTexts returns the item's hashtags without the leading '#'.
func (r RawItem) HashtagTexts() []string {
	if len(r.Entities.Hashtags) == 0 {
		return nil
	}
	tags := make([]string, 0, len(r.Entities.Hashtags))
	for _, h := range r.Entities.Hashtags {
		tags = append(tags, h.Text)
	}
	return tags
}

// MediaAttachments returns the item's attachments, preferring the
// extended set when present (the base entities omit video variants).
func (r RawItem) MediaAttachments() []RawMedia {
	if r.ExtendedEntities == nil {
		return nil
	}
	return r.ExtendedEntities.Media
}

// JoinTerms renders a term set as the upstream's track parameter.
func JoinTerms(terms []string) string {
	return strings.Join(terms, ",")
}
