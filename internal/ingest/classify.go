// Livewall - Real-Time Social Wall with Moderated Ingestion
// Copyright 2026 A. Warren (awarren)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/awarren/livewall

package ingest

import (
	"strings"
	"time"

	"github.com/awarren/livewall/internal/firehose"
	"github.com/awarren/livewall/internal/models"
)

// Rejection reasons, used as metric labels.
const (
	RejectWindow  = "window"
	RejectReshare = "reshare"
	RejectHashtag = "hashtag"
)

// mp4ContentType is the progressive encoding accepted for video media.
// Adaptive playlist variants (application/x-mpegURL) are skipped.
const mp4ContentType = "video/mp4"

// Verdict is the outcome of classifying one upstream item.
type Verdict struct {
	Accept    bool
	Publish   bool
	Reason    string
	Timestamp time.Time
}

// Classify decides whether an upstream item becomes an Event. Checks are
// ordered cheapest-reliable first: origin time inside the configured
// window, not a reshare, then at least one configured hashtag present.
// For accepted items the publish flag applies the auto-publish rule.
func Classify(item firehose.RawItem, settings *models.Settings) Verdict {
	ts, err := item.Timestamp()
	if err != nil || !settings.InWindow(ts) {
		return Verdict{Reason: RejectWindow}
	}

	if item.IsReshare() {
		return Verdict{Reason: RejectReshare, Timestamp: ts}
	}

	if !hasConfiguredHashtag(item, settings) {
		return Verdict{Reason: RejectHashtag, Timestamp: ts}
	}

	return Verdict{
		Accept:    true,
		Publish:   settings.AutoPublishAll || settings.HasPublisher(item.User.ScreenName),
		Timestamp: ts,
	}
}

// hasConfiguredHashtag matches the item's hashtags against the settings.
// Upstream hashtags arrive without the leading '#', configured terms
// usually carry one, so both forms are tried.
func hasConfiguredHashtag(item firehose.RawItem, settings *models.Settings) bool {
	for _, tag := range item.HashtagTexts() {
		if settings.HasHashtag(tag) || settings.HasHashtag("#"+tag) {
			return true
		}
	}
	return false
}

// SelectMedia picks the attachment to carry on the Event. The first
// photo wins directly; for a video the highest-bitrate progressive mp4
// variant is chosen. Items whose attachments all fail to qualify carry
// no media.
func SelectMedia(item firehose.RawItem) *models.Media {
	for _, m := range item.MediaAttachments() {
		switch strings.ToLower(m.Type) {
		case "photo":
			if m.MediaURL != "" {
				return &models.Media{Kind: models.MediaKindPhoto, URL: m.MediaURL}
			}
		case "video":
			if url := bestVideoURL(m.VideoInfo); url != "" {
				return &models.Media{Kind: models.MediaKindVideo, URL: url}
			}
		}
	}
	return nil
}

func bestVideoURL(info *firehose.RawVideoInfo) string {
	if info == nil {
		return ""
	}
	best := -1
	url := ""
	for _, v := range info.Variants {
		if v.ContentType != mp4ContentType {
			continue
		}
		if v.Bitrate > best {
			best = v.Bitrate
			url = v.URL
		}
	}
	return url
}

// BuildEvent converts an accepted item into a fresh Event record.
func BuildEvent(item firehose.RawItem, verdict Verdict, provider string) *models.Event {
	return &models.Event{
		Content:   item.Text,
		Media:     SelectMedia(item),
		Provider:  provider,
		Username:  item.User.ScreenName,
		Timestamp: verdict.Timestamp,
		Published: verdict.Publish,
	}
}
