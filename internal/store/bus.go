// Livewall - Real-Time Social Wall with Moderated Ingestion
// Copyright 2026 A. Warren (awarren)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/awarren/livewall

package store

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/awarren/livewall/internal/logging"
)

// Bus is the in-process pub/sub carrying store change records. Each store
// is the single producer for its topic; consumers subscribe independently
// and receive changes published after they subscribed (no replay).
type Bus struct {
	pubSub *gochannel.GoChannel
}

// NewBus creates the change notification bus.
func NewBus() *Bus {
	return &Bus{
		pubSub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 256,
			},
			newWatermillLogger(logging.Logger()),
		),
	}
}

// publish marshals v and publishes it on topic. Callers serialize their
// own publishes so delivery order matches commit order.
func (b *Bus) publish(topic string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal change record: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	if err := b.pubSub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// SubscribeEventChanges returns a channel of event change records. The
// channel closes when ctx is canceled.
func (b *Bus) SubscribeEventChanges(ctx context.Context) (<-chan EventChange, error) {
	msgs, err := b.pubSub.Subscribe(ctx, TopicEventChanges)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", TopicEventChanges, err)
	}

	out := make(chan EventChange, 64)
	go func() {
		defer close(out)
		for msg := range msgs {
			var change EventChange
			if err := json.Unmarshal(msg.Payload, &change); err != nil {
				logging.Warn().Err(err).Msg("malformed event change record dropped")
				msg.Ack()
				continue
			}
			select {
			case out <- change:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}()
	return out, nil
}

// SubscribeSettingsChanges returns a channel of settings change records.
// The channel closes when ctx is canceled.
func (b *Bus) SubscribeSettingsChanges(ctx context.Context) (<-chan SettingsChange, error) {
	msgs, err := b.pubSub.Subscribe(ctx, TopicSettingsChanges)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", TopicSettingsChanges, err)
	}

	out := make(chan SettingsChange, 16)
	go func() {
		defer close(out)
		for msg := range msgs {
			var change SettingsChange
			if err := json.Unmarshal(msg.Payload, &change); err != nil {
				logging.Warn().Err(err).Msg("malformed settings change record dropped")
				msg.Ack()
				continue
			}
			select {
			case out <- change:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}()
	return out, nil
}

// Close shuts down the bus and closes all subscriber channels.
func (b *Bus) Close() error {
	return b.pubSub.Close()
}

// watermillLogger adapts zerolog to watermill.LoggerAdapter.
type watermillLogger struct {
	logger zerolog.Logger
}

func newWatermillLogger(logger zerolog.Logger) watermillLogger {
	return watermillLogger{logger: logger}
}

func (w watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.event(w.logger.Error().Err(err), fields).Msg(msg)
}

func (w watermillLogger) Info(msg string, fields watermill.LogFields) {
	w.event(w.logger.Debug(), fields).Msg(msg)
}

func (w watermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.event(w.logger.Debug(), fields).Msg(msg)
}

func (w watermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.event(w.logger.Trace(), fields).Msg(msg)
}

func (w watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	logger := w.logger
	for k, v := range fields {
		logger = logger.With().Interface(k, v).Logger()
	}
	return watermillLogger{logger: logger}
}

func (w watermillLogger) event(e *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	return e
}
