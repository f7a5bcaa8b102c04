// Livewall - Real-Time Social Wall with Moderated Ingestion
// Copyright 2026 A. Warren (awarren)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/awarren/livewall

// Package config loads and validates application configuration using
// Koanf v2 with layered sources: built-in defaults, an optional YAML file,
// and environment variables (highest priority).
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Upstream UpstreamConfig `koanf:"upstream"`
	Ingest   IngestConfig   `koanf:"ingest"`
	Seed     SeedConfig     `koanf:"seed"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host" validate:"required"`
	Port    int           `koanf:"port" validate:"gte=1,lte=65535"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// CORSOrigins lists allowed origins for the websocket upgrade endpoint.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitReqs requests per RateLimitWindow per client IP.
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"gte=1"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
}

// DatabaseConfig holds the embedded store settings.
type DatabaseConfig struct {
	// Path is the BadgerDB directory. Empty selects an in-memory store,
	// which is only useful in tests.
	Path string `koanf:"path"`
}

// UpstreamConfig holds the firehose connection settings.
type UpstreamConfig struct {
	// URL is the filtered-stream endpoint of the upstream provider.
	URL string `koanf:"url" validate:"omitempty,url"`

	// Token is the bearer token presented to the upstream, if any.
	Token string `koanf:"token"`

	// Provider is the origin tag stamped on every ingested event.
	Provider string `koanf:"provider" validate:"required"`

	// ReconnectEvery bounds how often the client dials the upstream
	// after a dropped stream.
	ReconnectEvery time.Duration `koanf:"reconnect_every" validate:"gt=0"`

	// ReconnectBurst allows a burst of immediate redials before the
	// ReconnectEvery pacing applies.
	ReconnectBurst int `koanf:"reconnect_burst" validate:"gte=1"`
}

// IngestConfig tunes the stream consumer.
type IngestConfig struct {
	// DrainGrace is how long items from a closed subscription may still
	// arrive before being discarded during a filter swap.
	DrainGrace time.Duration `koanf:"drain_grace" validate:"gte=0"`

	// InsertRetries is how many times a failed ingestion-path insert is
	// retried before the item is dropped and counted.
	InsertRetries int `koanf:"insert_retries" validate:"gte=0"`

	// BreakerFailures is the consecutive-failure count that opens the
	// store-write circuit breaker.
	BreakerFailures uint32 `koanf:"breaker_failures" validate:"gte=1"`

	// BreakerTimeout is how long the breaker stays open before probing.
	BreakerTimeout time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
}

// SeedConfig describes the settings singleton created on first start.
type SeedConfig struct {
	Hashtags       []string      `koanf:"hashtags" validate:"min=1"`
	Publishers     []string      `koanf:"publishers"`
	AutoPublishAll bool          `koanf:"auto_publish_all"`
	Window         time.Duration `koanf:"window" validate:"gt=0"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
