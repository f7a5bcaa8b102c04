// Livewall - Real-Time Social Wall with Moderated Ingestion
// Copyright 2026 A. Warren (awarren)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/awarren/livewall

package firehose

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/awarren/livewall/internal/logging"
	"github.com/awarren/livewall/internal/metrics"
)

const (
	// maxLineBytes bounds a single streamed document. Items beyond this
	// are malformed and abort the current connection.
	maxLineBytes = 1 << 20

	// itemBuffer decouples the network reader from the consumer briefly.
	itemBuffer = 64
)

// HTTPClientConfig configures the streaming client.
type HTTPClientConfig struct {
	// URL is the filtered-stream endpoint, e.g. ".../statuses/filter".
	URL string

	// Token is sent as a bearer credential when non-empty.
	Token string

	// ReconnectEvery paces reconnect attempts after a dropped connection.
	ReconnectEvery time.Duration

	// ReconnectBurst allows this many immediate reconnects before pacing.
	ReconnectBurst int
}

// HTTPClient reads newline-delimited JSON documents from a filtered
// streaming endpoint. Dropped connections are redialed under a rate
// limiter so a flapping upstream cannot turn into a dial storm.
type HTTPClient struct {
	cfg     HTTPClientConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPClient creates a streaming client for the given endpoint.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.ReconnectEvery <= 0 {
		cfg.ReconnectEvery = 5 * time.Second
	}
	if cfg.ReconnectBurst <= 0 {
		cfg.ReconnectBurst = 1
	}
	return &HTTPClient{
		cfg: cfg,
		client: &http.Client{
			// No overall timeout: the response body is a long-lived stream.
			Timeout: 0,
		},
		limiter: rate.NewLimiter(rate.Every(cfg.ReconnectEvery), cfg.ReconnectBurst),
	}
}

// Open starts a filtered subscription tracking the given terms.
func (c *HTTPClient) Open(ctx context.Context, terms []string) (Stream, error) {
	if len(terms) == 0 {
		return nil, ErrEmptyFilter
	}

	streamCtx, cancel := context.WithCancel(ctx)
	s := &httpStream{
		client: c,
		track:  JoinTerms(terms),
		items:  make(chan RawItem, itemBuffer),
		cancel: cancel,
	}

	s.wg.Add(1)
	go s.run(streamCtx)

	logging.Info().
		Str("track", s.track).
		Msg("Firehose subscription opened")

	return s, nil
}

// httpStream is one live subscription. run owns the connection; Close
// cancels it and waits for the reader to exit.
type httpStream struct {
	client *HTTPClient
	track  string
	items  chan RawItem
	cancel context.CancelFunc

	wg        sync.WaitGroup
	closeOnce sync.Once
}

func (s *httpStream) Items() <-chan RawItem {
	return s.items
}

func (s *httpStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
	return nil
}

// run dials, reads, and redials until the context ends. The items
// channel is closed on exit so consumers observe termination.
func (s *httpStream) run(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.items)

	for {
		if err := s.client.limiter.Wait(ctx); err != nil {
			return
		}

		if err := s.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.IngestSubscriptionErrors.Inc()
			logging.Warn().
				Err(err).
				Str("track", s.track).
				Msg("Firehose connection lost, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// consume holds one connection open and forwards its documents.
func (s *httpStream) consume(ctx context.Context) error {
	req, err := s.client.newRequest(ctx, s.track)
	if err != nil {
		return err
	}

	resp, err := s.client.client.Do(req)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logging.Debug().Err(cerr).Msg("Failed to close stream body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream rejected: status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			// Keep-alive newline.
			continue
		}

		var item RawItem
		if err := json.Unmarshal(line, &item); err != nil {
			logging.Debug().
				Err(err).
				Int("bytes", len(line)).
				Msg("Skipping undecodable stream document")
			continue
		}

		select {
		case s.items <- item:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return fmt.Errorf("stream ended")
}

func (c *HTTPClient) newRequest(ctx context.Context, track string) (*http.Request, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse stream url: %w", err)
	}
	q := u.Query()
	q.Set("track", track)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	return req, nil
}
