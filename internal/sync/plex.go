// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

/*
plex.go - Plex Media Server API Client

PlexClient Features:
  - HTTP client with configurable timeout (30s default)
  - X-Plex-Token authentication
  - Automatic rate limit handling with exponential backoff
  - Circuit breaker around every call

API Methods:
  - GetSessions(): /status/sessions, the full active session list
  - GetMetadata(): /library/metadata/{ratingKey}
*/

//nolint:staticcheck // File documentation, not package doc
package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/playwatch/internal/config"
	"github.com/tomtom215/playwatch/internal/logging"
	"github.com/tomtom215/playwatch/internal/models"
)

// PlexClient talks to the Plex Media Server REST API.
type PlexClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker[any]

	// retryBase is the first 429 backoff step. Tests shorten it.
	retryBase time.Duration
}

// NewPlexClient creates a client for cfg.URL authenticated with cfg.Token.
func NewPlexClient(cfg *config.PlexConfig) *PlexClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PlexClient{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		cb:         newBreaker("plex-api"),
		retryBase:  time.Second,
	}
}

// GetSessions returns every active playback on the server. Any failure is a
// *SourceError; an empty slice means the server really is idle.
func (c *PlexClient) GetSessions(ctx context.Context) ([]models.PlexSession, error) {
	var resp models.PlexSessionsResponse
	if err := c.getJSON(ctx, "sessions", "/status/sessions", &resp); err != nil {
		return nil, err
	}
	return resp.MediaContainer.Metadata, nil
}

// GetMetadata returns library metadata for ratingKey, or ErrItemNotFound.
func (c *PlexClient) GetMetadata(ctx context.Context, ratingKey string) (*models.PlexMetadata, error) {
	var resp models.PlexMetadataResponse
	path := "/library/metadata/" + url.PathEscape(ratingKey)
	if err := c.getJSON(ctx, "metadata", path, &resp); err != nil {
		return nil, err
	}
	if len(resp.MediaContainer.Metadata) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, ratingKey)
	}
	return &resp.MediaContainer.Metadata[0], nil
}

// getJSON runs a GET through the breaker and decodes a 200 body into result.
func (c *PlexClient) getJSON(ctx context.Context, op, path string, result any) error {
	_, err := c.cb.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("X-Plex-Token", c.token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.doRequestWithRateLimit(req)
		if err != nil {
			return nil, sourceErr(op, 0, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound && op == "metadata":
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil, ErrItemNotFound
		case resp.StatusCode != http.StatusOK:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, sourceErr(op, resp.StatusCode, fmt.Errorf("unexpected status: %s", strings.TrimSpace(string(body))))
		}

		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return nil, sourceErr(op, 0, fmt.Errorf("decode response: %w", err))
		}
		return nil, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return sourceErr(op, 0, err)
	}
	return err
}

// doRequestWithRateLimit executes req, retrying HTTP 429 up to 5 times with
// exponential backoff (1s, 2s, 4s, 8s, 16s) or the server's Retry-After.
func (c *PlexClient) doRequestWithRateLimit(req *http.Request) (*http.Response, error) {
	const maxRetries = 5

	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("execute request: %w", err)
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}
		resp.Body.Close()

		if attempt == maxRetries {
			break
		}

		retryDelay := c.retryBase * (1 << attempt)
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
				retryDelay = seconds
			}
		}

		logging.Warn().
			Dur("retry_delay", retryDelay).
			Int("attempt", attempt+1).
			Int("max_retries", maxRetries).
			Msg("Plex API rate limited (HTTP 429), retrying")

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(retryDelay):
		}
	}

	return nil, fmt.Errorf("%w after %d retries", ErrRateLimited, maxRetries)
}
