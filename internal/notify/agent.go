// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/playwatch/internal/config"
	"github.com/tomtom215/playwatch/internal/models"
)

// Agent delivers one action to one notifier. Agents are addressed uniformly
// by name regardless of wire protocol. Retrying is the agent's own concern;
// the engine never retries.
type Agent interface {
	Deliver(ctx context.Context, cfg config.NotifierConfig, action models.NotifyAction) error
}

// AgentFunc adapts a function to Agent.
type AgentFunc func(ctx context.Context, cfg config.NotifierConfig, action models.NotifyAction) error

// Deliver calls f.
func (f AgentFunc) Deliver(ctx context.Context, cfg config.NotifierConfig, action models.NotifyAction) error {
	return f(ctx, cfg, action)
}

// ErrDeliveryFailed wraps every non-2xx response from an HTTP agent.
var ErrDeliveryFailed = errors.New("notification delivery failed")

// DeliveryError describes a rejected HTTP delivery.
type DeliveryError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *DeliveryError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("endpoint returned %d (retry after %v): %s", e.StatusCode, e.RetryAfter, e.Body)
	}
	return fmt.Sprintf("endpoint returned %d: %s", e.StatusCode, e.Body)
}

func (e *DeliveryError) Unwrap() error { return ErrDeliveryFailed }

// Transient reports whether the failure may succeed later.
func (e *DeliveryError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

const userAgent = "Playwatch-Notify/1.0"

// maxResponseBody bounds how much of an error response is kept.
const maxResponseBody = 4096

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// checkResponse turns a non-2xx response into a *DeliveryError.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		body = []byte("(failed to read response)")
	}
	derr := &DeliveryError{StatusCode: resp.StatusCode, Body: string(body)}
	if resp.StatusCode == http.StatusTooManyRequests {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			derr.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return derr
}
