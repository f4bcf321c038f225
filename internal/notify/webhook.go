// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/playwatch/internal/config"
	"github.com/tomtom215/playwatch/internal/models"
)

// WebhookAgent POSTs a JSON document to a configured URL.
type WebhookAgent struct {
	client *http.Client
}

// NewWebhookAgent creates a generic webhook agent.
func NewWebhookAgent() *WebhookAgent {
	return &WebhookAgent{client: newHTTPClient()}
}

// WebhookPayload is the generic webhook body.
type WebhookPayload struct {
	Action     string              `json:"action"`
	Notifier   string              `json:"notifier"`
	Message    string              `json:"message"`
	Transition string              `json:"transition"`
	Timestamp  time.Time           `json:"timestamp"`
	Params     models.ActionParams `json:"params"`
	Session    models.Session      `json:"session"`
}

// Deliver sends one action. Non-2xx responses return a *DeliveryError.
func (w *WebhookAgent) Deliver(ctx context.Context, cfg config.NotifierConfig, a models.NotifyAction) error {
	msg, err := RenderMessage(cfg.Body, a)
	if err != nil {
		return err
	}

	body, err := json.Marshal(WebhookPayload{
		Action:     string(a.Kind),
		Notifier:   cfg.Name,
		Message:    msg,
		Transition: a.Transition,
		Timestamp:  a.At.UTC(),
		Params:     a.Params,
		Session:    a.Session,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	return postJSON(ctx, w.client, cfg.URL, cfg.Headers, body)
}

func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	return checkResponse(resp)
}
