// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// urlRule describes what a configured endpoint may look like.
type urlRule struct {
	schemes  []string
	baseOnly bool // no path beyond "/" and no query
}

var (
	plexURLRule    = urlRule{schemes: []string{"http", "https"}, baseOnly: true}
	webhookURLRule = urlRule{schemes: []string{"http", "https"}}
	natsURLRule    = urlRule{schemes: []string{"nats", "tls", "ws", "wss"}}
)

var discordWebhookHosts = []string{"discord.com", "discordapp.com"}

func (r urlRule) check(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if !slices.Contains(r.schemes, u.Scheme) {
		return nil, fmt.Errorf("scheme must be one of %s, got: %q", strings.Join(r.schemes, ", "), u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if r.baseOnly {
		if u.Path != "" && u.Path != "/" {
			return nil, fmt.Errorf("should be base URL only, remove path: %s", u.Path)
		}
		if u.RawQuery != "" {
			return nil, fmt.Errorf("should not contain query parameters, remove: ?%s", u.RawQuery)
		}
	}
	return u, nil
}

// validatePlexURL checks the server base URL, e.g. http://plex.local:32400.
func validatePlexURL(raw string) error {
	if _, err := plexURLRule.check(raw); err != nil {
		return fmt.Errorf("PLEX_URL %w", err)
	}
	return nil
}

// validateWebhookURL accepts any http/https URL with a host.
func validateWebhookURL(raw string) error {
	_, err := webhookURLRule.check(raw)
	return err
}

// validateDiscordURL additionally requires a Discord webhook endpoint.
func validateDiscordURL(raw string) error {
	u, err := webhookURLRule.check(raw)
	if err != nil {
		return err
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	if !slices.Contains(discordWebhookHosts, host) || !strings.HasPrefix(u.Path, "/api/webhooks/") {
		return fmt.Errorf("url must be a Discord webhook URL")
	}
	return nil
}

func validateNATSURL(raw string) error {
	_, err := natsURLRule.check(raw)
	return err
}
