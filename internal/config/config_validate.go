// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/playwatch/internal/validation"
)

// Validate checks struct tags first, then the cross-field rules.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}

	validators := []func() error{
		c.validatePlex,
		c.validateActivity,
		c.validateHistory,
		c.validateNotify,
		c.validateWAL,
		c.validateNATS,
		c.validateServer,
		c.validateSecurity,
		c.validateLogging,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validatePlex() error {
	if err := validatePlexURL(c.Plex.URL); err != nil {
		return err
	}
	if containsPlaceholder(c.Plex.Token) {
		return fmt.Errorf("PLEX_TOKEN contains a placeholder value")
	}
	return nil
}

// validateActivity keeps the poll-absence grace inside the stale timeout so a
// vanished session is stopped by the poll before the sweep would stop it.
func (c *Config) validateActivity() error {
	a := c.Activity
	if a.GraceWindow > a.StaleTimeout {
		return fmt.Errorf("activity.grace_window (%v) must not exceed activity.stale_timeout (%v)", a.GraceWindow, a.StaleTimeout)
	}
	if a.FeedBackoffInitial > a.FeedBackoffMax {
		return fmt.Errorf("activity.feed_backoff_initial (%v) must not exceed activity.feed_backoff_max (%v)", a.FeedBackoffInitial, a.FeedBackoffMax)
	}
	if a.ReconcileInterval > a.StaleTimeout {
		return fmt.Errorf("activity.reconcile_interval (%v) must not exceed activity.stale_timeout (%v)", a.ReconcileInterval, a.StaleTimeout)
	}
	return nil
}

func (c *Config) validateHistory() error {
	h := c.History
	if h.GroupingWindow > 0 && h.OffsetTolerance > h.GroupingWindow {
		return fmt.Errorf("history.offset_tolerance (%v) must not exceed history.grouping_window (%v)", h.OffsetTolerance, h.GroupingWindow)
	}
	for _, lib := range h.DisabledLibraries {
		if strings.TrimSpace(lib) == "" {
			return fmt.Errorf("history.disabled_libraries contains an empty section id")
		}
	}
	return nil
}

// validateNotify checks agent-specific settings. Condition expressions are
// compiled when the notification engine is built.
func (c *Config) validateNotify() error {
	seen := make(map[string]struct{}, len(c.Notify.Notifiers))
	for i := range c.Notify.Notifiers {
		n := &c.Notify.Notifiers[i]
		if _, dup := seen[n.Name]; dup {
			return fmt.Errorf("notify.notifiers: duplicate name %q", n.Name)
		}
		seen[n.Name] = struct{}{}

		if err := c.validateNotifier(n); err != nil {
			return fmt.Errorf("notify.notifiers[%s]: %w", n.Name, err)
		}
	}
	return nil
}

func (c *Config) validateNotifier(n *NotifierConfig) error {
	switch n.Agent {
	case "webhook":
		return validateWebhookURL(n.URL)
	case "discord":
		return validateDiscordURL(n.URL)
	case "bus":
		if !c.NATS.Enabled {
			return fmt.Errorf("bus agent requires nats.enabled")
		}
		if n.Subject != "" && strings.ContainsAny(n.Subject, "*> ") {
			return fmt.Errorf("subject %q must not contain wildcards or spaces", n.Subject)
		}
	}
	return nil
}

func (c *Config) validateWAL() error {
	if c.WAL.Enabled && c.WAL.Path == "" {
		return fmt.Errorf("wal.path is required when wal.enabled is true")
	}
	if c.WAL.RetryBackoff > c.WAL.MaxBackoff {
		return fmt.Errorf("wal.retry_backoff (%v) must not exceed wal.max_backoff (%v)", c.WAL.RetryBackoff, c.WAL.MaxBackoff)
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if err := validateNATSURL(c.NATS.URL); err != nil {
		return fmt.Errorf("NATS_URL: %w", err)
	}
	if c.NATS.EmbeddedServer && c.NATS.StoreDir == "" {
		return fmt.Errorf("nats.store_dir is required for the embedded server")
	}
	if c.NATS.StreamName == "" || strings.ContainsAny(c.NATS.StreamName, ".*> ") {
		return fmt.Errorf("nats.stream_name %q is not a valid stream name", c.NATS.StreamName)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	return nil
}

// validAuthModes defines the allowed authentication modes
var validAuthModes = map[string]bool{
	"none": true,
	"jwt":  true,
}

func (c *Config) validateSecurity() error {
	if !validAuthModes[c.Security.AuthMode] {
		return fmt.Errorf("AUTH_MODE must be one of: none, jwt")
	}
	if c.Security.AuthMode == "none" && c.IsProduction() {
		return fmt.Errorf("AUTH_MODE=none is not allowed when ENVIRONMENT=production")
	}
	if c.Security.AuthMode == "jwt" {
		if err := c.validateJWTSecret(); err != nil {
			return err
		}
	}
	if c.Security.AuthMode != "none" && c.hasWildcardCORS() && c.IsProduction() {
		return fmt.Errorf("CORS_ORIGINS=* (wildcard) is not allowed in production with authentication enabled; " +
			"set specific origins or use ENVIRONMENT=development")
	}
	return c.validateRateLimits()
}

// validateJWTSecret validates the JWT secret configuration
func (c *Config) validateJWTSecret() error {
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when AUTH_MODE is jwt")
	}
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters for security")
	}
	if containsPlaceholder(c.Security.JWTSecret) {
		return fmt.Errorf("JWT_SECRET contains a placeholder value - generate a secure secret with: openssl rand -base64 32")
	}
	return nil
}

// hasWildcardCORS checks if CORS is configured with wildcard origins
func (c *Config) hasWildcardCORS() bool {
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

// ShouldWarnAboutCORS returns true if the CORS configuration should be flagged at startup.
func (c *Config) ShouldWarnAboutCORS() bool {
	return c.Security.AuthMode != "none" && c.hasWildcardCORS()
}

// Rate limit constants
const (
	minRateLimitRequests = 1
	maxRateLimitRequests = 100000
	minRateLimitWindow   = time.Second
	maxRateLimitWindow   = time.Hour
)

func (c *Config) validateRateLimits() error {
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < minRateLimitRequests || c.Security.RateLimitReqs > maxRateLimitRequests {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be between %d and %d", minRateLimitRequests, maxRateLimitRequests)
	}
	if c.Security.RateLimitWindow < minRateLimitWindow || c.Security.RateLimitWindow > maxRateLimitWindow {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be between %v and %v", minRateLimitWindow, maxRateLimitWindow)
	}
	return nil
}

// IsProduction returns true if the application is running in production mode.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Server.Environment)
	return env == "production" || env == "prod"
}

// validLogLevels defines the allowed log levels
var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validLogFormats defines the allowed log formats
var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

// placeholderPatterns catches values copied from example configs.
var placeholderPatterns = []string{
	"REPLACE",
	"CHANGEME",
	"CHANGE_ME",
	"YOUR_SECRET",
	"YOUR_TOKEN",
	"PLACEHOLDER",
	"EXAMPLE",
}

func containsPlaceholder(value string) bool {
	upper := strings.ToUpper(value)
	for _, pattern := range placeholderPatterns {
		if strings.Contains(upper, pattern) {
			return true
		}
	}
	return false
}
