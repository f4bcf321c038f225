// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package wal

import (
	"fmt"
	"time"
)

// Config holds spool settings.
type Config struct {
	// Path is the BadgerDB directory.
	Path string

	// SyncWrites fsyncs every write. Leave on outside tests.
	SyncWrites bool

	// RetryInterval is how often the retry loop scans pending entries.
	RetryInterval time.Duration

	// MaxAttempts is the total number of write attempts (including the
	// one that put the entry in the spool) before it is abandoned.
	MaxAttempts int

	// RetryBackoff is the base delay between attempts; it doubles per attempt.
	RetryBackoff time.Duration

	// MaxBackoff caps the per-entry delay.
	MaxBackoff time.Duration

	// EntryTTL drops entries that have been pending for too long regardless of attempts.
	EntryTTL time.Duration

	// GCInterval is how often the Badger value log is garbage collected.
	GCInterval time.Duration

	Compression bool
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Path:          "/data/spool",
		SyncWrites:    true,
		RetryInterval: 30 * time.Second,
		MaxAttempts:   5,
		RetryBackoff:  5 * time.Second,
		MaxBackoff:    5 * time.Minute,
		EntryTTL:      72 * time.Hour,
		GCInterval:    time.Hour,
		Compression:   true,
	}
}

// ConfigError reports an invalid Config field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("wal config: %s %s", e.Field, e.Message)
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Path == "" {
		return &ConfigError{Field: "Path", Message: "is required"}
	}
	if c.RetryInterval <= 0 {
		return &ConfigError{Field: "RetryInterval", Message: "must be positive"}
	}
	if c.MaxAttempts < 1 {
		return &ConfigError{Field: "MaxAttempts", Message: "must be at least 1"}
	}
	if c.RetryBackoff <= 0 {
		return &ConfigError{Field: "RetryBackoff", Message: "must be positive"}
	}
	if c.MaxBackoff < c.RetryBackoff {
		return &ConfigError{Field: "MaxBackoff", Message: "must not be below RetryBackoff"}
	}
	return nil
}
