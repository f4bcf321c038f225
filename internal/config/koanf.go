// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/playwatch/config.yaml",
	"/etc/playwatch/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Plex: PlexConfig{
			PollInterval:    10 * time.Second,
			RealtimeEnabled: true,
			RequestTimeout:  30 * time.Second,
			MediaCacheSize:  2048,
			MediaCacheTTL:   6 * time.Hour,
		},
		Activity: ActivityConfig{
			DebounceInterval:   250 * time.Millisecond,
			GraceWindow:        15 * time.Second,
			StaleTimeout:       60 * time.Second,
			ReconcileInterval:  10 * time.Second,
			MaxLookupAttempts:  3,
			QueueSize:          1024,
			FeedBackoffInitial: time.Second,
			FeedBackoffMax:     32 * time.Second,
		},
		History: HistoryConfig{
			MinDuration:      30 * time.Second,
			WatchedThreshold: 0.85,
			GroupingWindow:   10 * time.Minute,
			OffsetTolerance:  60 * time.Second,
			MaxWriteAttempts: 5,
			WriteTimeout:     10 * time.Second,
		},
		Notify: NotifyConfig{
			BufferInterval:             60 * time.Second,
			ConcurrentStreamsThreshold: 2,
			DispatchTimeout:            10 * time.Second,
			MaxConcurrentDeliveries:    4,
			WatchedCacheTTL:            24 * time.Hour,
		},
		Workers: WorkersConfig{
			Count:        4,
			QueueSize:    256,
			DrainTimeout: 15 * time.Second,
			BlockTimeout: 5 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/playwatch.duckdb",
			MaxMemory: "512MB",
			Threads:   0,
		},
		WAL: WALConfig{
			Enabled:       true,
			Path:          "/data/spool",
			SyncWrites:    true,
			Compression:   true,
			RetryInterval: 30 * time.Second,
			RetryBackoff:  5 * time.Second,
			MaxBackoff:    5 * time.Minute,
			EntryTTL:      72 * time.Hour,
			GCInterval:    time.Hour,
		},
		NATS: NATSConfig{
			Enabled:           false,
			URL:               "nats://127.0.0.1:4222",
			EmbeddedServer:    true,
			StoreDir:          "/data/nats/jetstream",
			MaxMemory:         256 << 20, // 256MB
			MaxStore:          1 << 30,   // 1GB
			StreamName:        "PLAYWATCH",
			StreamRetention:   7 * 24 * time.Hour,
			MirrorTransitions: false,
		},
		Server: ServerConfig{
			Port:        8181,
			Host:        "0.0.0.0",
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		Security: SecurityConfig{
			AuthMode:        "jwt",
			TokenTTL:        24 * time.Hour,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Audit: AuditConfig{
			Enabled:         true,
			Retention:       90 * 24 * time.Hour,
			CleanupInterval: 24 * time.Hour,
			BufferSize:      256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any mapped setting
//
// Precedence is ENV > File > Defaults. The result is validated before it is returned.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// PLEX_URL -> plex.url, HISTORY_MIN_DURATION -> history.min_duration
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file found, or "" if none exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"history.disabled_users",
	"history.disabled_libraries",
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars arrive as strings while the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lower-cased environment variable names to koanf paths.
// Unmapped variables are ignored so unrelated environment cannot leak into config.
var envMappings = map[string]string{
	// Plex
	"plex_url":              "plex.url",
	"plex_token":            "plex.token",
	"plex_poll_interval":    "plex.poll_interval",
	"enable_plex_realtime":  "plex.realtime_enabled",
	"plex_request_timeout":  "plex.request_timeout",
	"plex_media_cache_size": "plex.media_cache_size",
	"plex_media_cache_ttl":  "plex.media_cache_ttl",

	// Activity
	"activity_debounce_interval":    "activity.debounce_interval",
	"activity_grace_window":         "activity.grace_window",
	"activity_stale_timeout":        "activity.stale_timeout",
	"activity_reconcile_interval":   "activity.reconcile_interval",
	"activity_max_lookup_attempts":  "activity.max_lookup_attempts",
	"activity_queue_size":           "activity.queue_size",
	"activity_feed_backoff_initial": "activity.feed_backoff_initial",
	"activity_feed_backoff_max":     "activity.feed_backoff_max",

	// History
	"history_min_duration":       "history.min_duration",
	"history_watched_threshold":  "history.watched_threshold",
	"history_grouping_window":    "history.grouping_window",
	"history_offset_tolerance":   "history.offset_tolerance",
	"history_max_write_attempts": "history.max_write_attempts",
	"history_write_timeout":      "history.write_timeout",
	"history_disabled_users":     "history.disabled_users",
	"history_disabled_libraries": "history.disabled_libraries",

	// Notify (notifiers themselves are file-only)
	"notify_buffer_interval":           "notify.buffer_interval",
	"notify_concurrent_streams":        "notify.concurrent_streams_threshold",
	"notify_dispatch_timeout":          "notify.dispatch_timeout",
	"notify_max_concurrent_deliveries": "notify.max_concurrent_deliveries",
	"notify_watched_cache_ttl":         "notify.watched_cache_ttl",

	// Workers
	"workers_count":         "workers.count",
	"workers_queue_size":    "workers.queue_size",
	"workers_drain_timeout": "workers.drain_timeout",
	"workers_block_timeout": "workers.block_timeout",

	// Database
	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	// Spool
	"wal_enabled":        "wal.enabled",
	"wal_path":           "wal.path",
	"wal_sync_writes":    "wal.sync_writes",
	"wal_compression":    "wal.compression",
	"wal_retry_interval": "wal.retry_interval",
	"wal_retry_backoff":  "wal.retry_backoff",
	"wal_max_backoff":    "wal.max_backoff",
	"wal_entry_ttl":      "wal.entry_ttl",
	"wal_gc_interval":    "wal.gc_interval",

	// NATS
	"nats_enabled":            "nats.enabled",
	"nats_url":                "nats.url",
	"nats_embedded":           "nats.embedded_server",
	"nats_store_dir":          "nats.store_dir",
	"nats_max_memory":         "nats.max_memory",
	"nats_max_store":          "nats.max_store",
	"nats_stream_name":        "nats.stream_name",
	"nats_stream_retention":   "nats.stream_retention",
	"nats_mirror_transitions": "nats.mirror_transitions",

	// Server
	"http_port":    "server.port",
	"http_host":    "server.host",
	"http_timeout": "server.timeout",
	"environment":  "server.environment",

	// Security
	"auth_mode":           "security.auth_mode",
	"jwt_secret":          "security.jwt_secret",
	"jwt_token_ttl":       "security.token_ttl",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"cors_origins":        "security.cors_origins",

	// Audit
	"audit_enabled":          "audit.enabled",
	"audit_retention":        "audit.retention",
	"audit_cleanup_interval": "audit.cleanup_interval",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - PLEX_URL -> plex.url
//   - ENABLE_PLEX_REALTIME -> plex.realtime_enabled
//   - DUCKDB_PATH -> database.path
//   - HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
