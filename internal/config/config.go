// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package config

import "time"

// Config holds all application configuration loaded by LoadWithKoanf.
//
// Config is immutable after loading and safe for concurrent read access.
type Config struct {
	Plex     PlexConfig     `koanf:"plex"`
	Activity ActivityConfig `koanf:"activity"`
	History  HistoryConfig  `koanf:"history"`
	Notify   NotifyConfig   `koanf:"notify"`
	Workers  WorkersConfig  `koanf:"workers"`
	Database DatabaseConfig `koanf:"database"`
	WAL      WALConfig      `koanf:"wal"`
	NATS     NATSConfig     `koanf:"nats"`
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Audit    AuditConfig    `koanf:"audit"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// PlexConfig holds the media server connection settings.
//
// Environment Variables:
//   - PLEX_URL: Plex Media Server URL (required)
//   - PLEX_TOKEN: X-Plex-Token (required)
//   - PLEX_POLL_INTERVAL: /status/sessions poll interval (default: 10s)
//   - ENABLE_PLEX_REALTIME: use the websocket notification feed (default: true)
type PlexConfig struct {
	URL             string        `koanf:"url" validate:"required"`
	Token           string        `koanf:"token" validate:"required"`
	PollInterval    time.Duration `koanf:"poll_interval" validate:"gte=1s"`
	RealtimeEnabled bool          `koanf:"realtime_enabled"`
	RequestTimeout  time.Duration `koanf:"request_timeout" validate:"gt=0"`
	MediaCacheSize  int           `koanf:"media_cache_size" validate:"gte=1"`
	MediaCacheTTL   time.Duration `koanf:"media_cache_ttl" validate:"gt=0"`
}

// ActivityConfig tunes the session state machine and reconciler.
type ActivityConfig struct {
	// DebounceInterval collapses bursts of push events for the same session key.
	DebounceInterval time.Duration `koanf:"debounce_interval" validate:"gte=0"`

	// GraceWindow is how long a session may be missing from a successful
	// poll before it is stopped. It is the inactivity timeout for sessions
	// that vanish from polls: the stop lands between GraceWindow and
	// GraceWindow + PollInterval after the session was last seen. Must not
	// exceed StaleTimeout, which covers sessions no poll has reported on.
	GraceWindow time.Duration `koanf:"grace_window" validate:"gt=0"`

	// StaleTimeout stops sessions that have not been seen for this long.
	StaleTimeout      time.Duration `koanf:"stale_timeout" validate:"gt=0"`
	ReconcileInterval time.Duration `koanf:"reconcile_interval" validate:"gt=0"`

	MaxLookupAttempts int `koanf:"max_lookup_attempts" validate:"gte=1"`
	QueueSize         int `koanf:"queue_size" validate:"gte=1"`

	FeedBackoffInitial time.Duration `koanf:"feed_backoff_initial" validate:"gt=0"`
	FeedBackoffMax     time.Duration `koanf:"feed_backoff_max" validate:"gt=0"`
}

// HistoryConfig holds the retention filter and grouping rule.
type HistoryConfig struct {
	MinDuration      time.Duration `koanf:"min_duration" validate:"gte=0"`
	WatchedThreshold float64       `koanf:"watched_threshold" validate:"gt=0,lte=1"`

	// GroupingWindow is the largest gap between plays that still merge.
	// Zero disables grouping.
	GroupingWindow  time.Duration `koanf:"grouping_window" validate:"gte=0"`
	OffsetTolerance time.Duration `koanf:"offset_tolerance" validate:"gte=0"`

	MaxWriteAttempts int           `koanf:"max_write_attempts" validate:"gte=1"`
	WriteTimeout     time.Duration `koanf:"write_timeout" validate:"gt=0"`

	DisabledUsers     []int    `koanf:"disabled_users"`
	DisabledLibraries []string `koanf:"disabled_libraries"`
}

// NotifyConfig holds the notification trigger policy and the notifier list.
type NotifyConfig struct {
	// BufferInterval is the on_buffer minimum interval unless MinIntervals
	// sets one.
	BufferInterval time.Duration `koanf:"buffer_interval" validate:"gte=0"`

	// MinIntervals holds the minimum time between two notifications of the
	// same action for one session key, for example {on_pause: 30s}.
	MinIntervals map[string]time.Duration `koanf:"min_intervals" validate:"dive,keys,notify_action,endkeys,gte=0"`

	ConcurrentStreamsThreshold int           `koanf:"concurrent_streams_threshold" validate:"gte=2"`
	DispatchTimeout            time.Duration `koanf:"dispatch_timeout" validate:"gt=0"`
	MaxConcurrentDeliveries    int           `koanf:"max_concurrent_deliveries" validate:"gte=1"`

	// WatchedCacheTTL bounds how long fired on_watched session ids are remembered.
	WatchedCacheTTL time.Duration `koanf:"watched_cache_ttl" validate:"gt=0"`

	Notifiers []NotifierConfig `koanf:"notifiers" validate:"dive"`
}

// NotifierConfig is one configured notification target.
//
// Condition is a boolean expression over notification parameters, for example
//
//	user == "alice" and (media_type == "movie" or progress_percent >= 90)
//
// An empty condition always matches.
type NotifierConfig struct {
	Name      string   `koanf:"name" validate:"required"`
	Agent     string   `koanf:"agent" validate:"required,oneof=webhook discord log bus"`
	Enabled   bool     `koanf:"enabled"`
	Actions   []string `koanf:"actions" validate:"required,min=1,dive,notify_action"`
	Condition string   `koanf:"condition"`

	URL     string            `koanf:"url"`
	Headers map[string]string `koanf:"headers"`
	Subject string            `koanf:"subject"`

	// Body is a text/template rendered against the action. Empty uses the
	// agent's default message.
	Body     string `koanf:"body"`
	Username string `koanf:"username"`

	// RateLimit is deliveries per second; zero disables limiting.
	RateLimit float64 `koanf:"rate_limit" validate:"gte=0"`
	Burst     int     `koanf:"burst" validate:"gte=0"`
}

// WorkersConfig sizes the downstream worker pool.
type WorkersConfig struct {
	Count        int           `koanf:"count" validate:"gte=1"`
	QueueSize    int           `koanf:"queue_size" validate:"gte=1"`
	DrainTimeout time.Duration `koanf:"drain_timeout" validate:"gt=0"`

	// BlockTimeout bounds how long a guaranteed handler may wait for queue space.
	BlockTimeout time.Duration `koanf:"block_timeout" validate:"gt=0"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads" validate:"gte=0"` // 0 = use NumCPU
}

// WALConfig holds the BadgerDB spool settings for failed history writes.
// The attempt budget comes from history.max_write_attempts.
type WALConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Path          string        `koanf:"path"`
	SyncWrites    bool          `koanf:"sync_writes"`
	Compression   bool          `koanf:"compression"`
	RetryInterval time.Duration `koanf:"retry_interval" validate:"gt=0"`
	RetryBackoff  time.Duration `koanf:"retry_backoff" validate:"gt=0"`
	MaxBackoff    time.Duration `koanf:"max_backoff" validate:"gt=0"`
	EntryTTL      time.Duration `koanf:"entry_ttl" validate:"gte=0"`
	GCInterval    time.Duration `koanf:"gc_interval" validate:"gte=0"`
}

// NATSConfig holds the Watermill/NATS JetStream settings used by the bus
// notifier agent and the transition mirror.
type NATSConfig struct {
	Enabled        bool   `koanf:"enabled"`
	URL            string `koanf:"url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`
	MaxMemory      int64  `koanf:"max_memory" validate:"gte=0"`
	MaxStore       int64  `koanf:"max_store" validate:"gte=0"`

	StreamName      string        `koanf:"stream_name"`
	StreamRetention time.Duration `koanf:"stream_retention" validate:"gte=0"`

	// MirrorTransitions publishes every session transition to
	// playwatch.transitions.<kind>.
	MirrorTransitions bool `koanf:"mirror_transitions"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int           `koanf:"port"`
	Host        string        `koanf:"host"`
	Timeout     time.Duration `koanf:"timeout" validate:"gt=0"`
	Environment string        `koanf:"environment"` // development, staging, production
}

// SecurityConfig holds admin API authentication and request limits.
type SecurityConfig struct {
	AuthMode          string        `koanf:"auth_mode"` // none or jwt
	JWTSecret         string        `koanf:"jwt_secret"`
	TokenTTL          time.Duration `koanf:"token_ttl" validate:"gte=0"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// AuditConfig controls the admin action audit trail.
//
// Environment Variables:
//   - AUDIT_ENABLED: record admin API actions (default: true)
//   - AUDIT_RETENTION: how long audit events are kept (default: 2160h)
type AuditConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Retention       time.Duration `koanf:"retention" validate:"gte=0"`
	CleanupInterval time.Duration `koanf:"cleanup_interval" validate:"gt=0"`
	BufferSize      int           `koanf:"buffer_size" validate:"gte=1"`
}

// LoggingConfig holds logging settings.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: true/false - include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
