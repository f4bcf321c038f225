// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

/*
Package config loads and validates Playwatch configuration.

# Configuration Sources

LoadWithKoanf layers three sources, later ones winning:
  - Built-in defaults (defaultConfig)
  - An optional YAML file: CONFIG_PATH, else config.yaml, config.yml,
    /etc/playwatch/config.yaml, /etc/playwatch/config.yml
  - Environment variables listed in envMappings

Notifiers can only be declared in the YAML file:

	notify:
	  notifiers:
	    - name: movie-night
	      agent: discord
	      enabled: true
	      url: https://discord.com/api/webhooks/123/abc
	      actions: [on_play, on_watched]
	      condition: user == "alice" and media_type == "movie"

# Environment Variables

Media server:
  - PLEX_URL, PLEX_TOKEN (required)
  - PLEX_POLL_INTERVAL (default: 10s)
  - ENABLE_PLEX_REALTIME (default: true)

Activity:
  - ACTIVITY_GRACE_WINDOW (default: 15s), ACTIVITY_STALE_TIMEOUT (default: 60s)
  - ACTIVITY_RECONCILE_INTERVAL (default: 10s)
  - ACTIVITY_DEBOUNCE_INTERVAL (default: 250ms)

History:
  - HISTORY_MIN_DURATION (default: 30s)
  - HISTORY_WATCHED_THRESHOLD (default: 0.85)
  - HISTORY_GROUPING_WINDOW (default: 10m, 0 disables grouping)
  - HISTORY_MAX_WRITE_ATTEMPTS (default: 5)
  - HISTORY_DISABLED_USERS, HISTORY_DISABLED_LIBRARIES (comma-separated)

Storage:
  - DUCKDB_PATH (default: /data/playwatch.duckdb)
  - WAL_ENABLED (default: true), WAL_PATH (default: /data/spool)

Admin API:
  - HTTP_PORT (default: 8181), AUTH_MODE (none or jwt), JWT_SECRET

# Validation

Struct tags are checked with the shared validator from internal/validation,
then cross-field rules run (grace_window <= stale_timeout, agent URLs, auth
mode per environment). The first failure is returned.
*/
package config
