// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

/*
Package audit records admin API actions that change state: flushing live
sessions, purging or regrouping history and sending test notifications.

Events are queued by Logger.Record and written by Logger.Serve, which runs
under the data supervisor. They live in the audit_events table of the
history database, or in a MemoryStore if that table cannot be created.

	GET /api/v1/audit?type=history.purged&limit=20

Events older than audit.retention are deleted on every cleanup tick.
*/
package audit
