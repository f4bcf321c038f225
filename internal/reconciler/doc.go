// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

// Package reconciler keeps the session table honest when the push feed is not.
//
// Two loops run under one errgroup:
//
//   - the sweep, every activity.reconcile_interval, asks the machine to stop
//     sessions whose last_seen_at is older than activity.stale_timeout. Stops
//     go through Machine.ForceStop, the same path as observed stops.
//   - the feed loop holds the Plex websocket open, reconnecting with capped
//     exponential backoff, and runs one full poll after each connect before
//     forwarding incremental events.
//
// The reconciler never touches the table directly.
package reconciler
