// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

/*
Package sync is the event source adapter for Plex Media Server.

It normalizes two inputs into models.RawActivityEvent:

  - the push feed, /:/websockets/notifications. Only "playing" notifications
    are used. Each one is debounced per session key, then enriched from
    /status/sessions so the event carries user, player and stream details.
  - the poll, /status/sessions, returned whole by PollActiveSessions and fed
    to the activity machine by SessionPoller.

Every event is stamped with ObservedAt here. Downstream code never reads the
wall clock for session timing.

Failures surface as *SourceError wrapping ErrSourceUnavailable. A poll that
failed is never reported as an empty server, because the machine would
stop every live session on it.

PlexClient wraps all HTTP calls in a gobreaker circuit breaker and retries
HTTP 429 with exponential backoff. CachedMediaLookup fronts
/library/metadata/{ratingKey} with a TTL LRU; a 404 is ErrItemNotFound and
does not count against the breaker.

Types:

	PlexSource implements EventSource
	  Subscribe          -> Subscription (one websocket connection, no auto reconnect)
	  PollActiveSessions -> []RawActivityEvent

Reconnection with backoff and the resync poll after each reconnect live in
the reconciler package.
*/
package sync
