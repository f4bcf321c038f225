// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

/*
Package websocket pushes session transitions to live-activity viewers.

The Hub is a best-effort handler on the transition fanout. Each transition
becomes one frame:

	{"type": "transition", "data": {"kind": "paused", "session": {...}, "at": "..."}}

On connect the client first receives the current session table, then
transitions in order:

	{"type": "snapshot", "data": [{"session_key": "7", ...}]}

Clients may send {"type": "ping"} (answered with "pong") or
{"type": "snapshot"} to reload the table. A client
whose send buffer fills is disconnected rather than slowing the hub.

The HTTP upgrade lives in the api package at GET /api/v1/activity/live and
is behind the same admin authentication as the rest of the API. Browsers
authenticate with the token cookie.
*/
package websocket
