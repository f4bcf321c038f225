// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

/*
Package activity reconstructs playback sessions from raw activity events.

It has three parts:

  - Apply, a pure function folding one RawActivityEvent into the previous
    Session for its key and returning the SessionTransitions it caused.
    Allowed state edges are listed in CanTransition; anything else is
    rejected with ErrInvalidTransition.
  - Table, the session arena. Only the machine goroutine writes it; readers
    get an immutable Snapshot that is republished after every change.
  - Machine, the single ordered consumer. Push events, poll snapshots,
    reconciler force-stops, admin flushes and barriers all travel through
    one channel so every table mutation is linearized.

Transitions are handed to a Sink (the dispatch pool in production) in the
order they were produced. Each transition carries a copy of the Session, so
consumers never observe later mutations.

Synthetic stops (stale, poll_absent, flush, shutdown) are built as ordinary
RawActivityEvents with State stopped and Source synthetic and go through
Apply like any other event.
*/
package activity
