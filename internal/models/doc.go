// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

/*
Package models defines the data shared between the Playwatch pipeline stages.

Core types:

  - RawActivityEvent: one normalized observation from the push feed or a poll
  - Session: in-memory state of one live playback, owned by the activity machine
  - SessionTransition: a state change, carrying an immutable Session copy
  - HistoryRecord: a persisted (possibly grouped) viewing
  - NotifyAction: a semantic, single-shot event eligible for notification

Plex wire types (PlexSession, PlexPlayingNotification, PlexMetadata) live in
plex.go and are only decoded by the sync package.

Session and the types it embeds contain no pointers, maps or slices, so a
plain assignment is a deep copy. Downstream workers rely on this.
*/
package models
