// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package models

import "time"

// EventSource records where a RawActivityEvent came from.
type EventSource string

const (
	SourcePush      EventSource = "push"
	SourcePoll      EventSource = "poll"
	SourceSynthetic EventSource = "synthetic"
)

// RawActivityEvent is a single normalized observation of a stream.
//
// ObservedAt is stamped once by the adapter; the activity machine never reads
// the wall clock, so replaying the same events yields the same sessions.
type RawActivityEvent struct {
	SessionKey string       `json:"session_key"`
	SessionID  string       `json:"session_id,omitempty"`
	RatingKey  string       `json:"rating_key"`
	UserID     int          `json:"user_id"`
	UserName   string       `json:"user"`
	State      SessionState `json:"state"`
	ViewOffset int64        `json:"view_offset"`
	Duration   int64        `json:"duration"`

	Stream StreamDetails `json:"stream_details"`
	Player PlayerInfo    `json:"player"`

	// Media is nil when the lookup failed or was not attempted.
	Media *MediaItem `json:"media,omitempty"`
	// LookupErr is the reason Media is missing, if a lookup was attempted.
	LookupErr string `json:"lookup_error,omitempty"`

	ObservedAt time.Time   `json:"observed_at"`
	Source     EventSource `json:"source"`

	// Reason explains synthetic stops (stale, poll_absent, flush, shutdown).
	Reason string `json:"reason,omitempty"`
}
