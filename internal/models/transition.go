// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package models

import "time"

// TransitionKind enumerates the changes the activity machine reports.
type TransitionKind string

const (
	TransitionStarted         TransitionKind = "started"
	TransitionProgressed      TransitionKind = "progressed"
	TransitionPaused          TransitionKind = "paused"
	TransitionResumed         TransitionKind = "resumed"
	TransitionBuffering       TransitionKind = "buffering"
	TransitionBufferEnd       TransitionKind = "buffer_end"
	TransitionTranscodeChange TransitionKind = "transcode_decision_change"
	TransitionStopped         TransitionKind = "stopped"
	TransitionError           TransitionKind = "error"
)

// SessionTransition is emitted for every accepted change to a session.
type SessionTransition struct {
	Kind     TransitionKind `json:"kind"`
	Previous SessionState   `json:"previous_state,omitempty"`
	Session  Session        `json:"session"`
	At       time.Time      `json:"at"`

	// Synthetic marks stops inferred by reconciliation, flush or shutdown.
	Synthetic bool   `json:"synthetic,omitempty"`
	Reason    string `json:"reason,omitempty"`

	// CrossedWatched is set on the one transition where the session first
	// reached the watched threshold.
	CrossedWatched bool `json:"crossed_watched,omitempty"`

	// Active is the table snapshot (this session included) at the moment of
	// a started transition. Nil for every other kind.
	Active []Session `json:"-"`
}
