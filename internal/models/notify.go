// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package models

import "time"

// ActionKind is a semantic notification trigger.
type ActionKind string

const (
	ActionPlay                    ActionKind = "on_play"
	ActionStop                    ActionKind = "on_stop"
	ActionPause                   ActionKind = "on_pause"
	ActionResume                  ActionKind = "on_resume"
	ActionBuffer                  ActionKind = "on_buffer"
	ActionWatched                 ActionKind = "on_watched"
	ActionTranscodeDecisionChange ActionKind = "on_transcode_decision_change"
	ActionConcurrentStreams       ActionKind = "on_concurrent_streams"
	ActionNewDevice               ActionKind = "on_new_device"
	ActionError                   ActionKind = "on_error"
)

// AllActionKinds lists every kind in a stable order.
var AllActionKinds = []ActionKind{
	ActionPlay, ActionStop, ActionPause, ActionResume, ActionBuffer, ActionWatched,
	ActionTranscodeDecisionChange, ActionConcurrentStreams, ActionNewDevice, ActionError,
}

// ActionParams is the typed parameter record notifier conditions are evaluated against.
type ActionParams struct {
	Action            string  `json:"action"`
	User              string  `json:"user"`
	UserID            int     `json:"user_id"`
	MediaType         string  `json:"media_type"`
	Title             string  `json:"title"`
	ShowName          string  `json:"show_name,omitempty"`
	LibrarySectionID  string  `json:"library_section_id,omitempty"`
	RatingKey         string  `json:"rating_key"`
	Year              int     `json:"year,omitempty"`
	State             string  `json:"state"`
	ProgressPercent   float64 `json:"progress_percent"`
	ViewOffset        int64   `json:"view_offset"`
	Duration          int64   `json:"duration"`
	TranscodeDecision string  `json:"transcode_decision"`
	VideoResolution   string  `json:"video_resolution,omitempty"`
	Player            string  `json:"player,omitempty"`
	Platform          string  `json:"platform,omitempty"`
	Product           string  `json:"product,omitempty"`
	MachineID         string  `json:"machine_id"`
	IPAddress         string  `json:"ip_address,omitempty"`
	Local             bool    `json:"local"`
	InitialStream     bool    `json:"initial_stream"`
	UserStreams       int     `json:"user_streams"`
	TotalStreams      int     `json:"total_streams"`
	BufferCount       int     `json:"buffer_count"`
	Reason            string  `json:"reason,omitempty"`
}

// NotifyAction is immutable once built and is delivered at most once per notifier.
type NotifyAction struct {
	Kind       ActionKind   `json:"action"`
	Session    Session      `json:"session"`
	Params     ActionParams `json:"params"`
	Transition string       `json:"transition"`
	At         time.Time    `json:"timestamp"`
}
