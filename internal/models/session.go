// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package models

import "time"

// SessionState is the closed set of playback states.
type SessionState string

const (
	StatePlaying   SessionState = "playing"
	StatePaused    SessionState = "paused"
	StateBuffering SessionState = "buffering"
	StateStopped   SessionState = "stopped"
)

// ParseSessionState maps a media server state string onto SessionState.
func ParseSessionState(s string) (SessionState, bool) {
	switch SessionState(s) {
	case StatePlaying, StatePaused, StateBuffering, StateStopped:
		return SessionState(s), true
	default:
		return "", false
	}
}

// Live reports whether the state belongs to an active playback.
func (s SessionState) Live() bool {
	return s == StatePlaying || s == StatePaused || s == StateBuffering
}

// StreamDetails is the codec/bitrate/transcode snapshot of a stream.
type StreamDetails struct {
	TranscodeDecision string `json:"transcode_decision"` // "direct play", "copy" or "transcode"
	VideoDecision     string `json:"video_decision,omitempty"`
	AudioDecision     string `json:"audio_decision,omitempty"`
	Container         string `json:"container,omitempty"`
	VideoCodec        string `json:"video_codec,omitempty"`
	AudioCodec        string `json:"audio_codec,omitempty"`
	VideoResolution   string `json:"video_resolution,omitempty"`
	Bitrate           int    `json:"bitrate,omitempty"` // kbps
}

// PlayerInfo identifies the client device.
type PlayerInfo struct {
	MachineID string `json:"machine_id"`
	Device    string `json:"device,omitempty"`
	Platform  string `json:"platform,omitempty"`
	Product   string `json:"product,omitempty"`
	Title     string `json:"title,omitempty"`
	Address   string `json:"ip_address,omitempty"`
	Local     bool   `json:"local"`
}

// MediaItem is the library metadata for a rating key.
type MediaItem struct {
	RatingKey            string `json:"rating_key"`
	ParentRatingKey      string `json:"parent_rating_key,omitempty"`
	GrandparentRatingKey string `json:"grandparent_rating_key,omitempty"`
	MediaType            string `json:"media_type"` // movie, episode, track, clip
	Title                string `json:"title"`
	ParentTitle          string `json:"parent_title,omitempty"`
	GrandparentTitle     string `json:"grandparent_title,omitempty"`
	LibrarySectionID     string `json:"library_section_id,omitempty"`
	Year                 int    `json:"year,omitempty"`
	Duration             int64  `json:"duration"` // ms
}

// FullTitle joins the hierarchy the way clients display it ("Show - Episode").
func (m MediaItem) FullTitle() string {
	if m.GrandparentTitle != "" {
		return m.GrandparentTitle + " - " + m.Title
	}
	return m.Title
}

// Session is the in-memory record of one live playback.
//
// Only the activity machine writes sessions. Everyone else sees copies.
type Session struct {
	// InstanceID is unique per Session value; a new session reusing a
	// session_key after a stop gets a new InstanceID.
	InstanceID string `json:"instance_id"`
	SessionKey string `json:"session_key"`
	SessionID  string `json:"session_id,omitempty"`
	RatingKey  string `json:"rating_key"`
	UserID     int    `json:"user_id"`
	UserName   string `json:"user"`

	State SessionState `json:"state"`

	StartOffset   int64 `json:"start_offset"` // ms
	ViewOffset    int64 `json:"view_offset"`  // ms
	Duration      int64 `json:"duration"`     // ms
	PausedCounter int64 `json:"paused_counter"`

	StartedAt   time.Time `json:"started_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	StoppedAt   time.Time `json:"stopped_at,omitempty"`
	PausedSince time.Time `json:"-"`
	WatchedAt   time.Time `json:"watched_at,omitempty"`

	// LastBufferAt is the observation time of the last buffer start.
	LastBufferAt time.Time `json:"-"`
	BufferCount  int       `json:"buffer_count"`

	Stream StreamDetails `json:"stream_details"`
	Player PlayerInfo    `json:"player"`
	Media  MediaItem     `json:"media"`

	MediaResolved  bool `json:"media_resolved"`
	LookupAttempts int  `json:"-"`

	InitialStream       bool `json:"initial_stream"`
	FailedWriteAttempts int  `json:"failed_write_attempts"`
}

// PercentComplete returns ViewOffset/Duration clamped to [0,1].
func (s Session) PercentComplete() float64 {
	return PercentComplete(s.ViewOffset, s.Duration)
}

// PlayedDuration is the wall-clock time spent in the session minus paused time.
// For a live session, now stands in for the stop time.
func (s Session) PlayedDuration(now time.Time) time.Duration {
	end := s.StoppedAt
	if end.IsZero() {
		end = now
	}
	paused := time.Duration(s.PausedCounter) * time.Millisecond
	if !s.PausedSince.IsZero() && s.StoppedAt.IsZero() {
		paused += end.Sub(s.PausedSince)
	}
	played := end.Sub(s.StartedAt) - paused
	if played < 0 {
		return 0
	}
	return played
}

// PercentComplete returns offset/duration clamped to [0,1]; 0 when duration is unknown.
func PercentComplete(offset, duration int64) float64 {
	if duration <= 0 || offset <= 0 {
		return 0
	}
	p := float64(offset) / float64(duration)
	if p > 1 {
		return 1
	}
	return p
}
