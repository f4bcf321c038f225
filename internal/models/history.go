// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package models

import "time"

// HistoryRecord is one persisted viewing. Consecutive plays of the same item
// by the same user are merged into a single record; GroupCount says how many.
//
// Watched status is intentionally absent: it is derived with Watched at read time.
type HistoryRecord struct {
	ID          int64 `json:"id"`
	ReferenceID int64 `json:"reference_id"`

	SessionKey string `json:"session_key"`
	UserID     int    `json:"user_id"`
	UserName   string `json:"user"`

	RatingKey            string `json:"rating_key"`
	ParentRatingKey      string `json:"parent_rating_key,omitempty"`
	GrandparentRatingKey string `json:"grandparent_rating_key,omitempty"`
	Title                string `json:"title"`
	ParentTitle          string `json:"parent_title,omitempty"`
	GrandparentTitle     string `json:"grandparent_title,omitempty"`
	MediaType            string `json:"media_type"`
	LibrarySectionID     string `json:"library_section_id,omitempty"`

	MachineID string `json:"machine_id"`
	Platform  string `json:"platform,omitempty"`
	Player    string `json:"player,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`

	StartedAt     time.Time `json:"started_at"`
	StoppedAt     time.Time `json:"stopped_at"`
	PausedCounter int64     `json:"paused_counter"` // ms
	StartOffset   int64     `json:"start_offset"`   // ms
	ViewOffset    int64     `json:"view_offset"`    // ms
	Duration      int64     `json:"duration"`       // ms

	PercentComplete float64 `json:"percent_complete"`
	GroupCount      int     `json:"group_count"`

	Stream StreamDetails `json:"stream_details"`
}

// Watched reports whether the record meets threshold.
func (r HistoryRecord) Watched(threshold float64) bool {
	return r.PercentComplete >= threshold
}

// HistoryRecordFromSession captures a stopped session. Stream details are
// copied so the record is unaffected by later session changes.
func HistoryRecordFromSession(s Session) HistoryRecord {
	duration := s.Duration
	if duration == 0 {
		duration = s.Media.Duration
	}
	return HistoryRecord{
		SessionKey:           s.SessionKey,
		UserID:               s.UserID,
		UserName:             s.UserName,
		RatingKey:            s.RatingKey,
		ParentRatingKey:      s.Media.ParentRatingKey,
		GrandparentRatingKey: s.Media.GrandparentRatingKey,
		Title:                s.Media.Title,
		ParentTitle:          s.Media.ParentTitle,
		GrandparentTitle:     s.Media.GrandparentTitle,
		MediaType:            s.Media.MediaType,
		LibrarySectionID:     s.Media.LibrarySectionID,
		MachineID:            s.Player.MachineID,
		Platform:             s.Player.Platform,
		Player:               s.Player.Title,
		IPAddress:            s.Player.Address,
		StartedAt:            s.StartedAt,
		StoppedAt:            s.StoppedAt,
		PausedCounter:        s.PausedCounter,
		StartOffset:          s.StartOffset,
		ViewOffset:           s.ViewOffset,
		Duration:             duration,
		PercentComplete:      PercentComplete(s.ViewOffset, duration),
		GroupCount:           1,
		Stream:               s.Stream,
	}
}

// HistoryView is a HistoryRecord with read-time derived fields, as served by the API.
type HistoryView struct {
	HistoryRecord
	WatchedStatus bool `json:"watched_status"`
}
