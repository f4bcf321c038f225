// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package models

import (
	"testing"
	"time"
)

func TestPercentComplete(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		offset, duration int64
		want             float64
	}{
		{"unknown duration", 1000, 0, 0},
		{"not started", 0, 600000, 0},
		{"half", 300000, 600000, 0.5},
		{"complete", 600000, 600000, 1},
		{"offset past end clamps", 700000, 600000, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := PercentComplete(tt.offset, tt.duration); got != tt.want {
				t.Errorf("PercentComplete(%d, %d) = %v, want %v", tt.offset, tt.duration, got, tt.want)
			}
		})
	}
}

func TestSessionPlayedDurationExcludesPause(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 2, 20, 0, 0, 0, time.UTC)
	s := Session{
		StartedAt:     start,
		StoppedAt:     start.Add(10 * time.Minute),
		PausedCounter: (2 * time.Minute).Milliseconds(),
	}
	if got := s.PlayedDuration(time.Time{}); got != 8*time.Minute {
		t.Errorf("PlayedDuration = %v, want 8m", got)
	}

	live := Session{StartedAt: start, PausedSince: start.Add(time.Minute)}
	if got := live.PlayedDuration(start.Add(5 * time.Minute)); got != time.Minute {
		t.Errorf("PlayedDuration while paused = %v, want 1m", got)
	}
}

func TestParseSessionState(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"playing", "paused", "buffering", "stopped"} {
		if _, ok := ParseSessionState(s); !ok {
			t.Errorf("ParseSessionState(%q) rejected", s)
		}
	}
	if _, ok := ParseSessionState("seeking"); ok {
		t.Error("ParseSessionState accepted an unknown state")
	}
	if StateStopped.Live() {
		t.Error("stopped must not be live")
	}
}

func TestHistoryRecordFromSession(t *testing.T) {
	t.Parallel()

	s := Session{
		SessionKey: "7",
		UserID:     3,
		RatingKey:  "100",
		ViewOffset: 540000,
		Media:      MediaItem{Title: "Pilot", GrandparentTitle: "Show", MediaType: "episode", Duration: 600000},
		Stream:     StreamDetails{TranscodeDecision: "direct play"},
	}
	r := HistoryRecordFromSession(s)

	if r.Duration != 600000 {
		t.Errorf("Duration = %d, want fallback to media duration", r.Duration)
	}
	if r.PercentComplete != 0.9 {
		t.Errorf("PercentComplete = %v, want 0.9", r.PercentComplete)
	}
	if !r.Watched(0.85) || r.Watched(0.95) {
		t.Error("Watched threshold comparison is wrong")
	}
	if r.GroupCount != 1 {
		t.Errorf("GroupCount = %d, want 1", r.GroupCount)
	}
	if got := s.Media.FullTitle(); got != "Show - Pilot" {
		t.Errorf("FullTitle = %q", got)
	}
}
