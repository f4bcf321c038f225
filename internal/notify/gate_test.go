// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package notify

import (
	"testing"
	"time"

	"github.com/tomtom215/playwatch/internal/models"
)

func TestIntervalGate(t *testing.T) {
	g := NewIntervalGate(map[models.ActionKind]time.Duration{models.ActionBuffer: time.Minute})

	steps := []struct {
		key    string
		kind   models.ActionKind
		offset time.Duration
		want   bool
	}{
		{"1", models.ActionBuffer, 0, true},
		{"1", models.ActionBuffer, time.Second, false},
		{"1", models.ActionBuffer, 59 * time.Second, false},
		{"2", models.ActionBuffer, 30 * time.Second, true},
		{"1", models.ActionPause, 30 * time.Second, true},
		{"1", models.ActionPause, 31 * time.Second, true},
		{"1", models.ActionBuffer, time.Minute, true},
		{"1", models.ActionBuffer, 90 * time.Second, false},
	}
	for i, s := range steps {
		if got := g.Allow(s.key, s.kind, t0.Add(s.offset)); got != s.want {
			t.Errorf("step %d: Allow(%s, %s, +%v) = %v, want %v", i, s.key, s.kind, s.offset, got, s.want)
		}
	}

	if g.Len() != 2 {
		t.Errorf("Len() = %d, want 2", g.Len())
	}
	g.Forget("1")
	if g.Len() != 1 {
		t.Errorf("Len() after Forget = %d, want 1", g.Len())
	}
	if !g.Allow("1", models.ActionBuffer, t0.Add(91*time.Second)) {
		t.Error("Allow after Forget should pass")
	}
}
