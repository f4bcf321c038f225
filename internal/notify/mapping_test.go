// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/playwatch/internal/models"
)

var t0 = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

func testSession(key string, userID int, machineID string) models.Session {
	return models.Session{
		InstanceID: "inst-" + key,
		SessionKey: key,
		RatingKey:  "100",
		UserID:     userID,
		UserName:   "alice",
		State:      models.StatePlaying,
		ViewOffset: 300000,
		Duration:   600000,
		Player:     models.PlayerInfo{MachineID: machineID, Title: "Living Room", Platform: "Roku"},
		Media:      models.MediaItem{RatingKey: "100", MediaType: "episode", Title: "Pilot", GrandparentTitle: "Show"},
		Stream:     models.StreamDetails{TranscodeDecision: "direct play"},
	}
}

type fakeDevices struct {
	known bool
	err   error
	calls int
}

func (f *fakeDevices) KnownDevice(_ context.Context, _ int, _ string) (bool, error) {
	f.calls++
	return f.known, f.err
}

func kinds(actions []models.NotifyAction) []models.ActionKind {
	out := make([]models.ActionKind, len(actions))
	for i, a := range actions {
		out[i] = a.Kind
	}
	return out
}

func equalKinds(a, b []models.ActionKind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMapper_DirectActions(t *testing.T) {
	m := NewMapper(2, &fakeDevices{known: true}, time.Hour)
	s := testSession("1", 1, "m1")

	tests := []struct {
		kind models.TransitionKind
		want []models.ActionKind
	}{
		{models.TransitionPaused, []models.ActionKind{models.ActionPause}},
		{models.TransitionResumed, []models.ActionKind{models.ActionResume}},
		{models.TransitionBuffering, []models.ActionKind{models.ActionBuffer}},
		{models.TransitionTranscodeChange, []models.ActionKind{models.ActionTranscodeDecisionChange}},
		{models.TransitionStopped, []models.ActionKind{models.ActionStop}},
		{models.TransitionError, []models.ActionKind{models.ActionError}},
		{models.TransitionProgressed, []models.ActionKind{}},
		{models.TransitionBufferEnd, []models.ActionKind{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			got := kinds(m.Map(context.Background(), models.SessionTransition{Kind: tt.kind, Session: s, At: t0}))
			if !equalKinds(got, tt.want) {
				t.Errorf("Map(%s) = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}

func TestMapper_StopPastThresholdFiresWatchedOnce(t *testing.T) {
	m := NewMapper(2, nil, time.Hour)
	s := testSession("1", 1, "m1")

	stop := models.SessionTransition{Kind: models.TransitionStopped, Session: s, At: t0, CrossedWatched: true}
	got := kinds(m.Map(context.Background(), stop))
	want := []models.ActionKind{models.ActionStop, models.ActionWatched}
	if !equalKinds(got, want) {
		t.Fatalf("Map(stop) = %v, want %v", got, want)
	}

	// A repeated qualifying transition for the same instance must not re-fire.
	progressed := models.SessionTransition{Kind: models.TransitionProgressed, Session: s, At: t0.Add(time.Second), CrossedWatched: true}
	if got := kinds(m.Map(context.Background(), progressed)); len(got) != 0 {
		t.Errorf("second crossing produced %v", got)
	}

	// A new instance on the same key fires again.
	s2 := s
	s2.InstanceID = "inst-1b"
	got = kinds(m.Map(context.Background(), models.SessionTransition{Kind: models.TransitionProgressed, Session: s2, At: t0, CrossedWatched: true}))
	if !equalKinds(got, []models.ActionKind{models.ActionWatched}) {
		t.Errorf("new instance Map = %v, want [on_watched]", got)
	}
}

func TestMapper_ConcurrentStreams(t *testing.T) {
	m := NewMapper(2, &fakeDevices{known: true}, time.Hour)
	s := testSession("2", 1, "m2")
	other := testSession("1", 1, "m1")
	stranger := testSession("3", 9, "m9")

	t.Run("second stream for user", func(t *testing.T) {
		tr := models.SessionTransition{Kind: models.TransitionStarted, Session: s, At: t0, Active: []models.Session{other, s, stranger}}
		actions := m.Map(context.Background(), tr)
		got := kinds(actions)
		want := []models.ActionKind{models.ActionPlay, models.ActionConcurrentStreams}
		if !equalKinds(got, want) {
			t.Fatalf("Map = %v, want %v", got, want)
		}
		p := actions[1].Params
		if p.UserStreams != 2 || p.TotalStreams != 3 {
			t.Errorf("streams = %d/%d, want 2/3", p.UserStreams, p.TotalStreams)
		}
	})

	t.Run("only stream for user", func(t *testing.T) {
		tr := models.SessionTransition{Kind: models.TransitionStarted, Session: s, At: t0, Active: []models.Session{s, stranger}}
		got := kinds(m.Map(context.Background(), tr))
		if !equalKinds(got, []models.ActionKind{models.ActionPlay}) {
			t.Errorf("Map = %v, want [on_play]", got)
		}
	})
}

func TestMapper_NewDevice(t *testing.T) {
	s := testSession("1", 1, "m1")
	started := func(active ...models.Session) models.SessionTransition {
		return models.SessionTransition{Kind: models.TransitionStarted, Session: s, At: t0, Active: active}
	}

	t.Run("unknown device fires", func(t *testing.T) {
		devices := &fakeDevices{known: false}
		got := kinds(NewMapper(2, devices, time.Hour).Map(context.Background(), started(s)))
		if !equalKinds(got, []models.ActionKind{models.ActionPlay, models.ActionNewDevice}) {
			t.Errorf("Map = %v", got)
		}
		if devices.calls != 1 {
			t.Errorf("KnownDevice calls = %d, want 1", devices.calls)
		}
	})

	t.Run("known device does not fire", func(t *testing.T) {
		got := kinds(NewMapper(2, &fakeDevices{known: true}, time.Hour).Map(context.Background(), started(s)))
		if !equalKinds(got, []models.ActionKind{models.ActionPlay}) {
			t.Errorf("Map = %v", got)
		}
	})

	t.Run("device live on another key", func(t *testing.T) {
		devices := &fakeDevices{known: false}
		twin := testSession("9", 1, "m1")
		got := kinds(NewMapper(5, devices, time.Hour).Map(context.Background(), started(s, twin)))
		if !equalKinds(got, []models.ActionKind{models.ActionPlay}) {
			t.Errorf("Map = %v", got)
		}
		if devices.calls != 0 {
			t.Errorf("KnownDevice should not be consulted, calls = %d", devices.calls)
		}
	})

	t.Run("lookup error counts as known", func(t *testing.T) {
		got := kinds(NewMapper(2, &fakeDevices{err: errors.New("db down")}, time.Hour).Map(context.Background(), started(s)))
		if !equalKinds(got, []models.ActionKind{models.ActionPlay}) {
			t.Errorf("Map = %v", got)
		}
	})

	t.Run("no machine id", func(t *testing.T) {
		anon := s
		anon.Player.MachineID = ""
		tr := models.SessionTransition{Kind: models.TransitionStarted, Session: anon, At: t0, Active: []models.Session{anon}}
		got := kinds(NewMapper(2, &fakeDevices{known: false}, time.Hour).Map(context.Background(), tr))
		if !equalKinds(got, []models.ActionKind{models.ActionPlay}) {
			t.Errorf("Map = %v", got)
		}
	})
}

func TestBuildParams(t *testing.T) {
	s := testSession("1", 7, "m1")
	s.ViewOffset = 200000
	s.Duration = 300000
	tr := models.SessionTransition{Kind: models.TransitionStopped, Session: s, At: t0, Reason: "stale"}

	p := BuildParams(models.ActionStop, tr)
	if p.Action != "on_stop" {
		t.Errorf("Action = %q", p.Action)
	}
	if p.ProgressPercent != 66.7 {
		t.Errorf("ProgressPercent = %v, want 66.7", p.ProgressPercent)
	}
	if p.ShowName != "Show" || p.Player != "Living Room" || p.UserID != 7 {
		t.Errorf("unexpected params %+v", p)
	}
	if p.Reason != "stale" {
		t.Errorf("Reason = %q", p.Reason)
	}
	if p.UserStreams != 0 || p.TotalStreams != 0 {
		t.Errorf("stream counts should be zero without a snapshot, got %d/%d", p.UserStreams, p.TotalStreams)
	}
}
