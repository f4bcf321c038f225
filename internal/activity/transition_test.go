// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package activity

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tomtom215/playwatch/internal/models"
)

var t0 = time.Date(2026, 4, 10, 21, 0, 0, 0, time.UTC)

func testRules() Rules {
	n := 0
	return Rules{
		WatchedThreshold:  0.85,
		MaxLookupAttempts: 3,
		NewID: func() string {
			n++
			return fmt.Sprintf("instance-%d", n)
		},
	}
}

func ev(state models.SessionState, offset int64, at time.Duration) models.RawActivityEvent {
	return models.RawActivityEvent{
		SessionKey: "1",
		RatingKey:  "500",
		UserID:     7,
		UserName:   "alice",
		State:      state,
		ViewOffset: offset,
		Duration:   600000,
		Media:      &models.MediaItem{RatingKey: "500", Title: "Arrival", MediaType: "movie", Duration: 600000},
		Stream:     models.StreamDetails{TranscodeDecision: "direct play"},
		Player:     models.PlayerInfo{MachineID: "tv-1", Platform: "tvOS"},
		ObservedAt: t0.Add(at),
		Source:     models.SourcePoll,
	}
}

// fold applies events left to right, the way the machine does for one key.
func fold(t *testing.T, r Rules, events ...models.RawActivityEvent) (*models.Session, []models.SessionTransition) {
	t.Helper()
	var (
		cur *models.Session
		all []models.SessionTransition
	)
	for _, e := range events {
		next, ts, _ := Apply(cur, e, r)
		cur = next
		all = append(all, ts...)
	}
	return cur, all
}

func kinds(ts []models.SessionTransition) []models.TransitionKind {
	out := make([]models.TransitionKind, len(ts))
	for i, t := range ts {
		out[i] = t.Kind
	}
	return out
}

func equalKinds(a, b []models.TransitionKind) bool {
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

func TestCanTransition(t *testing.T) {
	t.Parallel()

	P, Z, B, S := models.StatePlaying, models.StatePaused, models.StateBuffering, models.StateStopped
	tests := []struct {
		from, to models.SessionState
		want     bool
	}{
		{"", P, true},
		{"", Z, false},
		{P, Z, true},
		{P, B, true},
		{P, S, true},
		{Z, P, true},
		{Z, S, true},
		{Z, B, false},
		{B, P, true},
		{B, Z, false},
		{B, S, true},
		{S, P, false},
		{S, S, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestApply_PauseResumeStopScenario(t *testing.T) {
	t.Parallel()

	_, ts := fold(t, testRules(),
		ev(models.StatePlaying, 0, 0),
		ev(models.StatePaused, 60000, 60*time.Second),
		ev(models.StatePlaying, 60000, 90*time.Second),
		ev(models.StateStopped, 600000, 10*time.Minute),
	)

	want := []models.TransitionKind{
		models.TransitionStarted, models.TransitionPaused, models.TransitionResumed, models.TransitionStopped,
	}
	if got := kinds(ts); !equalKinds(got, want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}

	stopped := ts[len(ts)-1]
	s := stopped.Session
	if s.PercentComplete() != 1.0 {
		t.Errorf("percent complete = %v, want 1.0", s.PercentComplete())
	}
	if s.PausedCounter != 30000 {
		t.Errorf("paused counter = %d, want 30000", s.PausedCounter)
	}
	if !stopped.CrossedWatched {
		t.Error("stop past the threshold should carry CrossedWatched")
	}
	if stopped.Synthetic || stopped.Reason != ReasonObserved {
		t.Errorf("observed stop marked synthetic=%v reason=%q", stopped.Synthetic, stopped.Reason)
	}
}

func TestApply_StopRemovesSession(t *testing.T) {
	t.Parallel()

	cur, _ := fold(t, testRules(), ev(models.StatePlaying, 0, 0))
	next, ts, err := Apply(cur, ev(models.StateStopped, 1000, time.Second), testRules())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if next != nil {
		t.Error("stopped session should be removed from the table")
	}
	if len(ts) != 1 || ts[0].Session.State != models.StateStopped {
		t.Fatalf("transitions = %v", kinds(ts))
	}

	// A stop for an unknown key is ignored.
	next, ts, err = Apply(nil, ev(models.StateStopped, 0, 0), testRules())
	if next != nil || len(ts) != 0 || err != nil {
		t.Errorf("stop for unknown session = %v, %v, %v", next, ts, err)
	}
}

func TestApply_NewEventAfterStopCreatesNewInstance(t *testing.T) {
	t.Parallel()

	r := testRules()
	first, _ := fold(t, r, ev(models.StatePlaying, 0, 0))
	firstID := first.InstanceID

	afterStop, _, _ := Apply(first, ev(models.StateStopped, 5000, 5*time.Second), r)
	second, ts, _ := Apply(afterStop, ev(models.StatePlaying, 5000, 10*time.Second), r)

	if second == nil || len(ts) == 0 || ts[0].Kind != models.TransitionStarted {
		t.Fatalf("expected a new started session, got %v", kinds(ts))
	}
	if second.InstanceID == firstID {
		t.Error("restarted session must get a new instance id")
	}
}

func TestApply_FirstEventPausedStartsThenPauses(t *testing.T) {
	t.Parallel()

	cur, ts := fold(t, testRules(), ev(models.StatePaused, 1000, 0))
	want := []models.TransitionKind{models.TransitionStarted, models.TransitionPaused}
	if got := kinds(ts); !equalKinds(got, want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	if ts[0].Session.State != models.StatePlaying || cur.State != models.StatePaused {
		t.Errorf("started snapshot state = %s, final state = %s", ts[0].Session.State, cur.State)
	}
}

func TestApply_RejectsUndefinedEdge(t *testing.T) {
	t.Parallel()

	cur, _ := fold(t, testRules(),
		ev(models.StatePlaying, 0, 0),
		ev(models.StatePaused, 1000, time.Second),
	)
	next, ts, err := Apply(cur, ev(models.StateBuffering, 1000, 5*time.Second), testRules())
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	if next.State != models.StatePaused {
		t.Errorf("state = %s, want paused", next.State)
	}
	if !next.LastSeenAt.Equal(t0.Add(5 * time.Second)) {
		t.Error("rejected edge must still refresh last_seen_at")
	}
	if len(ts) != 0 {
		t.Errorf("no transitions expected, got %v", kinds(ts))
	}
}

func TestApply_BufferBurstCollapses(t *testing.T) {
	t.Parallel()

	_, ts := fold(t, testRules(),
		ev(models.StatePlaying, 0, 0),
		ev(models.StateBuffering, 1000, 2*time.Second),
		ev(models.StatePlaying, 1000, 2*time.Second+200*time.Millisecond),
		ev(models.StateBuffering, 1000, 2*time.Second+400*time.Millisecond),
		ev(models.StatePlaying, 1000, 4*time.Second),
		ev(models.StateBuffering, 3000, 6*time.Second),
	)

	buffering := 0
	for _, tr := range ts {
		if tr.Kind == models.TransitionBuffering {
			buffering++
		}
	}
	if buffering != 2 {
		t.Errorf("buffering transitions = %d, want 2 (same-second burst collapsed)", buffering)
	}
}

func TestApply_TranscodeDecisionChange(t *testing.T) {
	t.Parallel()

	second := ev(models.StatePlaying, 0, 10*time.Second)
	second.Stream.TranscodeDecision = "transcode"

	cur, ts := fold(t, testRules(), ev(models.StatePlaying, 0, 0), second)
	want := []models.TransitionKind{models.TransitionStarted, models.TransitionTranscodeChange}
	if got := kinds(ts); !equalKinds(got, want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	if cur.State != models.StatePlaying {
		t.Errorf("state = %s, transcode change must not alter state", cur.State)
	}

	// Push events carry no stream details and must not look like a change.
	push := ev(models.StatePlaying, 5000, 20*time.Second)
	push.Stream = models.StreamDetails{}
	_, ts, _ = Apply(cur, push, testRules())
	if got := kinds(ts); !equalKinds(got, []models.TransitionKind{models.TransitionProgressed}) {
		t.Errorf("push update transitions = %v, want [progressed]", got)
	}
}

func TestApply_WatchedCrossedOnce(t *testing.T) {
	t.Parallel()

	_, ts := fold(t, testRules(),
		ev(models.StatePlaying, 0, 0),
		ev(models.StatePlaying, 520000, 9*time.Minute),
		ev(models.StatePlaying, 300000, 9*time.Minute+10*time.Second), // seek back
		ev(models.StatePlaying, 550000, 9*time.Minute+20*time.Second), // past threshold again
		ev(models.StateStopped, 590000, 10*time.Minute),
	)

	crossed := 0
	for _, tr := range ts {
		if tr.CrossedWatched {
			crossed++
			if tr.Kind != models.TransitionProgressed {
				t.Errorf("crossing reported on %s, want progressed", tr.Kind)
			}
		}
	}
	if crossed != 1 {
		t.Errorf("watched crossed %d times, want 1", crossed)
	}
}

func TestApply_LookupFailuresDropSession(t *testing.T) {
	t.Parallel()

	failing := func(at time.Duration) models.RawActivityEvent {
		e := ev(models.StatePlaying, int64(at/time.Millisecond), at)
		e.Media = nil
		e.LookupErr = "item not found"
		return e
	}

	r := testRules()
	cur, ts, err := Apply(nil, failing(0), r)
	if err != nil || cur == nil || cur.LookupAttempts != 1 {
		t.Fatalf("first failure: session=%v err=%v", cur, err)
	}
	if got := kinds(ts); !equalKinds(got, []models.TransitionKind{models.TransitionStarted}) {
		t.Fatalf("first failure transitions = %v", got)
	}

	cur, _, _ = Apply(cur, failing(10*time.Second), r)
	next, ts, err := Apply(cur, failing(20*time.Second), r)
	if !errors.Is(err, ErrLookupExhausted) {
		t.Fatalf("err = %v, want ErrLookupExhausted", err)
	}
	if next != nil {
		t.Error("session should be dropped")
	}
	if len(ts) != 1 || ts[0].Kind != models.TransitionError || ts[0].Reason != ReasonLookup {
		t.Fatalf("drop transitions = %+v", ts)
	}
}

func TestApply_LookupRecoveryResetsAttempts(t *testing.T) {
	t.Parallel()

	e := ev(models.StatePlaying, 0, 0)
	e.Media, e.LookupErr = nil, "timeout"
	cur, _, _ := Apply(nil, e, testRules())

	cur, _, err := Apply(cur, ev(models.StatePlaying, 1000, time.Second), testRules())
	if err != nil {
		t.Fatal(err)
	}
	if cur.LookupAttempts != 0 || !cur.MediaResolved || cur.Media.Title != "Arrival" {
		t.Errorf("lookup recovery not applied: %+v", cur)
	}
}

// Folding the same sequence twice yields the same session state.
func TestApply_Deterministic(t *testing.T) {
	t.Parallel()

	seq := []models.RawActivityEvent{
		ev(models.StatePlaying, 0, 0),
		ev(models.StateBuffering, 2000, 3*time.Second),
		ev(models.StatePlaying, 2000, 5*time.Second),
		ev(models.StatePaused, 90000, 95*time.Second),
		ev(models.StatePaused, 90000, 100*time.Second),
		ev(models.StatePlaying, 90000, 150*time.Second),
		ev(models.StatePlaying, 200000, 260*time.Second),
	}

	a, ta := fold(t, testRules(), seq...)
	b, tb := fold(t, testRules(), seq...)

	if *a != *b {
		t.Errorf("fold not deterministic:\n%+v\n%+v", *a, *b)
	}
	if !equalKinds(kinds(ta), kinds(tb)) {
		t.Errorf("transitions differ: %v vs %v", kinds(ta), kinds(tb))
	}
	if a.State != models.StatePlaying || a.PausedCounter != 55000 {
		t.Errorf("state=%s paused=%d", a.State, a.PausedCounter)
	}
}

func TestApply_IgnoresEventOlderThanSession(t *testing.T) {
	t.Parallel()

	cur, _ := fold(t, testRules(),
		ev(models.StatePlaying, 0, 0),
		ev(models.StatePlaying, 120000, 120*time.Second),
	)

	// A poll captured at 110s is applied after the push event from 120s.
	next, ts, err := Apply(cur, ev(models.StatePaused, 110000, 110*time.Second), testRules())
	if !errors.Is(err, ErrStaleEvent) {
		t.Fatalf("err = %v, want ErrStaleEvent", err)
	}
	if len(ts) != 0 {
		t.Errorf("out-of-date event produced %v", kinds(ts))
	}
	if next.ViewOffset != 120000 || !next.LastSeenAt.Equal(t0.Add(120*time.Second)) || next.State != models.StatePlaying {
		t.Errorf("session moved backwards: offset=%d last_seen=%s state=%s", next.ViewOffset, next.LastSeenAt, next.State)
	}

	// Same instant is not out of date.
	if _, _, err := Apply(cur, ev(models.StatePlaying, 121000, 120*time.Second), testRules()); err != nil {
		t.Errorf("event at LastSeenAt rejected: %v", err)
	}
}

func TestApply_LateStopKeepsNewestState(t *testing.T) {
	t.Parallel()

	cur, _ := fold(t, testRules(),
		ev(models.StatePlaying, 0, 0),
		ev(models.StatePlaying, 120000, 120*time.Second),
	)
	next, ts, err := Apply(cur, ev(models.StateStopped, 100000, 100*time.Second), testRules())
	if err != nil || next != nil || len(ts) != 1 {
		t.Fatalf("late stop = %v, %v, %v", next, kinds(ts), err)
	}
	s := ts[0].Session
	if s.ViewOffset != 120000 {
		t.Errorf("view_offset = %d, want 120000", s.ViewOffset)
	}
	if !s.StoppedAt.Equal(t0.Add(120*time.Second)) || !ts[0].At.Equal(s.StoppedAt) {
		t.Errorf("stopped_at = %s, at = %s, want last seen", s.StoppedAt, ts[0].At)
	}
}
