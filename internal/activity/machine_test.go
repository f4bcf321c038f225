// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package activity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/playwatch/internal/models"
)

type recordingSink struct {
	mu sync.Mutex
	ts []models.SessionTransition
}

func (r *recordingSink) Publish(t models.SessionTransition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ts = append(r.ts, t)
}

func (r *recordingSink) all() []models.SessionTransition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.SessionTransition(nil), r.ts...)
}

func (r *recordingSink) ofKind(k models.TransitionKind) []models.SessionTransition {
	var out []models.SessionTransition
	for _, t := range r.all() {
		if t.Kind == k {
			out = append(out, t)
		}
	}
	return out
}

func startMachine(t *testing.T, grace time.Duration) (*Machine, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	m := NewMachine(Config{QueueSize: 64, GraceWindow: grace, Rules: testRules()}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return m, sink
}

func syncMachine(t *testing.T, m *Machine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
}

func userEvent(key string, userID int, machine string, at time.Duration) models.RawActivityEvent {
	e := ev(models.StatePlaying, 1000, at)
	e.SessionKey = key
	e.UserID = userID
	e.Player.MachineID = machine
	return e
}

func TestMachine_StartedCarriesSnapshotAndInitialStream(t *testing.T) {
	m, sink := startMachine(t, 15*time.Second)
	ctx := context.Background()

	_ = m.Submit(ctx, userEvent("1", 7, "tv-1", 0))
	_ = m.Submit(ctx, userEvent("2", 7, "phone-1", time.Second))
	_ = m.Submit(ctx, userEvent("3", 8, "tv-2", 2*time.Second))
	syncMachine(t, m)

	started := sink.ofKind(models.TransitionStarted)
	if len(started) != 3 {
		t.Fatalf("started = %d, want 3", len(started))
	}
	if !started[0].Session.InitialStream {
		t.Error("first stream of user 7 should be initial")
	}
	if started[1].Session.InitialStream {
		t.Error("second concurrent stream of user 7 should not be initial")
	}
	if !started[2].Session.InitialStream {
		t.Error("first stream of user 8 should be initial")
	}
	if got := len(started[1].Active); got != 2 {
		t.Errorf("second start saw %d active sessions, want 2", got)
	}
	if m.Snapshot().Len() != 3 {
		t.Errorf("snapshot len = %d, want 3", m.Snapshot().Len())
	}
}

func TestMachine_PollAbsenceRespectsGraceWindow(t *testing.T) {
	grace := 15 * time.Second
	m, sink := startMachine(t, grace)
	ctx := context.Background()

	_ = m.SubmitPoll(ctx, []models.RawActivityEvent{ev(models.StatePlaying, 0, 0)}, t0)

	// Missing from the next poll, but inside the grace window.
	_ = m.SubmitPoll(ctx, nil, t0.Add(grace-time.Second))
	syncMachine(t, m)
	if n := len(sink.ofKind(models.TransitionStopped)); n != 0 {
		t.Fatalf("stopped inside grace window (%d stops)", n)
	}

	_ = m.SubmitPoll(ctx, nil, t0.Add(grace))
	syncMachine(t, m)
	stops := sink.ofKind(models.TransitionStopped)
	if len(stops) != 1 {
		t.Fatalf("stops = %d, want 1", len(stops))
	}
	if !stops[0].Synthetic || stops[0].Reason != ReasonPollAbsent {
		t.Errorf("stop synthetic=%v reason=%q", stops[0].Synthetic, stops[0].Reason)
	}
	if !stops[0].Session.StoppedAt.Equal(t0) {
		t.Errorf("stopped_at = %v, want last seen %v", stops[0].Session.StoppedAt, t0)
	}
	if m.Snapshot().Len() != 0 {
		t.Error("table should be empty after the stop")
	}
}

func TestMachine_PushAfterPollRequestIsNotStopped(t *testing.T) {
	m, sink := startMachine(t, 15*time.Second)
	ctx := context.Background()

	// The push event is newer than the poll that does not contain it.
	_ = m.Submit(ctx, ev(models.StatePlaying, 0, 30*time.Second))
	_ = m.SubmitPoll(ctx, nil, t0.Add(20*time.Second))
	syncMachine(t, m)

	if n := len(sink.ofKind(models.TransitionStopped)); n != 0 {
		t.Errorf("push/poll race stopped the session (%d stops)", n)
	}
}

func TestMachine_ForceStopIgnoredWhenRefreshed(t *testing.T) {
	m, sink := startMachine(t, 15*time.Second)
	ctx := context.Background()

	_ = m.Submit(ctx, ev(models.StatePlaying, 0, 0))
	syncMachine(t, m)
	seen, _ := m.Snapshot().Get("1")

	// A real event lands between the sweep reading the snapshot and the stop.
	_ = m.Submit(ctx, ev(models.StatePlaying, 5000, 5*time.Second))
	_ = m.ForceStop(ctx, "1", seen.LastSeenAt, ReasonStale)
	syncMachine(t, m)
	if n := len(sink.ofKind(models.TransitionStopped)); n != 0 {
		t.Fatal("force stop must not apply to a refreshed session")
	}

	refreshed, _ := m.Snapshot().Get("1")
	_ = m.ForceStop(ctx, "1", refreshed.LastSeenAt, ReasonStale)
	syncMachine(t, m)
	stops := sink.ofKind(models.TransitionStopped)
	if len(stops) != 1 || stops[0].Reason != ReasonStale || stops[0].Session.ViewOffset != 5000 {
		t.Fatalf("stops = %+v", stops)
	}
}

func TestMachine_FlushAll(t *testing.T) {
	m, sink := startMachine(t, 15*time.Second)
	ctx := context.Background()

	_ = m.Submit(ctx, userEvent("1", 7, "tv-1", 0))
	_ = m.Submit(ctx, userEvent("2", 8, "tv-2", 0))

	n, err := m.FlushAll(ctx, t0.Add(time.Minute), ReasonShutdown)
	if err != nil {
		t.Fatalf("FlushAll: %v", err)
	}
	if n != 2 {
		t.Errorf("flushed %d, want 2", n)
	}
	for _, s := range sink.ofKind(models.TransitionStopped) {
		if s.Reason != ReasonShutdown || !s.Synthetic {
			t.Errorf("flush stop reason=%q synthetic=%v", s.Reason, s.Synthetic)
		}
	}
	if m.Snapshot().Len() != 0 {
		t.Error("table should be empty after flush")
	}
}

func TestMachine_DropsEventWithoutKey(t *testing.T) {
	m, sink := startMachine(t, time.Second)

	bad := ev(models.StatePlaying, 0, 0)
	bad.SessionKey = ""
	_ = m.Submit(context.Background(), bad)
	syncMachine(t, m)

	if len(sink.all()) != 0 {
		t.Error("malformed event produced transitions")
	}
}

func TestMachine_SubmitHonoursContext(t *testing.T) {
	t.Parallel()

	// No Serve loop: the queue fills and Submit must give up with the context.
	m := NewMachine(Config{QueueSize: 1, Rules: testRules()}, SinkFunc(func(models.SessionTransition) {}))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_ = m.Submit(ctx, ev(models.StatePlaying, 0, 0))
	if err := m.Submit(ctx, ev(models.StatePlaying, 0, 0)); err == nil {
		t.Fatal("Submit on a full queue should fail once the context expires")
	}
}

func TestMachine_PollCapturedBeforeStopDoesNotRestart(t *testing.T) {
	m, sink := startMachine(t, 15*time.Second)
	ctx := context.Background()

	push := func(state models.SessionState, offset int64, at time.Duration) models.RawActivityEvent {
		e := ev(state, offset, at)
		e.Source = models.SourcePush
		return e
	}

	_ = m.Submit(ctx, push(models.StatePlaying, 0, 0))
	_ = m.Submit(ctx, push(models.StateStopped, 300000, 300*time.Second))
	// The poll request went out before the stop but its result is queued after it.
	_ = m.SubmitPoll(ctx, []models.RawActivityEvent{ev(models.StatePlaying, 299000, 299*time.Second)}, t0.Add(299*time.Second))
	syncMachine(t, m)

	started := len(sink.ofKind(models.TransitionStarted))
	stopped := len(sink.ofKind(models.TransitionStopped))
	if started != 1 || stopped != 1 || m.Snapshot().Len() != 0 {
		t.Fatalf("started=%d stopped=%d live=%d, want 1/1/0", started, stopped, m.Snapshot().Len())
	}

	// A poll taken after the stop is a genuine new viewing.
	_ = m.SubmitPoll(ctx, []models.RawActivityEvent{ev(models.StatePlaying, 0, 301*time.Second)}, t0.Add(301*time.Second))
	syncMachine(t, m)
	if got := len(sink.ofKind(models.TransitionStarted)); got != 2 {
		t.Errorf("started = %d after a later poll, want 2", got)
	}
}

func TestMachine_OlderPollDoesNotRewindSession(t *testing.T) {
	m, sink := startMachine(t, 15*time.Second)
	ctx := context.Background()

	_ = m.Submit(ctx, ev(models.StatePlaying, 0, 0))
	_ = m.Submit(ctx, ev(models.StatePlaying, 120000, 120*time.Second))
	_ = m.SubmitPoll(ctx, []models.RawActivityEvent{ev(models.StatePlaying, 110000, 110*time.Second)}, t0.Add(110*time.Second))
	syncMachine(t, m)

	s, ok := m.Snapshot().Get("1")
	if !ok {
		t.Fatal("session missing")
	}
	if s.ViewOffset != 120000 || !s.LastSeenAt.Equal(t0.Add(120*time.Second)) {
		t.Errorf("view_offset=%d last_seen=%s, want 120000 at %s", s.ViewOffset, s.LastSeenAt, t0.Add(120*time.Second))
	}
	for _, tr := range sink.all() {
		if tr.Session.ViewOffset == 110000 {
			t.Errorf("out-of-date poll produced %s", tr.Kind)
		}
	}
}
