// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/playwatch/internal/config"
	"github.com/tomtom215/playwatch/internal/models"
)

type delivery struct {
	notifier string
	action   models.ActionKind
}

type recordingAgent struct {
	mu    sync.Mutex
	got   []delivery
	err   error
	delay time.Duration
}

func (r *recordingAgent) Deliver(ctx context.Context, cfg config.NotifierConfig, a models.NotifyAction) error {
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, delivery{notifier: cfg.Name, action: a.Kind})
	return r.err
}

func (r *recordingAgent) deliveries() []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivery(nil), r.got...)
}

func notifyConfig(notifiers ...config.NotifierConfig) config.NotifyConfig {
	return config.NotifyConfig{
		BufferInterval:             time.Minute,
		ConcurrentStreamsThreshold: 2,
		DispatchTimeout:            time.Second,
		MaxConcurrentDeliveries:    2,
		WatchedCacheTTL:            time.Hour,
		Notifiers:                  notifiers,
	}
}

func newTestEngine(t *testing.T, agent Agent, notifiers ...config.NotifierConfig) *Engine {
	t.Helper()
	e, err := NewEngine(notifyConfig(notifiers...), map[string]Agent{"log": agent}, &fakeDevices{known: true})
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}
	return e
}

// settle waits for the deliveries HandleTransition started.
func settle(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Wait(ctx); err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
}

func TestEngine_ConditionFiltersUser(t *testing.T) {
	agent := &recordingAgent{}
	e := newTestEngine(t, agent, config.NotifierConfig{
		Name:      "alice-movies",
		Agent:     "log",
		Enabled:   true,
		Actions:   []string{"on_play"},
		Condition: `user == "alice" and media_type == "movie"`,
	})

	bob := testSession("1", 2, "m1")
	bob.UserName = "bob"
	bob.Media.MediaType = "movie"
	e.HandleTransition(context.Background(), models.SessionTransition{Kind: models.TransitionStarted, Session: bob, At: t0, Active: []models.Session{bob}})
	settle(t, e)
	if got := agent.deliveries(); len(got) != 0 {
		t.Fatalf("bob should not notify, got %v", got)
	}

	alice := testSession("2", 1, "m2")
	alice.Media.MediaType = "movie"
	e.HandleTransition(context.Background(), models.SessionTransition{Kind: models.TransitionStarted, Session: alice, At: t0, Active: []models.Session{bob, alice}})
	settle(t, e)
	got := agent.deliveries()
	if len(got) != 1 || got[0].action != models.ActionPlay {
		t.Fatalf("deliveries = %v, want one on_play", got)
	}
}

func TestEngine_ActionSetAndEnabled(t *testing.T) {
	agent := &recordingAgent{}
	e := newTestEngine(t, agent,
		config.NotifierConfig{Name: "stops", Agent: "log", Enabled: true, Actions: []string{"on_stop", "on_watched"}},
		config.NotifierConfig{Name: "off", Agent: "log", Enabled: false, Actions: []string{"on_stop"}},
	)

	s := testSession("1", 1, "m1")
	e.HandleTransition(context.Background(), models.SessionTransition{Kind: models.TransitionPaused, Session: s, At: t0})
	e.HandleTransition(context.Background(), models.SessionTransition{Kind: models.TransitionStopped, Session: s, At: t0, CrossedWatched: true})
	settle(t, e)

	got := agent.deliveries()
	if len(got) != 2 {
		t.Fatalf("deliveries = %v, want on_stop and on_watched", got)
	}
	seen := map[models.ActionKind]bool{}
	for _, d := range got {
		if d.notifier != "stops" {
			t.Errorf("unexpected notifier %q", d.notifier)
		}
		seen[d.action] = true
	}
	if !seen[models.ActionStop] || !seen[models.ActionWatched] {
		t.Errorf("deliveries = %v", got)
	}
}

func TestEngine_BufferGate(t *testing.T) {
	agent := &recordingAgent{}
	e := newTestEngine(t, agent, config.NotifierConfig{Name: "buf", Agent: "log", Enabled: true, Actions: []string{"on_buffer"}})

	s := testSession("1", 1, "m1")
	for i := 0; i < 5; i++ {
		e.HandleTransition(context.Background(), models.SessionTransition{
			Kind: models.TransitionBuffering, Session: s, At: t0.Add(time.Duration(i) * 10 * time.Second),
		})
	}
	settle(t, e)
	if got := len(agent.deliveries()); got != 1 {
		t.Fatalf("deliveries = %d, want 1 within the interval", got)
	}

	e.HandleTransition(context.Background(), models.SessionTransition{Kind: models.TransitionStopped, Session: s, At: t0.Add(50 * time.Second)})
	e.HandleTransition(context.Background(), models.SessionTransition{Kind: models.TransitionBuffering, Session: s, At: t0.Add(55 * time.Second)})
	settle(t, e)
	if got := len(agent.deliveries()); got != 2 {
		t.Errorf("deliveries = %d, want 2 after the key was reset", got)
	}
}

func TestEngine_RateLimit(t *testing.T) {
	agent := &recordingAgent{}
	e := newTestEngine(t, agent, config.NotifierConfig{
		Name: "slow", Agent: "log", Enabled: true, Actions: []string{"on_pause"}, RateLimit: 0.001,
	})
	for i := 0; i < 3; i++ {
		s := testSession(string(rune('a'+i)), 1, "m1")
		e.HandleTransition(context.Background(), models.SessionTransition{Kind: models.TransitionPaused, Session: s, At: t0})
	}
	settle(t, e)
	if got := len(agent.deliveries()); got != 1 {
		t.Errorf("deliveries = %d, want 1", got)
	}
}

func TestEngine_FailureDoesNotBlockOthers(t *testing.T) {
	failing := &recordingAgent{err: errors.New("boom")}
	slow := &recordingAgent{delay: 5 * time.Second}
	ok := &recordingAgent{}

	cfg := notifyConfig(
		config.NotifierConfig{Name: "failing", Agent: "failing", Enabled: true, Actions: []string{"on_play"}},
		config.NotifierConfig{Name: "slow", Agent: "slow", Enabled: true, Actions: []string{"on_play"}},
		config.NotifierConfig{Name: "ok", Agent: "ok", Enabled: true, Actions: []string{"on_play"}},
	)
	cfg.DispatchTimeout = 50 * time.Millisecond
	e, err := NewEngine(cfg, map[string]Agent{"failing": failing, "slow": slow, "ok": ok}, nil)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}

	s := testSession("1", 1, "")
	start := time.Now()
	e.HandleTransition(context.Background(), models.SessionTransition{Kind: models.TransitionStarted, Session: s, At: t0, Active: []models.Session{s}})
	settle(t, e)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("dispatch took %v, timeout not applied", elapsed)
	}
	if len(ok.deliveries()) != 1 || len(failing.deliveries()) != 1 {
		t.Errorf("ok=%d failing=%d, want 1 each", len(ok.deliveries()), len(failing.deliveries()))
	}
	if len(slow.deliveries()) != 0 {
		t.Error("slow agent should have timed out")
	}
}

func TestNewEngine_Errors(t *testing.T) {
	agents := map[string]Agent{"log": &recordingAgent{}}

	_, err := NewEngine(notifyConfig(config.NotifierConfig{
		Name: "bad", Agent: "log", Enabled: true, Actions: []string{"on_play"}, Condition: `bitrate > 10`,
	}), agents, nil)
	if !errors.Is(err, ErrUnknownParameter) {
		t.Errorf("unknown parameter error = %v", err)
	}

	_, err = NewEngine(notifyConfig(config.NotifierConfig{
		Name: "bad", Agent: "slack", Enabled: true, Actions: []string{"on_play"},
	}), agents, nil)
	if err == nil {
		t.Error("expected error for unknown agent")
	}

	_, err = NewEngine(notifyConfig(config.NotifierConfig{
		Name: "bad", Agent: "log", Enabled: true, Actions: []string{"on_play"}, Body: "{{.Params.User",
	}), agents, nil)
	if err == nil {
		t.Error("expected error for bad body template")
	}
}

func TestEngine_Send(t *testing.T) {
	agent := &recordingAgent{}
	e := newTestEngine(t, agent,
		config.NotifierConfig{Name: "b", Agent: "log", Enabled: false, Actions: []string{"on_stop"}, Condition: `user == "nobody"`},
		config.NotifierConfig{Name: "a", Agent: "log", Enabled: true, Actions: []string{"on_stop"}},
	)

	if names := e.Notifiers(); len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("Notifiers() = %v", names)
	}

	a := models.NotifyAction{Kind: models.ActionPlay, Session: testSession("1", 1, "m1"), At: t0}
	if err := e.Send(context.Background(), "b", a); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if got := agent.deliveries(); len(got) != 1 || got[0].notifier != "b" {
		t.Errorf("deliveries = %v", got)
	}
	if err := e.Send(context.Background(), "missing", a); !errors.Is(err, ErrUnknownNotifier) {
		t.Errorf("Send(missing) error = %v", err)
	}
}

func TestEngine_HandleTransitionDoesNotWaitForDelivery(t *testing.T) {
	slow := &recordingAgent{delay: 5 * time.Second}
	cfg := notifyConfig(config.NotifierConfig{Name: "slow", Agent: "slow", Enabled: true, Actions: []string{"on_pause"}})
	cfg.DispatchTimeout = 200 * time.Millisecond
	e, err := NewEngine(cfg, map[string]Agent{"slow": slow}, nil)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}

	start := time.Now()
	e.HandleTransition(context.Background(), models.SessionTransition{Kind: models.TransitionPaused, Session: testSession("1", 1, ""), At: t0})
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("HandleTransition blocked for %v on a slow notifier", elapsed)
	}
	settle(t, e)
	if len(slow.deliveries()) != 0 {
		t.Error("slow delivery should have hit the dispatch timeout")
	}
}

func TestEngine_MinIntervalPerAction(t *testing.T) {
	agent := &recordingAgent{}
	cfg := notifyConfig(config.NotifierConfig{Name: "pauses", Agent: "log", Enabled: true, Actions: []string{"on_pause", "on_resume"}})
	cfg.MinIntervals = map[string]time.Duration{"on_pause": 30 * time.Second}
	e, err := NewEngine(cfg, map[string]Agent{"log": agent}, nil)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}

	s := testSession("1", 1, "")
	for i := 0; i < 4; i++ {
		at := t0.Add(time.Duration(i) * 10 * time.Second)
		e.HandleTransition(context.Background(), models.SessionTransition{Kind: models.TransitionPaused, Session: s, At: at})
		e.HandleTransition(context.Background(), models.SessionTransition{Kind: models.TransitionResumed, Session: s, At: at.Add(5 * time.Second)})
	}
	settle(t, e)

	counts := map[models.ActionKind]int{}
	for _, d := range agent.deliveries() {
		counts[d.action]++
	}
	// Pauses at 0s and 30s pass the 30s interval; resumes are not limited.
	if counts[models.ActionPause] != 2 || counts[models.ActionResume] != 4 {
		t.Errorf("deliveries = %v, want 2 on_pause and 4 on_resume", counts)
	}
}
