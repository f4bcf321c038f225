// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/playwatch/internal/models"
)

func servePool(t *testing.T, p *Pool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func drain(t *testing.T, p *Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
}

func TestPool_PerKeyOrdering(t *testing.T) {
	p := NewPool(Config{Name: "test-order", Workers: 4, QueueSize: 64})
	servePool(t, p)

	var mu sync.Mutex
	seen := map[string][]int{}
	for i := 0; i < 50; i++ {
		for _, key := range []string{"a", "b", "c"} {
			i, key := i, key
			if err := p.Submit(context.Background(), key, func(context.Context) {
				mu.Lock()
				seen[key] = append(seen[key], i)
				mu.Unlock()
			}); err != nil {
				t.Fatal(err)
			}
		}
	}
	drain(t, p)

	for key, order := range seen {
		for i, v := range order {
			if v != i {
				t.Fatalf("key %s ran out of order: %v", key, order)
			}
		}
	}
}

func TestPool_TrySubmitFull(t *testing.T) {
	t.Parallel()

	// Not serving, so nothing is consumed.
	p := NewPool(Config{Name: "test-full", Workers: 1, QueueSize: 1})
	if err := p.TrySubmit("k", func(context.Context) {}); err != nil {
		t.Fatalf("first TrySubmit: %v", err)
	}
	if err := p.TrySubmit("k", func(context.Context) {}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("second TrySubmit = %v, want ErrQueueFull", err)
	}
	if p.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", p.Pending())
	}
}

func TestPool_DrainTimesOut(t *testing.T) {
	t.Parallel()

	p := NewPool(Config{Name: "test-drain", Workers: 1, QueueSize: 1})
	_ = p.TrySubmit("k", func(context.Context) {})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := p.Drain(ctx); err == nil {
		t.Fatal("Drain should time out while a job is still queued")
	}
}

func TestPool_RecoversFromPanic(t *testing.T) {
	p := NewPool(Config{Name: "test-panic", Workers: 1, QueueSize: 4})
	servePool(t, p)

	var ran atomic.Bool
	_ = p.Submit(context.Background(), "k", func(context.Context) { panic("notifier exploded") })
	_ = p.Submit(context.Background(), "k", func(context.Context) { ran.Store(true) })
	drain(t, p)

	if !ran.Load() {
		t.Error("worker died after a panicking job")
	}
}

type recordingHandler struct {
	name string
	mu   sync.Mutex
	got  []models.TransitionKind
	gate chan struct{}
}

func (h *recordingHandler) Name() string { return h.name }

func (h *recordingHandler) HandleTransition(_ context.Context, t models.SessionTransition) {
	if h.gate != nil {
		<-h.gate
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.got = append(h.got, t.Kind)
}

func (h *recordingHandler) kinds() []models.TransitionKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.TransitionKind(nil), h.got...)
}

type spillingHandler struct {
	recordingHandler
	spilled []models.TransitionKind
	err     error
}

func (h *spillingHandler) Spill(_ context.Context, t models.SessionTransition) error {
	if h.err != nil {
		return h.err
	}
	h.spilled = append(h.spilled, t.Kind)
	return nil
}

func TestFanout_DeliversToEveryHandlerInOrder(t *testing.T) {
	guaranteed := NewPool(Config{Name: "test-fanout-g", Workers: 2, QueueSize: 16})
	bestEffort := NewPool(Config{Name: "test-fanout-b", Workers: 2, QueueSize: 16})
	servePool(t, guaranteed)
	servePool(t, bestEffort)

	history := &recordingHandler{name: "history"}
	notify := &recordingHandler{name: "notify"}
	f := NewFanout(guaranteed, bestEffort, time.Second)
	f.Register(history, true)
	f.Register(notify, false)

	s := models.Session{SessionKey: "9"}
	for _, k := range []models.TransitionKind{models.TransitionStarted, models.TransitionPaused, models.TransitionStopped} {
		f.Publish(models.SessionTransition{Kind: k, Session: s})
	}
	drain(t, guaranteed)
	drain(t, bestEffort)

	for _, h := range []*recordingHandler{history, notify} {
		if len(h.got) != 3 || h.got[0] != models.TransitionStarted || h.got[2] != models.TransitionStopped {
			t.Errorf("%s got %v", h.name, h.got)
		}
	}
}

func TestFanout_BestEffortHandlerDropsWhenFull(t *testing.T) {
	t.Parallel()

	// Pool is never served: queues only fill.
	p := NewPool(Config{Name: "test-drop", Workers: 1, QueueSize: 1})
	notify := &recordingHandler{name: "notify"}
	f := NewFanout(NewPool(Config{Name: "test-drop-g"}), p, 10*time.Millisecond)
	f.Register(notify, false)

	s := models.Session{SessionKey: "9"}
	f.Publish(models.SessionTransition{Kind: models.TransitionStarted, Session: s})
	f.Publish(models.SessionTransition{Kind: models.TransitionPaused, Session: s})

	if p.Pending() != 1 {
		t.Errorf("Pending = %d, want 1 (second transition dropped)", p.Pending())
	}
}

func TestFanout_HungBestEffortHandlerDoesNotDelayHistory(t *testing.T) {
	guaranteed := NewPool(Config{Name: "test-hol-g", Workers: 1, QueueSize: 2})
	bestEffort := NewPool(Config{Name: "test-hol-b", Workers: 1, QueueSize: 2})
	servePool(t, guaranteed)
	servePool(t, bestEffort)

	notify := &recordingHandler{name: "notify", gate: make(chan struct{})}
	// Runs before the pool cleanups so the stuck worker can exit.
	t.Cleanup(func() { close(notify.gate) })
	history := &recordingHandler{name: "history"}

	f := NewFanout(guaranteed, bestEffort, time.Second)
	f.Register(notify, false)
	f.Register(history, true)

	start := time.Now()
	for i := 0; i < 5; i++ {
		s := models.Session{SessionKey: string(rune('a' + i))}
		f.Publish(models.SessionTransition{Kind: models.TransitionStopped, Session: s})
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Publish blocked for %v behind a hung best-effort handler", elapsed)
	}

	drain(t, guaranteed)
	if got := len(history.kinds()); got != 5 {
		t.Errorf("history received %d of 5 transitions", got)
	}
}

func TestFanout_SpillsWhenGuaranteedPoolSaturated(t *testing.T) {
	t.Parallel()

	// Never served: the single slot fills and the second submit times out.
	guaranteed := NewPool(Config{Name: "test-spill-g", Workers: 1, QueueSize: 1})
	history := &spillingHandler{recordingHandler: recordingHandler{name: "history"}}
	f := NewFanout(guaranteed, NewPool(Config{Name: "test-spill-b"}), 10*time.Millisecond)
	f.Register(history, true)

	s := models.Session{SessionKey: "9"}
	f.Publish(models.SessionTransition{Kind: models.TransitionPaused, Session: s})
	f.Publish(models.SessionTransition{Kind: models.TransitionStopped, Session: s})

	if len(history.spilled) != 1 || history.spilled[0] != models.TransitionStopped {
		t.Errorf("spilled = %v, want [stopped]", history.spilled)
	}
	if guaranteed.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", guaranteed.Pending())
	}
}
