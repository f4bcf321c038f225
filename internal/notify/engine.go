// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/tomtom215/playwatch/internal/config"
	"github.com/tomtom215/playwatch/internal/logging"
	"github.com/tomtom215/playwatch/internal/metrics"
	"github.com/tomtom215/playwatch/internal/models"
)

// Notification outcomes recorded in metrics.
const (
	OutcomeSent        = "sent"
	OutcomeFailed      = "failed"
	OutcomeFiltered    = "filtered"
	OutcomeRateLimited = "rate_limited"
	OutcomeSuppressed  = "suppressed"
	OutcomeDropped     = "dropped"
)

// ErrUnknownNotifier is returned by Send for a name that is not configured.
var ErrUnknownNotifier = errors.New("unknown notifier")

type notifier struct {
	cfg       config.NotifierConfig
	actions   map[models.ActionKind]bool
	condition *Condition
	limiter   *rate.Limiter
	agent     Agent
}

// Engine turns session transitions into notifier deliveries. It implements
// dispatch.Handler and runs on the best-effort worker pool, never on the
// machine goroutine. Deliveries run in their own goroutines, at most
// MaxConcurrentDeliveries at a time.
type Engine struct {
	mapper          *Mapper
	gate            *IntervalGate
	notifiers       []*notifier
	byName          map[string]*notifier
	dispatchTimeout time.Duration
	slots           *semaphore.Weighted
	inflight        sync.WaitGroup
	logger          zerolog.Logger
}

// NewEngine compiles every notifier's condition and body template. Any error
// here is a configuration error and should stop startup.
func NewEngine(cfg config.NotifyConfig, agents map[string]Agent, devices DeviceLookup) (*Engine, error) {
	e := &Engine{
		mapper:          NewMapper(cfg.ConcurrentStreamsThreshold, devices, cfg.WatchedCacheTTL),
		gate:            NewIntervalGate(minIntervals(cfg)),
		byName:          make(map[string]*notifier, len(cfg.Notifiers)),
		dispatchTimeout: cfg.DispatchTimeout,
		logger:          logging.WithComponent("notify"),
	}
	if e.dispatchTimeout <= 0 {
		e.dispatchTimeout = 10 * time.Second
	}
	maxConcurrent := cfg.MaxConcurrentDeliveries
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	e.slots = semaphore.NewWeighted(int64(maxConcurrent))

	for _, nc := range cfg.Notifiers {
		agent, ok := agents[nc.Agent]
		if !ok {
			return nil, fmt.Errorf("notifier %q: no agent named %q", nc.Name, nc.Agent)
		}
		cond, err := CompileCondition(nc.Condition)
		if err != nil {
			return nil, fmt.Errorf("notifier %q: %w", nc.Name, err)
		}
		if nc.Body != "" {
			if _, err := ParseBody(nc.Body); err != nil {
				return nil, fmt.Errorf("notifier %q: %w", nc.Name, err)
			}
		}

		n := &notifier{
			cfg:       nc,
			actions:   make(map[models.ActionKind]bool, len(nc.Actions)),
			condition: cond,
			agent:     agent,
		}
		for _, a := range nc.Actions {
			n.actions[models.ActionKind(a)] = true
		}
		if nc.RateLimit > 0 {
			n.limiter = rate.NewLimiter(rate.Limit(nc.RateLimit), max(nc.Burst, 1))
		}
		e.notifiers = append(e.notifiers, n)
		e.byName[nc.Name] = n
	}
	return e, nil
}

// minIntervals merges the buffer default with the per-action overrides.
func minIntervals(cfg config.NotifyConfig) map[models.ActionKind]time.Duration {
	out := map[models.ActionKind]time.Duration{models.ActionBuffer: cfg.BufferInterval}
	for kind, d := range cfg.MinIntervals {
		out[models.ActionKind(kind)] = d
	}
	return out
}

// Name identifies the engine as a fanout handler.
func (e *Engine) Name() string { return "notify" }

// HandleTransition maps t to actions and dispatches each one.
func (e *Engine) HandleTransition(ctx context.Context, t models.SessionTransition) {
	for _, a := range e.mapper.Map(ctx, t) {
		if !e.gate.Allow(t.Session.SessionKey, a.Kind, a.At) {
			metrics.RecordNotification(string(a.Kind), "", OutcomeSuppressed)
			e.logger.Debug().
				Str("session_key", t.Session.SessionKey).
				Str("action", string(a.Kind)).
				Msg("Action suppressed by interval gate")
			continue
		}
		e.Dispatch(ctx, a)
	}

	if t.Kind == models.TransitionStopped || t.Kind == models.TransitionError {
		e.gate.Forget(t.Session.SessionKey)
	}
}

// Dispatch starts delivery of a to every notifier subscribed to its kind
// whose condition matches, and returns without waiting for them. When all
// delivery slots are busy it waits for one until ctx is done, then drops the
// rest. Failures are logged and not retried.
func (e *Engine) Dispatch(ctx context.Context, a models.NotifyAction) {
	for _, n := range e.notifiers {
		if !n.cfg.Enabled || !n.actions[a.Kind] {
			continue
		}
		if !n.condition.Match(&a.Params) {
			metrics.RecordNotification(string(a.Kind), n.cfg.Name, OutcomeFiltered)
			continue
		}
		if n.limiter != nil && !n.limiter.Allow() {
			metrics.RecordNotification(string(a.Kind), n.cfg.Name, OutcomeRateLimited)
			e.logger.Warn().
				Str("notifier", n.cfg.Name).
				Str("action", string(a.Kind)).
				Msg("Notifier rate limit exceeded, dropping action")
			continue
		}

		if err := e.slots.Acquire(ctx, 1); err != nil {
			metrics.RecordNotification(string(a.Kind), n.cfg.Name, OutcomeDropped)
			e.logger.Warn().Err(err).
				Str("notifier", n.cfg.Name).
				Str("action", string(a.Kind)).
				Msg("No delivery slot available, dropping action")
			continue
		}
		e.inflight.Add(1)
		go func(n *notifier) {
			defer e.inflight.Done()
			defer e.slots.Release(1)
			_ = e.deliver(context.WithoutCancel(ctx), n, a)
		}(n)
	}
}

// Wait blocks until every started delivery has finished or ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notify: waiting for deliveries: %w", ctx.Err())
	}
}

// Send delivers a to one notifier by name, bypassing its action set and
// condition. Used by the admin test endpoint.
func (e *Engine) Send(ctx context.Context, name string, a models.NotifyAction) error {
	n, ok := e.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNotifier, name)
	}
	return e.deliver(ctx, n, a)
}

// Notifiers returns the configured notifier names, sorted.
func (e *Engine) Notifiers() []string {
	names := make([]string, 0, len(e.byName))
	for name := range e.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) deliver(ctx context.Context, n *notifier, a models.NotifyAction) error {
	dctx, cancel := context.WithTimeout(ctx, e.dispatchTimeout)
	defer cancel()

	start := time.Now()
	err := n.agent.Deliver(dctx, n.cfg, a)
	metrics.ObserveNotificationDelivery(n.cfg.Agent, time.Since(start))

	if err != nil {
		metrics.RecordNotification(string(a.Kind), n.cfg.Name, OutcomeFailed)
		ev := e.logger.Error().Err(err)
		var derr *DeliveryError
		if errors.As(err, &derr) {
			ev = ev.Int("status", derr.StatusCode).Bool("transient", derr.Transient())
		}
		ev.Str("notifier", n.cfg.Name).
			Str("agent", n.cfg.Agent).
			Str("action", string(a.Kind)).
			Str("session_key", a.Session.SessionKey).
			Msg("Notification delivery failed")
		return err
	}

	metrics.RecordNotification(string(a.Kind), n.cfg.Name, OutcomeSent)
	e.logger.Debug().
		Str("notifier", n.cfg.Name).
		Str("action", string(a.Kind)).
		Str("session_key", a.Session.SessionKey).
		Msg("Notification delivered")
	return nil
}
