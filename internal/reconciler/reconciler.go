// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/playwatch/internal/activity"
	"github.com/tomtom215/playwatch/internal/logging"
	"github.com/tomtom215/playwatch/internal/metrics"
	"github.com/tomtom215/playwatch/internal/models"
	plexsync "github.com/tomtom215/playwatch/internal/sync"
)

// Target is the activity machine as seen by the reconciler. Every write goes
// through the machine's input queue.
type Target interface {
	Submit(ctx context.Context, ev models.RawActivityEvent) error
	SubmitPoll(ctx context.Context, events []models.RawActivityEvent, observedAt time.Time) error
	ForceStop(ctx context.Context, key string, lastSeen time.Time, reason string) error
	Snapshot() activity.Snapshot
}

// Config configures a Reconciler.
type Config struct {
	// StaleTimeout stops sessions not seen for this long.
	StaleTimeout time.Duration
	// Interval is the sweep period. It should not exceed StaleTimeout.
	Interval time.Duration
	// Realtime enables the push feed. When false only the sweep runs.
	Realtime       bool
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// FeedStatus describes the push feed.
type FeedStatus struct {
	Enabled     bool      `json:"enabled"`
	Connected   bool      `json:"connected"`
	Reconnects  int       `json:"reconnects"`
	LastError   string    `json:"last_error,omitempty"`
	ConnectedAt time.Time `json:"connected_at,omitempty"`
}

// Reconciler supervises the push feed and sweeps stale sessions.
type Reconciler struct {
	cfg    Config
	source plexsync.EventSource
	target Target
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	logger zerolog.Logger

	mu     sync.Mutex
	status FeedStatus
}

// New creates a Reconciler.
func New(cfg Config, source plexsync.EventSource, target Target) *Reconciler {
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = time.Second
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		cfg.BackoffMax = 32 * cfg.BackoffInitial
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	return &Reconciler{
		cfg:    cfg,
		source: source,
		target: target,
		now:    time.Now,
		sleep:  sleepCtx,
		logger: logging.WithComponent("reconciler"),
		status: FeedStatus{Enabled: cfg.Realtime},
	}
}

// Serve implements suture.Service. It runs the sweep and, when enabled, the
// feed loop until ctx is canceled.
func (r *Reconciler) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if r.cfg.Realtime {
		g.Go(func() error { return r.runFeed(gctx) })
	}
	g.Go(func() error { return r.runSweep(gctx) })
	return g.Wait()
}

// String implements fmt.Stringer for supervisor logging.
func (r *Reconciler) String() string { return "reconciler" }

// Status returns the current feed status.
func (r *Reconciler) Status() FeedStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Reconciler) runSweep(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Sweep(ctx, r.now())
		}
	}
}

// Sweep force-stops every session unseen for at least StaleTimeout as of now
// and returns how many stops it requested. The machine discards a stop if
// the session was refreshed after this snapshot was taken.
func (r *Reconciler) Sweep(ctx context.Context, now time.Time) int {
	metrics.RecordStaleSweep()
	n := 0
	for _, s := range r.target.Snapshot().Sessions {
		if now.Sub(s.LastSeenAt) < r.cfg.StaleTimeout {
			continue
		}
		if err := r.target.ForceStop(ctx, s.SessionKey, s.LastSeenAt, activity.ReasonStale); err != nil {
			if ctx.Err() == nil {
				r.logger.Error().Err(err).Str("session_key", s.SessionKey).Msg("failed to queue stale stop")
			}
			return n
		}
		r.logger.Info().
			Str("session_key", s.SessionKey).
			Time("last_seen_at", s.LastSeenAt).
			Dur("silent_for", now.Sub(s.LastSeenAt)).
			Msg("stopping stale session")
		n++
	}
	return n
}

// runFeed keeps one subscription open. After every (re)connect it runs one
// full poll before forwarding incremental events. Reconnects back off
// exponentially from BackoffInitial up to BackoffMax.
func (r *Reconciler) runFeed(ctx context.Context) error {
	backoff := r.cfg.BackoffInitial
	for {
		sub, err := r.source.Subscribe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.disconnected(err)
			r.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("push feed connect failed")
			if err := r.sleep(ctx, backoff); err != nil {
				return err
			}
			backoff = min(backoff*2, r.cfg.BackoffMax)
			continue
		}

		backoff = r.cfg.BackoffInitial
		r.connected()
		r.resync(ctx)

		err = r.forward(ctx, sub)
		_ = sub.Close()
		if ctx.Err() != nil {
			r.setConnected(false)
			return ctx.Err()
		}
		r.disconnected(err)
		r.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("push feed lost, reconnecting")
		if err := r.sleep(ctx, backoff); err != nil {
			return err
		}
	}
}

// resync submits one full poll so events missed while disconnected are
// reflected before incremental updates resume.
func (r *Reconciler) resync(ctx context.Context) {
	events, err := r.source.PollActiveSessions(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("resync poll failed, relying on the next scheduled poll")
		return
	}
	if err := r.target.SubmitPoll(ctx, events, r.now()); err != nil && ctx.Err() == nil {
		r.logger.Error().Err(err).Msg("failed to submit resync poll")
		return
	}
	r.logger.Info().Int("sessions", len(events)).Msg("session table resynchronized")
}

// forward relays feed events until the subscription ends and returns why.
func (r *Reconciler) forward(ctx context.Context, sub plexsync.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.Events():
			if !ok {
				return sub.Err()
			}
			if err := r.target.Submit(ctx, ev); err != nil {
				return err
			}
		}
	}
}

func (r *Reconciler) connected() {
	r.mu.Lock()
	r.status.Connected = true
	r.status.ConnectedAt = r.now()
	r.status.LastError = ""
	r.mu.Unlock()
	metrics.SetFeedConnected(true)
}

func (r *Reconciler) disconnected(err error) {
	r.mu.Lock()
	r.status.Connected = false
	r.status.Reconnects++
	if err != nil {
		r.status.LastError = err.Error()
	}
	r.mu.Unlock()
	metrics.SetFeedConnected(false)
	metrics.RecordFeedReconnect()
}

func (r *Reconciler) setConnected(v bool) {
	r.mu.Lock()
	r.status.Connected = v
	r.mu.Unlock()
	metrics.SetFeedConnected(v)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
