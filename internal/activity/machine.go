// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/playwatch/internal/logging"
	"github.com/tomtom215/playwatch/internal/metrics"
	"github.com/tomtom215/playwatch/internal/models"
)

// Sink receives transitions in the order the machine produced them.
// Publish is called from the machine goroutine and must not block for long.
type Sink interface {
	Publish(t models.SessionTransition)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(models.SessionTransition)

// Publish implements Sink.
func (f SinkFunc) Publish(t models.SessionTransition) { f(t) }

// Config configures a Machine.
type Config struct {
	// QueueSize bounds the input channel.
	QueueSize int
	// GraceWindow is how long a session may be missing from polls before it
	// is treated as stopped. It is the inactivity timeout for poll absence:
	// a vanished session stops no earlier than GraceWindow after it was last
	// seen and no later than GraceWindow plus one poll interval. The stale
	// timeout only applies to sessions the reconciler sweeps between polls.
	GraceWindow time.Duration
	// StopMemory is how long a stopped key is remembered so that events
	// observed before the stop cannot start it again. Defaults to 10m.
	StopMemory time.Duration
	Rules      Rules
}

type cmdKind int

const (
	cmdEvent cmdKind = iota
	cmdPoll
	cmdForceStop
	cmdFlush
	cmdBarrier
)

type command struct {
	kind     cmdKind
	event    models.RawActivityEvent
	poll     []models.RawActivityEvent
	at       time.Time
	key      string
	lastSeen time.Time
	reason   string
	reply    chan int
}

// Machine is the single writer of the session table.
type Machine struct {
	cfg   Config
	table *Table
	sink  Sink
	input chan command
	// stopped maps recently removed keys to the time they ended.
	stopped map[string]time.Time
	logger  zerolog.Logger
}

// NewMachine creates a machine publishing transitions to sink.
func NewMachine(cfg Config, sink Sink) *Machine {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.StopMemory <= 0 {
		cfg.StopMemory = 10 * time.Minute
	}
	if cfg.Rules.NewID == nil {
		cfg.Rules.NewID = DefaultRules().NewID
	}
	return &Machine{
		cfg:     cfg,
		table:   NewTable(),
		sink:    sink,
		input:   make(chan command, cfg.QueueSize),
		stopped: make(map[string]time.Time),
		logger:  logging.WithComponent("activity"),
	}
}

// Serve consumes the input queue until ctx is canceled.
func (m *Machine) Serve(ctx context.Context) error {
	m.logger.Info().Int("queue_size", cap(m.input)).Msg("activity machine started")
	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Int("live_sessions", len(m.table.live)).Msg("activity machine stopped")
			return ctx.Err()
		case cmd := <-m.input:
			m.handle(cmd)
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (m *Machine) String() string { return "activity-machine" }

// Snapshot returns the current published view of the session table.
func (m *Machine) Snapshot() Snapshot { return m.table.Snapshot() }

// Submit enqueues a single push event, blocking while the queue is full.
func (m *Machine) Submit(ctx context.Context, ev models.RawActivityEvent) error {
	return m.enqueue(ctx, command{kind: cmdEvent, event: ev})
}

// SubmitPoll enqueues a complete poll result. Sessions missing from events are
// stopped once they have been unseen for at least the grace window.
func (m *Machine) SubmitPoll(ctx context.Context, events []models.RawActivityEvent, observedAt time.Time) error {
	return m.enqueue(ctx, command{kind: cmdPoll, poll: events, at: observedAt})
}

// ForceStop stops key through the normal transition path, but only if the
// session has not been seen since lastSeen.
func (m *Machine) ForceStop(ctx context.Context, key string, lastSeen time.Time, reason string) error {
	return m.enqueue(ctx, command{kind: cmdForceStop, key: key, lastSeen: lastSeen, reason: reason})
}

// FlushAll stops every live session as of at and returns how many were stopped.
func (m *Machine) FlushAll(ctx context.Context, at time.Time, reason string) (int, error) {
	reply := make(chan int, 1)
	if err := m.enqueue(ctx, command{kind: cmdFlush, at: at, reason: reason, reply: reply}); err != nil {
		return 0, err
	}
	select {
	case n := <-reply:
		return n, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Sync returns once every command enqueued before it has been processed.
func (m *Machine) Sync(ctx context.Context) error {
	reply := make(chan int, 1)
	if err := m.enqueue(ctx, command{kind: cmdBarrier, reply: reply}); err != nil {
		return err
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Machine) enqueue(ctx context.Context, cmd command) error {
	select {
	case m.input <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Machine) handle(cmd command) {
	switch cmd.kind {
	case cmdEvent:
		m.apply(cmd.event)
	case cmdPoll:
		m.applyPoll(cmd.poll, cmd.at)
	case cmdForceStop:
		s, ok := m.table.Lookup(cmd.key)
		if !ok || !s.LastSeenAt.Equal(cmd.lastSeen) {
			m.logger.Debug().Str("session_key", cmd.key).Msg("force stop skipped, session refreshed or gone")
			return
		}
		m.apply(syntheticStop(s, s.LastSeenAt, cmd.reason))
	case cmdFlush:
		keys := m.table.Keys()
		for _, k := range keys {
			s, _ := m.table.Lookup(k)
			m.apply(syntheticStop(s, cmd.at, cmd.reason))
		}
		if len(keys) > 0 {
			m.logger.Info().Int("sessions", len(keys)).Str("reason", cmd.reason).Msg("flushed live sessions")
		}
		cmd.reply <- len(keys)
	case cmdBarrier:
		cmd.reply <- 0
	}
}

func (m *Machine) applyPoll(events []models.RawActivityEvent, observedAt time.Time) {
	for key, at := range m.stopped {
		if observedAt.Sub(at) > m.cfg.StopMemory {
			delete(m.stopped, key)
		}
	}

	present := make(map[string]struct{}, len(events))
	for _, ev := range events {
		present[ev.SessionKey] = struct{}{}
		m.apply(ev)
	}
	for _, key := range m.table.Keys() {
		if _, ok := present[key]; ok {
			continue
		}
		s, _ := m.table.Lookup(key)
		if observedAt.Sub(s.LastSeenAt) < m.cfg.GraceWindow {
			continue
		}
		m.apply(syntheticStop(s, s.LastSeenAt, ReasonPollAbsent))
	}
}

func (m *Machine) apply(ev models.RawActivityEvent) {
	if ev.SessionKey == "" {
		m.logger.Warn().Str("rating_key", ev.RatingKey).Str("source", string(ev.Source)).Msg("dropping event without session key")
		metrics.RecordSessionDropped("malformed")
		return
	}
	metrics.RecordEventIngested(string(ev.Source))

	prev, existed := m.table.Lookup(ev.SessionKey)
	var p *models.Session
	if existed {
		p = &prev
	} else if stoppedAt, ok := m.stopped[ev.SessionKey]; ok && ev.State.Live() && !ev.ObservedAt.After(stoppedAt) {
		m.logError(ev, fmt.Errorf("%w: %s observed at %s, stopped at %s", ErrStaleEvent, ev.SessionKey,
			ev.ObservedAt.Format(time.RFC3339Nano), stoppedAt.Format(time.RFC3339Nano)))
		return
	}

	next, transitions, err := Apply(p, ev, m.cfg.Rules)
	if err != nil {
		m.logError(ev, err)
		if errors.Is(err, ErrStaleEvent) {
			return
		}
	}

	switch {
	case next == nil && existed:
		m.table.Delete(ev.SessionKey)
		m.stopped[ev.SessionKey] = latest(ev.ObservedAt, prev.LastSeenAt)
	case next != nil && !existed:
		delete(m.stopped, ev.SessionKey)
		next.InitialStream = !m.userHasOtherStream(next.UserID, next.SessionKey)
		for i := range transitions {
			transitions[i].Session.InitialStream = next.InitialStream
		}
		m.table.Put(*next)
	case next != nil:
		m.table.Put(*next)
	default:
		if len(transitions) == 0 {
			return
		}
	}

	snap := m.table.Publish(ev.ObservedAt)
	metrics.SetLiveSessions(snap.Len())

	for i := range transitions {
		t := transitions[i]
		if t.Kind == models.TransitionStarted {
			t.Active = snap.Sessions
		}
		metrics.RecordTransition(string(t.Kind))
		m.logger.Debug().
			Str("session_key", t.Session.SessionKey).
			Str("transition", string(t.Kind)).
			Str("state", string(t.Session.State)).
			Int64("view_offset", t.Session.ViewOffset).
			Bool("synthetic", t.Synthetic).
			Msg("session transition")
		m.sink.Publish(t)
	}
}

func (m *Machine) userHasOtherStream(userID int, key string) bool {
	for k, s := range m.table.live {
		if k != key && s.UserID == userID {
			return true
		}
	}
	return false
}

func (m *Machine) logError(ev models.RawActivityEvent, err error) {
	if errors.Is(err, ErrStaleEvent) {
		m.logger.Debug().Err(err).Str("source", string(ev.Source)).Msg("dropping out-of-date event")
		metrics.RecordEventOutOfOrder(string(ev.Source))
		return
	}
	if errors.Is(err, ErrLookupExhausted) {
		m.logger.Error().Err(err).
			Str("session_key", ev.SessionKey).
			Str("rating_key", ev.RatingKey).
			Msg("dropping session, media item unresolvable")
		metrics.RecordSessionDropped("lookup")
		return
	}
	m.logger.Debug().Err(err).Str("session_key", ev.SessionKey).Msg("transition rejected")
	metrics.RecordInvalidTransition()
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

// syntheticStop builds the stop event used by every inferred stop path.
func syntheticStop(s models.Session, at time.Time, reason string) models.RawActivityEvent {
	return models.RawActivityEvent{
		SessionKey: s.SessionKey,
		SessionID:  s.SessionID,
		RatingKey:  s.RatingKey,
		UserID:     s.UserID,
		UserName:   s.UserName,
		State:      models.StateStopped,
		ViewOffset: s.ViewOffset,
		ObservedAt: at,
		Source:     models.SourceSynthetic,
		Reason:     reason,
	}
}
