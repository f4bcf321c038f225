// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package audit

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/playwatch/internal/auth"
	"github.com/tomtom215/playwatch/internal/config"
	"github.com/tomtom215/playwatch/internal/logging"
)

// Logger writes events to a Store from its own goroutine so request
// handlers never wait on the database.
type Logger struct {
	store     Store
	enabled   bool
	retention time.Duration
	cleanup   time.Duration
	events    chan *Event
	now       func() time.Time
}

// NewLogger creates a logger over store.
func NewLogger(store Store, cfg config.AuditConfig) *Logger {
	size := cfg.BufferSize
	if size <= 0 {
		size = 256
	}
	cleanup := cfg.CleanupInterval
	if cleanup <= 0 {
		cleanup = 24 * time.Hour
	}
	return &Logger{
		store:     store,
		enabled:   cfg.Enabled,
		retention: cfg.Retention,
		cleanup:   cleanup,
		events:    make(chan *Event, size),
		now:       time.Now,
	}
}

// Record queues e. ID and Timestamp are filled in when empty. A full buffer
// drops the event with a warning.
func (l *Logger) Record(e *Event) {
	if l == nil || !l.enabled || e == nil {
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now().UTC()
	}
	select {
	case l.events <- e:
	default:
		logging.Warn().Str("event_id", e.ID).Str("type", string(e.Type)).Msg("Audit event buffer full, dropping event")
	}
}

// Query reads events from the store.
func (l *Logger) Query(ctx context.Context, f QueryFilter) ([]Event, error) {
	return l.store.Query(ctx, f)
}

// Serve implements suture.Service. Queued events are written before it
// returns.
func (l *Logger) Serve(ctx context.Context) error {
	ticker := time.NewTicker(l.cleanup)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.drain()
			return ctx.Err()
		case e := <-l.events:
			l.write(e)
		case <-ticker.C:
			l.purgeExpired(ctx)
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (l *Logger) String() string { return "audit-logger" }

func (l *Logger) drain() {
	for {
		select {
		case e := <-l.events:
			l.write(e)
		default:
			return
		}
	}
}

func (l *Logger) write(e *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.store.Save(ctx, e); err != nil {
		logging.Error().Err(err).Str("event_id", e.ID).Msg("Failed to save audit event")
	}
}

func (l *Logger) purgeExpired(ctx context.Context) {
	if l.retention <= 0 {
		return
	}
	n, err := l.store.Delete(ctx, l.now().Add(-l.retention))
	if err != nil {
		logging.Error().Err(err).Msg("Audit cleanup error")
		return
	}
	if n > 0 {
		logging.Info().Int64("count", n).Msg("Cleaned up old audit events")
	}
}

// FromRequest starts an event with the actor, source and request id of r.
func FromRequest(r *http.Request, typ EventType, outcome Outcome) *Event {
	actor := "anonymous"
	if c, ok := auth.ClaimsFromContext(r.Context()); ok && c.Username != "" {
		actor = c.Username
	}
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return &Event{
		Type:      typ,
		Outcome:   outcome,
		Actor:     actor,
		SourceIP:  ip,
		UserAgent: r.UserAgent(),
		RequestID: logging.RequestIDFromContext(r.Context()),
	}
}

// WithTarget sets the target and returns e.
func (e *Event) WithTarget(targetType, id string) *Event {
	e.TargetType = targetType
	e.TargetID = id
	return e
}

// WithMetadata sets the metadata from any JSON-encodable value and returns e.
func (e *Event) WithMetadata(v any) *Event {
	e.Metadata = mustJSON(v)
	return e
}

// Describe sets the description and returns e.
func (e *Event) Describe(s string) *Event {
	e.Description = s
	return e
}
