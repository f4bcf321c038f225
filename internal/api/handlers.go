// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package api

import (
	"context"
	"time"

	"github.com/tomtom215/playwatch/internal/activity"
	"github.com/tomtom215/playwatch/internal/audit"
	"github.com/tomtom215/playwatch/internal/database"
	"github.com/tomtom215/playwatch/internal/history"
	"github.com/tomtom215/playwatch/internal/models"
	"github.com/tomtom215/playwatch/internal/reconciler"
	"github.com/tomtom215/playwatch/internal/wal"
	ws "github.com/tomtom215/playwatch/internal/websocket"
)

// AuditLog records admin actions and reads them back.
type AuditLog interface {
	Record(e *audit.Event)
	Query(ctx context.Context, f audit.QueryFilter) ([]audit.Event, error)
}

// Sessions is the activity machine as seen by the API.
type Sessions interface {
	Snapshot() activity.Snapshot
	FlushAll(ctx context.Context, at time.Time, reason string) (int, error)
}

// HistoryStore is the history table as seen by the API.
type HistoryStore interface {
	history.RegroupStore
	Ping(ctx context.Context) error
	ListHistory(ctx context.Context, f database.HistoryFilter) ([]models.HistoryRecord, int, error)
	GetHistory(ctx context.Context, id int64) (*models.HistoryRecord, error)
	DeleteHistoryForUser(ctx context.Context, userID int) (int64, error)
	DeleteHistoryForLibrary(ctx context.Context, sectionID string) (int64, error)
}

// Notifiers is the notification engine as seen by the API.
type Notifiers interface {
	Send(ctx context.Context, name string, a models.NotifyAction) error
	Notifiers() []string
}

// FeedStatusProvider reports the realtime feed state.
type FeedStatusProvider interface {
	Status() reconciler.FeedStatus
}

// SpoolStats reports the history spool backlog.
type SpoolStats interface {
	Stats() wal.Stats
}

// BusStatus reports whether the message bus stream is ready.
type BusStatus interface {
	IsRunning() bool
}

// Handler holds the dependencies of every endpoint. Feed and Spool are optional.
type Handler struct {
	sessions  Sessions
	store     HistoryStore
	notifiers Notifiers
	feed      FeedStatusProvider
	spool     SpoolStats
	bus       BusStatus
	live      *ws.Hub
	audit     AuditLog
	origins   []string

	watchedThreshold float64
	grouping         history.GroupingRule
	startTime        time.Time
	now              func() time.Time
}

// HandlerConfig carries the history settings the handlers apply at read time.
type HandlerConfig struct {
	WatchedThreshold float64
	Grouping         history.GroupingRule
}

// NewHandler creates the endpoint handlers.
func NewHandler(sessions Sessions, store HistoryStore, notifiers Notifiers, cfg HandlerConfig) *Handler {
	return &Handler{
		sessions:         sessions,
		store:            store,
		notifiers:        notifiers,
		watchedThreshold: cfg.WatchedThreshold,
		grouping:         cfg.Grouping,
		startTime:        time.Now(),
		now:              time.Now,
	}
}

// SetFeedStatus attaches the reconciler so /activity and /health report the feed.
func (h *Handler) SetFeedStatus(feed FeedStatusProvider) {
	h.feed = feed
}

// SetLiveHub enables GET /api/v1/activity/live. origins lists the allowed
// Origin values; "*" allows any.
func (h *Handler) SetLiveHub(hub *ws.Hub, origins []string) {
	h.live = hub
	h.origins = origins
}

// SetAudit enables the audit trail for state-changing endpoints and
// GET /api/v1/audit.
func (h *Handler) SetAudit(a AuditLog) {
	h.audit = a
}

// SetBusStatus attaches the NATS components so /health reports the bus.
func (h *Handler) SetBusStatus(bus BusStatus) {
	h.bus = bus
}

// SetSpoolStats attaches the history spool so /health reports its backlog.
func (h *Handler) SetSpoolStats(spool SpoolStats) {
	h.spool = spool
}
