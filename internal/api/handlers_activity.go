// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/playwatch/internal/activity"
	"github.com/tomtom215/playwatch/internal/audit"
	"github.com/tomtom215/playwatch/internal/auth"
	"github.com/tomtom215/playwatch/internal/logging"
	"github.com/tomtom215/playwatch/internal/models"
	"github.com/tomtom215/playwatch/internal/reconciler"
)

// ActivitySession is a live session with its progress resolved.
type ActivitySession struct {
	models.Session
	ProgressPercent float64 `json:"progress_percent"`
}

// ActivityResponse is the body of GET /api/v1/activity.
type ActivityResponse struct {
	StreamCount int                    `json:"stream_count"`
	Version     uint64                 `json:"version"`
	Published   time.Time              `json:"published"`
	Sessions    []ActivitySession      `json:"sessions"`
	Feed        *reconciler.FeedStatus `json:"feed,omitempty"`
}

// FlushResult is the body of POST /api/v1/sessions/flush.
type FlushResult struct {
	Flushed int `json:"flushed"`
}

func toActivitySession(s models.Session) ActivitySession {
	return ActivitySession{Session: s, ProgressPercent: s.PercentComplete() * 100}
}

// Activity returns the current live session table.
func (h *Handler) Activity(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()
	snap := h.sessions.Snapshot()

	out := ActivityResponse{
		StreamCount: snap.Len(),
		Version:     snap.Version,
		Published:   snap.Published,
		Sessions:    make([]ActivitySession, 0, snap.Len()),
	}
	for _, s := range snap.Sessions {
		out.Sessions = append(out.Sessions, toActivitySession(s))
	}
	if h.feed != nil {
		fs := h.feed.Status()
		out.Feed = &fs
	}

	respondData(w, out, start)
}

// SessionByKey returns one live session by session key.
func (h *Handler) SessionByKey(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key := chi.URLParam(r, "key")

	s, ok := h.sessions.Snapshot().Get(key)
	if !ok {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "No live session with that key", nil)
		return
	}
	respondData(w, toActivitySession(s), start)
}

// FlushSessions stops every live session and records each to history.
func (h *Handler) FlushSessions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	n, err := h.sessions.FlushAll(r.Context(), h.now(), activity.ReasonFlush)
	h.record(r, audit.EventTypeSessionsFlushed, err, func(e *audit.Event) {
		e.WithTarget("sessions", "all").WithMetadata(FlushResult{Flushed: n})
	})
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "FLUSH_FAILED", "Failed to flush live sessions", err)
		return
	}

	by := "unknown"
	if c, ok := auth.ClaimsFromContext(r.Context()); ok {
		by = c.Username
	}
	logging.Ctx(r.Context()).Info().Int("flushed", n).Str("by", sanitizeLogValue(by)).Msg("Live sessions flushed")

	respondData(w, FlushResult{Flushed: n}, start)
}
