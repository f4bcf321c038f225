// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/playwatch/internal/reconciler"
)

// HealthStatus is the body of GET /api/v1/health.
type HealthStatus struct {
	Status            string                 `json:"status"` // healthy or degraded
	DatabaseConnected bool                   `json:"database_connected"`
	LiveSessions      int                    `json:"live_sessions"`
	SpoolPending      int64                  `json:"spool_pending"`
	Feed              *reconciler.FeedStatus `json:"feed,omitempty"`
	BusReady          *bool                  `json:"bus_ready,omitempty"`
	Uptime            float64                `json:"uptime_seconds"`
}

// Health reports overall service state. It always answers 200; probes that
// need a failing status use /ready.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	dbConnected := h.store != nil && h.store.Ping(r.Context()) == nil

	health := HealthStatus{
		Status:            "healthy",
		DatabaseConnected: dbConnected,
		LiveSessions:      h.sessions.Snapshot().Len(),
		Uptime:            time.Since(h.startTime).Seconds(),
	}
	if h.spool != nil {
		health.SpoolPending = h.spool.Stats().Pending
	}
	if h.feed != nil {
		fs := h.feed.Status()
		health.Feed = &fs
		if fs.Enabled && !fs.Connected {
			health.Status = "degraded"
		}
	}
	if h.bus != nil {
		ready := h.bus.IsRunning()
		health.BusReady = &ready
		if !ready {
			health.Status = "degraded"
		}
	}
	if !dbConnected {
		health.Status = "degraded"
	}

	respondJSON(w, http.StatusOK, &APIResponse{
		Status:   "success",
		Data:     health,
		Metadata: Metadata{Timestamp: time.Now()},
	})
}

// HealthLive reports that the process is up.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, &APIResponse{
		Status:   "success",
		Data:     map[string]string{"status": "alive"},
		Metadata: Metadata{Timestamp: time.Now()},
	})
}

// HealthReady answers 503 until the history store is reachable.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if h.store == nil || h.store.Ping(r.Context()) != nil {
		respondError(w, http.StatusServiceUnavailable, "NOT_READY", "History store unavailable", nil)
		return
	}
	respondJSON(w, http.StatusOK, &APIResponse{
		Status:   "success",
		Data:     map[string]string{"status": "ready"},
		Metadata: Metadata{Timestamp: time.Now()},
	})
}
