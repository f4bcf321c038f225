// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/playwatch/internal/audit"
	"github.com/tomtom215/playwatch/internal/models"
	"github.com/tomtom215/playwatch/internal/notify"
)

const maxBodyBytes = 4 << 10

// NotifierList is the body of GET /api/v1/notifiers.
type NotifierList struct {
	Notifiers []string `json:"notifiers"`
}

// Notifiers lists the configured notifier names.
func (h *Handler) Notifiers(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()
	respondData(w, NotifierList{Notifiers: h.notifiers.Notifiers()}, start)
}

// TestNotifier delivers a sample action to one notifier, ignoring its action
// set and condition.
func (h *Handler) TestNotifier(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name := chi.URLParam(r, "name")

	var req NotifierTestRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "Failed to read request body", nil)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_BODY", "Request body must be JSON", nil)
			return
		}
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidation(w, apiErr)
		return
	}

	kind := models.ActionPlay
	if req.Action != "" {
		kind = models.ActionKind(req.Action)
	}

	err = h.notifiers.Send(r.Context(), name, sampleAction(kind, h.now()))
	h.record(r, audit.EventTypeNotifierTested, err, func(e *audit.Event) {
		e.WithTarget("notifier", name).WithMetadata(map[string]string{"action": string(kind)})
	})
	switch {
	case errors.Is(err, notify.ErrUnknownNotifier):
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Unknown notifier", nil)
	case err != nil:
		respondError(w, http.StatusBadGateway, "DELIVERY_FAILED", err.Error(), err)
	default:
		respondData(w, map[string]string{"notifier": name, "action": string(kind)}, start)
	}
}

// sampleAction builds a plausible action so templates and payload builders
// have every field to render.
func sampleAction(kind models.ActionKind, at time.Time) models.NotifyAction {
	s := models.Session{
		InstanceID: "test",
		SessionKey: "test",
		RatingKey:  "0",
		UserName:   "playwatch",
		State:      models.StatePlaying,
		ViewOffset: 30 * 60 * 1000,
		Duration:   60 * 60 * 1000,
		StartedAt:  at.Add(-30 * time.Minute),
		LastSeenAt: at,
		Stream:     models.StreamDetails{TranscodeDecision: "direct play"},
		Player: models.PlayerInfo{
			MachineID: "playwatch-test",
			Platform:  "Playwatch",
			Title:     "Notification test",
		},
		Media: models.MediaItem{
			RatingKey: "0",
			MediaType: "movie",
			Title:     "Playwatch Test Notification",
			Duration:  60 * 60 * 1000,
		},
		MediaResolved: true,
	}
	tr := models.SessionTransition{Kind: models.TransitionStarted, Session: s, At: at, Active: []models.Session{s}}
	return models.NotifyAction{
		Kind:       kind,
		Session:    s,
		Params:     notify.BuildParams(kind, tr),
		Transition: string(tr.Kind),
		At:         at,
	}
}
