// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/playwatch/internal/audit"
)

// AuditRequest is the query of GET /api/v1/audit.
type AuditRequest struct {
	Limit int    `query:"limit" validate:"gte=1,lte=500"`
	Type  string `query:"type" validate:"omitempty,oneof=sessions.flushed history.purged history.regrouped notifier.tested"`
	Actor string `query:"actor" validate:"max=128"`
}

// record writes an audit event when the trail is enabled.
func (h *Handler) record(r *http.Request, typ audit.EventType, err error, build func(*audit.Event)) {
	if h.audit == nil {
		return
	}
	outcome := audit.OutcomeSuccess
	if err != nil {
		outcome = audit.OutcomeFailure
	}
	e := audit.FromRequest(r, typ, outcome)
	if build != nil {
		build(e)
	}
	if err != nil && e.Description == "" {
		e.Description = err.Error()
	}
	h.audit.Record(e)
}

// AuditEvents lists recorded admin actions, newest first.
func (h *Handler) AuditEvents(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.audit == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Audit trail disabled", nil)
		return
	}

	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), "limit", 100)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	req := AuditRequest{Limit: limit, Type: q.Get("type"), Actor: q.Get("actor")}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidation(w, apiErr)
		return
	}

	filter := audit.QueryFilter{Limit: req.Limit, Actor: req.Actor}
	if req.Type != "" {
		filter.Types = []audit.EventType{audit.EventType(req.Type)}
	}
	events, err := h.audit.Query(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "QUERY_ERROR", "Failed to query audit events", err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	respondData(w, events, start)
}
