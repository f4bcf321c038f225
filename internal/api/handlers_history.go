// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/playwatch/internal/audit"
	"github.com/tomtom215/playwatch/internal/database"
	"github.com/tomtom215/playwatch/internal/history"
	"github.com/tomtom215/playwatch/internal/logging"
	"github.com/tomtom215/playwatch/internal/models"
)

// PurgeResult is the body of the history purge endpoints.
type PurgeResult struct {
	Deleted int64 `json:"deleted"`
}

func (h *Handler) view(rec models.HistoryRecord) models.HistoryView {
	return models.HistoryView{HistoryRecord: rec, WatchedStatus: rec.Watched(h.watchedThreshold)}
}

// History lists history records newest first. Watched status is derived from
// the configured threshold on every read, so changing the threshold changes
// the answer for existing rows.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req, err := parseHistoryRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidation(w, apiErr)
		return
	}

	records, total, err := h.store.ListHistory(r.Context(), req.Filter())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "QUERY_ERROR", "Failed to list history", err)
		return
	}

	views := make([]models.HistoryView, 0, len(records))
	for _, rec := range records {
		views = append(views, h.view(rec))
	}

	respondJSON(w, http.StatusOK, &APIResponse{
		Status: "success",
		Data:   views,
		Metadata: Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: time.Since(start).Milliseconds(),
			Total:       &total,
			Limit:       req.Limit,
			Offset:      req.Offset,
		},
	})
}

// HistoryByID returns one record by id.
func (h *Handler) HistoryByID(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "id must be a positive integer", nil)
		return
	}

	rec, err := h.store.GetHistory(r.Context(), id)
	if errors.Is(err, database.ErrRecordNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "History record not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "QUERY_ERROR", "Failed to load history record", err)
		return
	}
	respondData(w, h.view(*rec), start)
}

// RegroupHistory recomputes consecutive-play grouping over all stored rows.
func (h *Handler) RegroupHistory(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.grouping.Window <= 0 {
		respondError(w, http.StatusConflict, "GROUPING_DISABLED", "History grouping is disabled", nil)
		return
	}

	res, err := history.Regroup(r.Context(), h.store, h.grouping)
	h.record(r, audit.EventTypeHistoryRegroup, err, func(e *audit.Event) {
		e.WithTarget("history", "all").WithMetadata(res)
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "REGROUP_FAILED", "History regroup failed", err)
		return
	}
	respondData(w, res, start)
}

// PurgeUserHistory deletes every record of one user.
func (h *Handler) PurgeUserHistory(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	userID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || userID < 0 {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "id must be a non-negative integer", nil)
		return
	}

	n, err := h.store.DeleteHistoryForUser(r.Context(), userID)
	h.record(r, audit.EventTypeHistoryPurged, err, func(e *audit.Event) {
		e.WithTarget("user", strconv.Itoa(userID)).WithMetadata(PurgeResult{Deleted: n})
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DELETE_FAILED", "Failed to delete user history", err)
		return
	}
	logging.Ctx(r.Context()).Info().Int("user_id", userID).Int64("deleted", n).Msg("User history purged")
	respondData(w, PurgeResult{Deleted: n}, start)
}

// PurgeLibraryHistory deletes every record of one library section.
func (h *Handler) PurgeLibraryHistory(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sectionID := strings.TrimSpace(chi.URLParam(r, "id"))
	if sectionID == "" || len(sectionID) > 64 {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "id must be a library section id", nil)
		return
	}

	n, err := h.store.DeleteHistoryForLibrary(r.Context(), sectionID)
	h.record(r, audit.EventTypeHistoryPurged, err, func(e *audit.Event) {
		e.WithTarget("library", sectionID).WithMetadata(PurgeResult{Deleted: n})
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DELETE_FAILED", "Failed to delete library history", err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("section_id", sanitizeLogValue(sectionID)).Int64("deleted", n).Msg("Library history purged")
	respondData(w, PurgeResult{Deleted: n}, start)
}
