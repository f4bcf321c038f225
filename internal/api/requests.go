// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/tomtom215/playwatch/internal/database"
)

const defaultHistoryLimit = 50

// HistoryRequest is the validated query of GET /api/v1/history.
type HistoryRequest struct {
	Limit     int    `query:"limit" validate:"gte=1,lte=1000"`
	Offset    int    `query:"offset" validate:"gte=0"`
	UserID    *int   `query:"user_id" validate:"omitempty,gte=0"`
	RatingKey string `query:"rating_key" validate:"omitempty,max=64"`
	SectionID string `query:"section_id" validate:"omitempty,max=64"`
}

// Filter converts the request to a store filter.
func (r HistoryRequest) Filter() database.HistoryFilter {
	return database.HistoryFilter{
		UserID:           r.UserID,
		RatingKey:        r.RatingKey,
		LibrarySectionID: r.SectionID,
		Limit:            r.Limit,
		Offset:           r.Offset,
	}
}

// NotifierTestRequest is the optional body of POST /api/v1/notifiers/{name}/test.
type NotifierTestRequest struct {
	Action string `json:"action" validate:"omitempty,notify_action"`
}

// parseHistoryRequest reads the query string. Non-numeric values are errors
// rather than silently falling back to defaults.
func parseHistoryRequest(r *http.Request) (HistoryRequest, error) {
	q := r.URL.Query()
	req := HistoryRequest{
		Limit:     defaultHistoryLimit,
		RatingKey: strings.TrimSpace(q.Get("rating_key")),
		SectionID: strings.TrimSpace(q.Get("section_id")),
	}

	var err error
	if req.Limit, err = intParam(q.Get("limit"), "limit", defaultHistoryLimit); err != nil {
		return req, err
	}
	if req.Offset, err = intParam(q.Get("offset"), "offset", 0); err != nil {
		return req, err
	}
	if v := q.Get("user_id"); v != "" {
		id, err := intParam(v, "user_id", 0)
		if err != nil {
			return req, err
		}
		req.UserID = &id
	}
	return req, nil
}

func intParam(value, name string, def int) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return def, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}
