// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package sync

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable is wrapped by every connectivity failure of the
	// event source. An empty poll result is never returned alongside it.
	ErrSourceUnavailable = errors.New("event source unavailable")

	// ErrItemNotFound is returned by media lookups for a deleted or moved item.
	ErrItemNotFound = errors.New("media item not found")

	// ErrRateLimited is returned when Plex keeps answering 429.
	ErrRateLimited = errors.New("plex rate limit exceeded")
)

// SourceError describes a failed event source operation.
type SourceError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *SourceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("plex %s: HTTP %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("plex %s: %v", e.Op, e.Err)
}

// Unwrap exposes both the cause and ErrSourceUnavailable to errors.Is.
func (e *SourceError) Unwrap() []error {
	return []error{ErrSourceUnavailable, e.Err}
}

func sourceErr(op string, status int, err error) error {
	return &SourceError{Op: op, StatusCode: status, Err: err}
}
