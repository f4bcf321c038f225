// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package history

import (
	"time"

	"github.com/tomtom215/playwatch/internal/models"
)

// Filter reasons reported in logs and metrics.
const (
	FilterTooShort        = "too_short"
	FilterUserDisabled    = "user_disabled"
	FilterLibraryDisabled = "library_disabled"
)

// RetentionPolicy decides which stopped sessions become history.
type RetentionPolicy struct {
	MinDuration       time.Duration
	DisabledUsers     map[int]struct{}
	DisabledLibraries map[string]struct{}
}

// NewRetentionPolicy builds a policy from configuration lists.
func NewRetentionPolicy(minDuration time.Duration, disabledUsers []int, disabledLibraries []string) RetentionPolicy {
	p := RetentionPolicy{
		MinDuration:       minDuration,
		DisabledUsers:     make(map[int]struct{}, len(disabledUsers)),
		DisabledLibraries: make(map[string]struct{}, len(disabledLibraries)),
	}
	for _, id := range disabledUsers {
		p.DisabledUsers[id] = struct{}{}
	}
	for _, id := range disabledLibraries {
		p.DisabledLibraries[id] = struct{}{}
	}
	return p
}

// Keep reports whether s should be persisted, and if not, why.
func (p RetentionPolicy) Keep(s models.Session) (bool, string) {
	if _, ok := p.DisabledUsers[s.UserID]; ok {
		return false, FilterUserDisabled
	}
	if s.Media.LibrarySectionID != "" {
		if _, ok := p.DisabledLibraries[s.Media.LibrarySectionID]; ok {
			return false, FilterLibraryDisabled
		}
	}
	if s.PlayedDuration(s.StoppedAt) < p.MinDuration {
		return false, FilterTooShort
	}
	return true, ""
}
