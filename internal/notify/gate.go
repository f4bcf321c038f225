// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package notify

import (
	"sync"
	"time"

	"github.com/tomtom215/playwatch/internal/models"
)

// IntervalGate enforces a minimum interval between actions of one kind for
// one session key. Times are transition times, not the wall clock, so the
// outcome depends only on the event sequence.
type IntervalGate struct {
	mu        sync.Mutex
	intervals map[models.ActionKind]time.Duration
	lastSeen  map[string]map[models.ActionKind]time.Time
}

// NewIntervalGate creates a gate. Kinds without an interval are never held back.
func NewIntervalGate(intervals map[models.ActionKind]time.Duration) *IntervalGate {
	return &IntervalGate{
		intervals: intervals,
		lastSeen:  make(map[string]map[models.ActionKind]time.Time),
	}
}

// Allow reports whether an action of kind for sessionKey at time at may fire,
// and records it if so.
func (g *IntervalGate) Allow(sessionKey string, kind models.ActionKind, at time.Time) bool {
	interval := g.intervals[kind]
	if interval <= 0 {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	kinds := g.lastSeen[sessionKey]
	if kinds == nil {
		kinds = make(map[models.ActionKind]time.Time)
		g.lastSeen[sessionKey] = kinds
	}
	if last, ok := kinds[kind]; ok && at.Sub(last) < interval {
		return false
	}
	kinds[kind] = at
	return true
}

// Forget drops all state for sessionKey. Called when the session ends so a
// later session reusing the key starts fresh.
func (g *IntervalGate) Forget(sessionKey string) {
	g.mu.Lock()
	delete(g.lastSeen, sessionKey)
	g.mu.Unlock()
}

// Len returns the number of tracked session keys.
func (g *IntervalGate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.lastSeen)
}
