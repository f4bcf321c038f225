// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package sync

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/playwatch/internal/logging"
	"github.com/tomtom215/playwatch/internal/models"
)

// PollTarget receives complete poll results.
type PollTarget interface {
	SubmitPoll(ctx context.Context, events []models.RawActivityEvent, observedAt time.Time) error
}

// SessionPoller polls the event source on a fixed interval and hands every
// successful result to the activity machine. A failed poll is logged and
// skipped; it is never reported as an empty server.
type SessionPoller struct {
	source   EventSource
	target   PollTarget
	interval time.Duration
	now      func() time.Time
	logger   zerolog.Logger

	polls    atomic.Int64
	failures atomic.Int64
}

// NewSessionPoller creates a poller.
func NewSessionPoller(source EventSource, target PollTarget, interval time.Duration) *SessionPoller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &SessionPoller{
		source:   source,
		target:   target,
		interval: interval,
		now:      time.Now,
		logger:   logging.WithComponent("plex-poller"),
	}
}

// Serve implements suture.Service.
func (p *SessionPoller) Serve(ctx context.Context) error {
	p.logger.Info().Dur("interval", p.interval).Msg("Starting session poller")

	p.PollOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Session poller stopped")
			return ctx.Err()
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (p *SessionPoller) String() string { return "plex-poller" }

// PollOnce runs a single poll. It reports whether the result was submitted.
func (p *SessionPoller) PollOnce(ctx context.Context) bool {
	p.polls.Add(1)
	events, err := p.source.PollActiveSessions(ctx)
	if err != nil {
		p.failures.Add(1)
		if ctx.Err() == nil {
			p.logger.Warn().Err(err).Msg("Failed to poll active sessions")
		}
		return false
	}
	if err := p.target.SubmitPoll(ctx, events, p.now()); err != nil {
		if ctx.Err() == nil {
			p.logger.Error().Err(err).Msg("Failed to submit poll result")
		}
		return false
	}
	p.logger.Debug().Int("sessions", len(events)).Msg("Poll submitted")
	return true
}

// PollerStats holds runtime statistics.
type PollerStats struct {
	Polls    int64         `json:"polls"`
	Failures int64         `json:"failures"`
	Interval time.Duration `json:"interval"`
}

// Stats returns counters since start.
func (p *SessionPoller) Stats() PollerStats {
	return PollerStats{
		Polls:    p.polls.Load(),
		Failures: p.failures.Load(),
		Interval: p.interval,
	}
}
