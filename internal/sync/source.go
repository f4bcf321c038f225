// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/playwatch/internal/config"
	"github.com/tomtom215/playwatch/internal/logging"
	"github.com/tomtom215/playwatch/internal/metrics"
	"github.com/tomtom215/playwatch/internal/models"
)

// Subscription is a live push feed. Events is closed when the feed ends;
// Err then reports why. Close ends the feed and waits for it.
type Subscription interface {
	Events() <-chan models.RawActivityEvent
	Err() error
	Close() error
}

// EventSource is the capability the reconciler and poller consume.
type EventSource interface {
	Subscribe(ctx context.Context) (Subscription, error)
	PollActiveSessions(ctx context.Context) ([]models.RawActivityEvent, error)
}

type sessionFetcher interface {
	GetSessions(ctx context.Context) ([]models.PlexSession, error)
}

// PlexSource normalizes the Plex websocket feed and /status/sessions into
// RawActivityEvents. It stamps ObservedAt; nothing downstream reads the clock.
type PlexSource struct {
	baseURL  string
	token    string
	client   sessionFetcher
	media    MediaLookup
	debounce *Debouncer
	now      func() time.Time
	logger   zerolog.Logger
}

// NewPlexSource creates a source. media may be nil to use the metadata
// embedded in each session.
func NewPlexSource(cfg *config.PlexConfig, client sessionFetcher, media MediaLookup, debounce time.Duration) *PlexSource {
	return &PlexSource{
		baseURL:  cfg.URL,
		token:    cfg.Token,
		client:   client,
		media:    media,
		debounce: NewDebouncer(debounce),
		now:      time.Now,
		logger:   logging.WithComponent("plex-source"),
	}
}

// PollActiveSessions returns one event per active session. On failure it
// returns a *SourceError and no events.
func (s *PlexSource) PollActiveSessions(ctx context.Context) ([]models.RawActivityEvent, error) {
	start := time.Now()
	sessions, err := s.client.GetSessions(ctx)
	metrics.RecordPoll(time.Since(start), err)
	if err != nil {
		return nil, err
	}

	at := s.now()
	events := make([]models.RawActivityEvent, 0, len(sessions))
	for i := range sessions {
		ev, ok := eventFromSession(ctx, &sessions[i], s.media, models.SourcePoll, at)
		if !ok {
			s.logger.Debug().Str("session_key", sessions[i].SessionKey).Msg("skipping session without usable player state")
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// CheckSource runs one poll under timeout so a wrong URL or a rejected token
// is reported at startup instead of on every tick. It returns the number of
// sessions the server reported.
func CheckSource(ctx context.Context, src EventSource, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	events, err := src.PollActiveSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire event source: %w", err)
	}
	return len(events), nil
}

// Subscribe dials the notifications websocket.
func (s *PlexSource) Subscribe(ctx context.Context) (Subscription, error) {
	conn, err := dialFeed(ctx, s.baseURL, s.token)
	if err != nil {
		return nil, err
	}
	f := &plexFeed{
		conn:   conn,
		events: make(chan models.RawActivityEvent, 64),
		done:   make(chan struct{}),
	}
	f.handler = func(ctx context.Context, n models.PlexPlayingNotification) bool {
		ev, ok := s.eventFromNotification(ctx, n)
		if !ok {
			return true
		}
		return f.emit(ctx, ev)
	}
	f.start(ctx)
	s.logger.Info().Msg("Plex WebSocket connected")
	return f, nil
}

// eventFromNotification turns a playing notification into a full event.
// Stops carry only what the notification has; the machine already knows the
// rest. Other states are enriched from /status/sessions. When that fails or
// the session is not listed yet, the notification is dropped and the next
// poll catches up.
func (s *PlexSource) eventFromNotification(ctx context.Context, n models.PlexPlayingNotification) (models.RawActivityEvent, bool) {
	at := s.now()
	state, ok := models.ParseSessionState(n.State)
	if !ok || n.SessionKey == "" {
		s.logger.Debug().Str("state", n.State).Str("session_key", n.SessionKey).Msg("ignoring notification")
		return models.RawActivityEvent{}, false
	}
	if !s.debounce.Allow(n.SessionKey, state, at) {
		return models.RawActivityEvent{}, false
	}

	if state == models.StateStopped {
		return models.RawActivityEvent{
			SessionKey: n.SessionKey,
			RatingKey:  n.RatingKey,
			State:      models.StateStopped,
			ViewOffset: n.ViewOffset,
			ObservedAt: at,
			Source:     models.SourcePush,
		}, true
	}

	sessions, err := s.client.GetSessions(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Str("session_key", n.SessionKey).Msg("session fetch failed, dropping notification")
		return models.RawActivityEvent{}, false
	}
	for i := range sessions {
		if sessions[i].SessionKey != n.SessionKey {
			continue
		}
		ev, ok := eventFromSession(ctx, &sessions[i], s.media, models.SourcePush, at)
		if !ok {
			return models.RawActivityEvent{}, false
		}
		// The notification is newer than the session listing.
		ev.State = state
		ev.ViewOffset = n.ViewOffset
		return ev, true
	}
	s.logger.Debug().Str("session_key", n.SessionKey).Msg("notified session not listed yet")
	return models.RawActivityEvent{}, false
}
