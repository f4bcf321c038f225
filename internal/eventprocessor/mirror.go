// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package eventprocessor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/playwatch/internal/logging"
	"github.com/tomtom215/playwatch/internal/models"
)

// TransitionPublisher publishes transitions to the bus.
type TransitionPublisher interface {
	PublishTransition(ctx context.Context, t models.SessionTransition) error
}

// TransitionMirror republishes every session transition on
// playwatch.transitions.<kind>. It is registered on the fanout as a
// best-effort handler: a failed publish is logged and forgotten.
type TransitionMirror struct {
	pub     TransitionPublisher
	timeout time.Duration
	logger  zerolog.Logger
}

// NewTransitionMirror creates a mirror over pub.
func NewTransitionMirror(pub TransitionPublisher, timeout time.Duration) (*TransitionMirror, error) {
	if pub == nil {
		return nil, ErrNilPublisher
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &TransitionMirror{
		pub:     pub,
		timeout: timeout,
		logger:  logging.WithComponent("transition-mirror"),
	}, nil
}

// Name implements dispatch.Handler.
func (m *TransitionMirror) Name() string { return "mirror" }

// HandleTransition implements dispatch.Handler.
func (m *TransitionMirror) HandleTransition(ctx context.Context, t models.SessionTransition) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.pub.PublishTransition(ctx, t); err != nil {
		m.logger.Warn().Err(err).
			Str("session_key", t.Session.SessionKey).
			Str("transition", string(t.Kind)).
			Msg("failed to mirror transition")
	}
}
