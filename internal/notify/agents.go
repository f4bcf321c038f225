// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/tomtom215/playwatch/internal/config"
	"github.com/tomtom215/playwatch/internal/logging"
	"github.com/tomtom215/playwatch/internal/models"
)

// LogAgent writes actions to the structured log. Useful for dry runs.
type LogAgent struct {
	logger zerolog.Logger
}

// NewLogAgent creates a LogAgent.
func NewLogAgent() *LogAgent {
	return &LogAgent{logger: logging.WithComponent("notify-log")}
}

// Deliver logs the rendered message.
func (l *LogAgent) Deliver(_ context.Context, cfg config.NotifierConfig, a models.NotifyAction) error {
	msg, err := RenderMessage(cfg.Body, a)
	if err != nil {
		return err
	}
	l.logger.Info().
		Str("notifier", cfg.Name).
		Str("action", string(a.Kind)).
		Str("session_key", a.Session.SessionKey).
		Str("user", a.Params.User).
		Msg(msg)
	return nil
}

// ActionPublisher publishes an action onto the message bus.
type ActionPublisher interface {
	PublishAction(ctx context.Context, subject string, a models.NotifyAction) error
}

// ErrBusUnavailable is returned by BusAgent when no publisher is wired.
var ErrBusUnavailable = errors.New("message bus not available")

// DefaultBusSubjectPrefix is used when a bus notifier has no subject.
const DefaultBusSubjectPrefix = "playwatch.notify."

// BusAgent publishes actions to NATS through an ActionPublisher.
type BusAgent struct {
	publisher ActionPublisher
}

// NewBusAgent creates a BusAgent. publisher may be nil when NATS is disabled.
func NewBusAgent(publisher ActionPublisher) *BusAgent {
	return &BusAgent{publisher: publisher}
}

// Deliver publishes a to cfg.Subject, or playwatch.notify.<action>.
func (b *BusAgent) Deliver(ctx context.Context, cfg config.NotifierConfig, a models.NotifyAction) error {
	if b.publisher == nil {
		return ErrBusUnavailable
	}
	subject := cfg.Subject
	if subject == "" {
		subject = DefaultBusSubjectPrefix + string(a.Kind)
	} else {
		var err error
		if subject, err = RenderSubject(subject, a); err != nil {
			return err
		}
	}
	return b.publisher.PublishAction(ctx, subject, a)
}

// DefaultAgents returns the built-in agents keyed by the names notifiers use
// in their agent field.
func DefaultAgents(publisher ActionPublisher) map[string]Agent {
	return map[string]Agent{
		"webhook": NewWebhookAgent(),
		"discord": NewDiscordAgent(),
		"log":     NewLogAgent(),
		"bus":     NewBusAgent(publisher),
	}
}
