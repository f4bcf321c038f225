// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

//go:build nats

package eventprocessor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/playwatch/internal/logging"
	"github.com/tomtom215/playwatch/internal/metrics"
	"github.com/tomtom215/playwatch/internal/models"
)

const closeFlushTimeout = 2 * time.Second

// Publisher sends transitions and notify actions to JetStream through
// Watermill on a shared connection. Every publish goes through the breaker
// so a dead broker costs one fast failure per call instead of a timeout.
type Publisher struct {
	conn    *natsgo.Conn
	out     message.Publisher
	breaker *gobreaker.CircuitBreaker[any]
	closed  atomic.Bool
}

// NewPublisher publishes on nc. The stream must already exist; see
// Broker.EnsureStream. A nil logger routes Watermill logs through the
// application logger.
func NewPublisher(nc *natsgo.Conn, breaker *gobreaker.CircuitBreaker[any], logger watermill.LoggerAdapter) (*Publisher, error) {
	if logger == nil {
		logger = watermill.NewSlogLogger(logging.NewSlogLogger())
	}

	out, err := wmNats.NewPublisherWithNatsConn(nc, wmNats.PublisherPublishConfig{
		Marshaler: &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}
	return &Publisher{conn: nc, out: out, breaker: breaker}, nil
}

// Publish sends msg to subject. The message UUID doubles as Nats-Msg-Id
// unless the caller set one.
func (p *Publisher) Publish(ctx context.Context, subject string, msg *message.Message) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}
	if err := ValidateSubject(subject); err != nil {
		return err
	}
	if msg.Metadata.Get(natsgo.MsgIdHdr) == "" {
		msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	}
	msg.SetContext(ctx)

	send := func() (any, error) { return nil, p.out.Publish(subject, msg) }
	var err error
	if p.breaker != nil {
		_, err = p.breaker.Execute(send)
	} else {
		_, err = send()
	}

	metrics.RecordBusPublish(subject, err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// PublishTransition implements TransitionPublisher.
func (p *Publisher) PublishTransition(ctx context.Context, t models.SessionTransition) error {
	msg, err := NewTransitionMessage(t)
	if err != nil {
		return err
	}
	return p.Publish(ctx, TransitionSubject(t.Kind), msg)
}

// PublishAction implements notify.ActionPublisher.
func (p *Publisher) PublishAction(ctx context.Context, subject string, a models.NotifyAction) error {
	msg, err := NewActionMessage(a)
	if err != nil {
		return err
	}
	return p.Publish(ctx, subject, msg)
}

// Close flushes buffered publishes and closes the connection. Later calls
// are no-ops.
func (p *Publisher) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := p.conn.FlushTimeout(closeFlushTimeout); err != nil {
		logging.Warn().Err(err).Msg("NATS flush before close failed")
	}
	return p.out.Close()
}
