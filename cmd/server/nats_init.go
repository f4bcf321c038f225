// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

//go:build nats

package main

import (
	"context"
	"fmt"
	"sync"

	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/playwatch/internal/config"
	"github.com/tomtom215/playwatch/internal/eventprocessor"
	"github.com/tomtom215/playwatch/internal/logging"
	"github.com/tomtom215/playwatch/internal/notify"
)

// NATSComponents holds the bus connection, publisher and optional embedded
// server for lifecycle management.
type NATSComponents struct {
	broker    *eventprocessor.Broker
	natsConn  *natsgo.Conn
	stream    eventprocessor.StreamConfig
	publisher *eventprocessor.Publisher
	mirror    *eventprocessor.TransitionMirror

	mu      sync.Mutex
	running bool
}

// InitNATS connects to NATS when nats.enabled is set. It returns nil, nil
// when NATS is disabled.
func InitNATS(cfg *config.Config) (*NATSComponents, error) {
	if !cfg.NATS.Enabled {
		logging.Info().Msg("NATS disabled, bus notifiers will fail delivery")
		return nil, nil
	}

	components := &NATSComponents{stream: eventprocessor.StreamConfigFrom(cfg.NATS)}

	if cfg.NATS.EmbeddedServer {
		broker, err := eventprocessor.StartEmbeddedBroker(eventprocessor.ServerConfigFrom(cfg.NATS))
		if err != nil {
			return nil, fmt.Errorf("start embedded NATS: %w", err)
		}
		components.broker = broker
	} else {
		components.broker = eventprocessor.ExternalBroker(cfg.NATS.URL)
	}
	natsURL := components.broker.URL()
	logging.Info().
		Str("url", natsURL).
		Bool("embedded", components.broker.Embedded()).
		Msg("NATS broker selected")

	nc, err := eventprocessor.Connect(eventprocessor.DefaultConnConfig(natsURL))
	if err != nil {
		components.Shutdown(context.Background())
		return nil, err
	}
	components.natsConn = nc

	breaker := eventprocessor.NewCircuitBreaker(eventprocessor.DefaultCircuitBreakerConfig("nats-publisher"))
	publisher, err := eventprocessor.NewPublisher(nc, breaker, nil)
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("create publisher: %w", err)
	}
	components.publisher = publisher

	if cfg.NATS.MirrorTransitions {
		mirror, err := eventprocessor.NewTransitionMirror(publisher, cfg.Notify.DispatchTimeout)
		if err != nil {
			components.Shutdown(context.Background())
			return nil, err
		}
		components.mirror = mirror
	}

	return components, nil
}

// Start ensures the stream exists. A failure is returned to the supervisor,
// which restarts the service with backoff until the server is reachable.
func (c *NATSComponents) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	name, err := c.broker.EnsureStream(ctx, c.natsConn, c.stream)
	if err != nil {
		return err
	}
	c.running = true
	logging.Info().Str("stream", name).Msg("NATS stream ready")
	return nil
}

// Shutdown flushes and closes the publisher, then the connection if the
// publisher never got it, then the embedded server. Safe on a nil or
// partially initialized value.
func (c *NATSComponents) Shutdown(ctx context.Context) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing NATS publisher")
		}
	}
	if c.natsConn != nil && !c.natsConn.IsClosed() {
		c.natsConn.Close()
	}
	if err := c.broker.Close(ctx); err != nil {
		logging.Warn().Err(err).Msg("Error stopping embedded NATS server")
	}
	c.running = false
	logging.Info().Msg("NATS components stopped")
}

// IsRunning reports whether Start succeeded and Shutdown has not run.
func (c *NATSComponents) IsRunning() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// ActionPublisher returns the publisher for the bus agent, or nil.
func (c *NATSComponents) ActionPublisher() notify.ActionPublisher {
	if c == nil || c.publisher == nil {
		return nil
	}
	return c.publisher
}

// Mirror returns the transition mirror, or nil when mirroring is off.
func (c *NATSComponents) Mirror() *eventprocessor.TransitionMirror {
	if c == nil {
		return nil
	}
	return c.mirror
}
