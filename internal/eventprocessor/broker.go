// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

//go:build nats

package eventprocessor

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const brokerReadyTimeout = 30 * time.Second

// Broker is the NATS endpoint Playwatch publishes to: either an in-process
// JetStream server or an external URL.
type Broker struct {
	srv *server.Server
	url string
}

// StartEmbeddedBroker boots a single-node JetStream server bound to the
// configured host and port.
func StartEmbeddedBroker(cfg ServerConfig) (*Broker, error) {
	ns, err := server.NewServer(&server.Options{
		ServerName:         "playwatch",
		Host:               cfg.Host,
		Port:               cfg.Port,
		JetStream:          true,
		StoreDir:           cfg.StoreDir,
		JetStreamMaxMemory: cfg.JetStreamMaxMem,
		JetStreamMaxStore:  cfg.JetStreamMaxStore,
		NoSigs:             true,
	})
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}

	ns.ConfigureLogger()
	go ns.Start()

	if !ns.ReadyForConnections(brokerReadyTimeout) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready after %s", brokerReadyTimeout)
	}
	return &Broker{srv: ns, url: ns.ClientURL()}, nil
}

// ExternalBroker wraps an already running server.
func ExternalBroker(url string) *Broker {
	return &Broker{url: url}
}

// URL is the client connection URL.
func (b *Broker) URL() string { return b.url }

// Embedded reports whether the broker runs in this process.
func (b *Broker) Embedded() bool { return b.srv != nil }

// EnsureStream creates the transition stream, or updates it in place when
// the retention settings changed since the last start.
func (b *Broker) EnsureStream(ctx context.Context, nc *nats.Conn, cfg StreamConfig) (string, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return "", fmt.Errorf("create JetStream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       cfg.Name,
		Subjects:   cfg.Subjects,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     cfg.MaxAge,
		MaxBytes:   cfg.MaxBytes,
		MaxMsgs:    cfg.MaxMsgs,
		Duplicates: cfg.DuplicateWindow,
		Replicas:   cfg.Replicas,
		Storage:    jetstream.FileStorage,
		Discard:    jetstream.DiscardOld,
	})
	if err != nil {
		return "", fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
	}
	return stream.CachedInfo().Config.Name, nil
}

// Close stops an embedded server. External brokers are left alone.
func (b *Broker) Close(ctx context.Context) error {
	if b == nil || b.srv == nil {
		return nil
	}
	b.srv.Shutdown()

	done := make(chan struct{})
	go func() {
		b.srv.WaitForShutdown()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
