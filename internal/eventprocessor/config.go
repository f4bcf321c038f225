// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package eventprocessor

import (
	"time"

	"github.com/tomtom215/playwatch/internal/config"
)

// Subject roots. Everything Playwatch publishes lives under SubjectRoot.
const (
	SubjectRoot              = "playwatch"
	TransitionSubjectPrefix  = SubjectRoot + ".transitions."
	DefaultStreamName        = "PLAYWATCH"
	defaultDuplicateWindow   = 2 * time.Minute
	defaultStreamMaxAge      = 7 * 24 * time.Hour
	defaultEmbeddedHost      = "127.0.0.1"
	defaultEmbeddedPort      = 4222
	defaultEmbeddedMaxMemory = 256 << 20 // 256MB
	defaultEmbeddedMaxStore  = 1 << 30   // 1GB
)

// ServerConfig holds embedded NATS server configuration.
type ServerConfig struct {
	Host              string
	Port              int
	StoreDir          string
	JetStreamMaxMem   int64
	JetStreamMaxStore int64
}

// DefaultServerConfig returns defaults for the embedded server.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:              defaultEmbeddedHost,
		Port:              defaultEmbeddedPort,
		StoreDir:          "/data/nats/jetstream",
		JetStreamMaxMem:   defaultEmbeddedMaxMemory,
		JetStreamMaxStore: defaultEmbeddedMaxStore,
	}
}

// ServerConfigFrom applies the nats section over DefaultServerConfig.
func ServerConfigFrom(cfg config.NATSConfig) ServerConfig {
	sc := DefaultServerConfig()
	if cfg.StoreDir != "" {
		sc.StoreDir = cfg.StoreDir
	}
	if cfg.MaxMemory > 0 {
		sc.JetStreamMaxMem = cfg.MaxMemory
	}
	if cfg.MaxStore > 0 {
		sc.JetStreamMaxStore = cfg.MaxStore
	}
	return sc
}

// ConnConfig controls the single client connection shared by the
// publisher and the stream setup.
type ConnConfig struct {
	URL             string
	Name            string
	MaxReconnects   int // -1 is unlimited
	ReconnectWait   time.Duration
	ReconnectBuffer int // bytes buffered while reconnecting
}

// DefaultConnConfig reconnects forever and buffers 8MB of publishes while
// the server is away.
func DefaultConnConfig(url string) ConnConfig {
	return ConnConfig{
		URL:             url,
		Name:            "playwatch",
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		ReconnectBuffer: 8 << 20,
	}
}

// StreamConfig defines the JetStream stream that captures Playwatch subjects.
type StreamConfig struct {
	Name            string
	Subjects        []string
	MaxAge          time.Duration
	MaxBytes        int64
	MaxMsgs         int64
	DuplicateWindow time.Duration
	Replicas        int
}

// DefaultStreamConfig returns the stream configuration used when the nats
// section leaves a field unset.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Name:            DefaultStreamName,
		Subjects:        []string{SubjectRoot + ".>"},
		MaxAge:          defaultStreamMaxAge,
		MaxBytes:        -1,
		MaxMsgs:         -1,
		DuplicateWindow: defaultDuplicateWindow,
		Replicas:        1,
	}
}

// StreamConfigFrom applies the nats section over DefaultStreamConfig.
func StreamConfigFrom(cfg config.NATSConfig) StreamConfig {
	sc := DefaultStreamConfig()
	if cfg.StreamName != "" {
		sc.Name = cfg.StreamName
	}
	if cfg.StreamRetention > 0 {
		sc.MaxAge = cfg.StreamRetention
	}
	return sc
}

// CircuitBreakerConfig holds circuit breaker settings.
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32        // Allowed in half-open state
	Interval         time.Duration // Reset interval for counts
	Timeout          time.Duration // Time to stay open
	FailureThreshold uint32        // Consecutive failures before opening
}

// DefaultCircuitBreakerConfig returns production defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
	}
}
