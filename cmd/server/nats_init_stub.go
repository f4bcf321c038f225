// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

//go:build !nats

package main

import (
	"context"

	"github.com/tomtom215/playwatch/internal/config"
	"github.com/tomtom215/playwatch/internal/eventprocessor"
	"github.com/tomtom215/playwatch/internal/logging"
	"github.com/tomtom215/playwatch/internal/notify"
)

// NATSComponents is a stub for non-NATS builds.
type NATSComponents struct{}

// InitNATS returns nil; NATS support is not compiled in.
func InitNATS(cfg *config.Config) (*NATSComponents, error) {
	if cfg.NATS.Enabled {
		logging.Warn().Msg("nats.enabled=true but NATS support not compiled (build with -tags nats)")
	}
	return nil, nil
}

// Start is a no-op stub for non-NATS builds.
func (c *NATSComponents) Start(_ context.Context) error { return nil }

// Shutdown is a no-op stub for non-NATS builds.
func (c *NATSComponents) Shutdown(_ context.Context) {}

// IsRunning returns false for non-NATS builds.
func (c *NATSComponents) IsRunning() bool { return false }

// ActionPublisher returns nil for non-NATS builds.
func (c *NATSComponents) ActionPublisher() notify.ActionPublisher { return nil }

// Mirror returns nil for non-NATS builds.
func (c *NATSComponents) Mirror() *eventprocessor.TransitionMirror { return nil }
