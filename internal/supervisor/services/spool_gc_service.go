// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package services

import (
	"context"
	"time"

	"github.com/tomtom215/playwatch/internal/logging"
)

// GCRunner is satisfied by *wal.BadgerWAL.
type GCRunner interface {
	RunGC() error
}

// SpoolGCService runs Badger value-log GC on the history spool at a fixed
// interval. A failed pass is logged and retried on the next tick.
type SpoolGCService struct {
	spool    GCRunner
	interval time.Duration
	name     string
}

// NewSpoolGCService creates the service. A non-positive interval means 10m.
func NewSpoolGCService(spool GCRunner, interval time.Duration) *SpoolGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &SpoolGCService{
		spool:    spool,
		interval: interval,
		name:     "spool-gc",
	}
}

// Serve implements suture.Service.
func (s *SpoolGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.spool.RunGC(); err != nil {
				logging.Warn().Err(err).Msg("spool value log GC failed")
			}
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (s *SpoolGCService) String() string {
	return s.name
}
