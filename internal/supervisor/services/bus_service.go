// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package services

import (
	"context"
	"fmt"
	"time"
)

// Bus is the message bus lifecycle cmd/server hands to the messaging layer.
type Bus interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context)
}

// BusService keeps the bus open for as long as the messaging layer runs.
// Because that layer is stopped after the final pool drain, mirrored stop
// transitions from the shutdown flush still reach the stream.
type BusService struct {
	bus     Bus
	timeout time.Duration
}

// NewBusService creates the service. A non-positive timeout means 10s.
func NewBusService(bus Bus, shutdownTimeout time.Duration) *BusService {
	return &BusService{bus: bus, timeout: orDefaultTimeout(shutdownTimeout)}
}

// Serve implements suture.Service. A failed Start is returned so the
// supervisor retries with backoff until the server is reachable.
func (s *BusService) Serve(ctx context.Context) error {
	if err := s.bus.Start(ctx); err != nil {
		return fmt.Errorf("message bus start: %w", err)
	}
	<-ctx.Done()

	shutdownCtx, cancel := detachedTimeout(s.timeout)
	defer cancel()
	s.bus.Shutdown(shutdownCtx)
	return ctx.Err()
}

func (s *BusService) String() string { return "message-bus" }

// orDefaultTimeout maps a non-positive shutdown timeout to 10s.
func orDefaultTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}

// detachedTimeout is used once the service context is already canceled.
func detachedTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}
