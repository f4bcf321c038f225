// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
)

// mockService runs until canceled, optionally failing its first failN runs.
type mockService struct {
	name    string
	failN   int32
	starts  atomic.Int32
	stops   atomic.Int32
	running atomic.Bool
}

func newMockService(name string) *mockService {
	return &mockService{name: name}
}

func (m *mockService) Serve(ctx context.Context) error {
	n := m.starts.Add(1)
	defer m.stops.Add(1)

	if n <= m.failN {
		return errors.New("simulated failure")
	}

	m.running.Store(true)
	defer m.running.Store(false)
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockService) String() string { return m.name }
