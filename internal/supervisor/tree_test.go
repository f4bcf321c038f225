// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewSupervisorTree_Defaults(t *testing.T) {
	tree, err := NewSupervisorTree(testLogger(), TreeConfig{})
	if err != nil {
		t.Fatalf("NewSupervisorTree() error: %v", err)
	}
	if tree.config != DefaultTreeConfig() {
		t.Errorf("config = %+v, want %+v", tree.config, DefaultTreeConfig())
	}
	if tree.Root() == nil {
		t.Error("Root() = nil")
	}
}

func TestSupervisorTree_RunsEveryLayer(t *testing.T) {
	tree, _ := NewSupervisorTree(testLogger(), TreeConfig{ShutdownTimeout: time.Second})

	svcs := []*mockService{
		newMockService("data"), newMockService("pipeline"), newMockService("ingest"),
		newMockService("messaging"), newMockService("api"),
	}
	tree.AddDataService(svcs[0])
	tree.AddPipelineService(svcs[1])
	tree.AddIngestService(svcs[2])
	tree.AddMessagingService(svcs[3])
	tree.AddAPIService(svcs[4])

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	for _, s := range svcs {
		waitFor(t, s.name+" to start", s.running.Load)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not stop")
	}
	for _, s := range svcs {
		if s.running.Load() {
			t.Errorf("%s still running", s.name)
		}
	}
}

func TestSupervisorTree_StopIngest(t *testing.T) {
	tree, _ := NewSupervisorTree(testLogger(), TreeConfig{ShutdownTimeout: time.Second})

	poller := newMockService("poller")
	machine := newMockService("machine")
	tree.AddIngestService(poller)
	tree.AddPipelineService(machine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := tree.ServeBackground(ctx)

	waitFor(t, "services to start", func() bool { return poller.running.Load() && machine.running.Load() })

	if err := tree.StopIngest(time.Second); err != nil {
		t.Fatalf("StopIngest() error: %v", err)
	}
	if poller.running.Load() {
		t.Error("ingest service still running after StopIngest")
	}
	if !machine.running.Load() {
		t.Error("pipeline should keep running after StopIngest")
	}

	cancel()
	<-errCh
}

func TestSupervisorTree_RestartsFailingService(t *testing.T) {
	tree, _ := NewSupervisorTree(testLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})

	flaky := newMockService("flaky")
	flaky.failN = 2
	tree.AddPipelineService(flaky)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	waitFor(t, "flaky service to recover", flaky.running.Load)
	if got := flaky.starts.Load(); got != 3 {
		t.Errorf("starts = %d, want 3", got)
	}

	cancel()
	<-errCh
}
