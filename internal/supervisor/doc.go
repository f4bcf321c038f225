// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

// Package supervisor builds the suture supervision tree that runs every
// long-lived Playwatch component.
//
// # Tree Layout
//
//	playwatch (root)
//	├── data-layer       audit logger, spool GC
//	├── pipeline-layer   activity machine, dispatch pool, live hub, spool retry loop
//	├── ingest-layer     plex poller, reconciler
//	├── messaging-layer  NATS bus
//	└── api-layer        http server
//
// A service that returns an error is restarted with suture's backoff. After
// FailureThreshold failures (decaying at FailureDecay per second) its
// supervisor waits FailureBackoff before trying again, so one crashing
// component never takes the others down.
//
// # Shutdown
//
// Canceling the Serve context stops everything at once, which is not what a
// clean shutdown wants. cmd/server instead:
//
//  1. calls StopIngest so no new events are produced
//  2. syncs the machine and drains the pool
//  3. flushes every live session with reason "shutdown"
//  4. drains the pool again
//  5. cancels the tree context
//
// # Logging
//
// Supervisor events go through sutureslog into the application's zerolog
// logger via logging.NewSlogLogger.
package supervisor
