// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

/*
Package main is the entry point for the Playwatch server.

Playwatch watches a Plex Media Server, keeps a live table of playback
sessions, records finished sessions to a DuckDB history table and fires
notifications on playback events.

# Application Architecture

	RootSupervisor ("playwatch")
	├── DataSupervisor ("data-layer")
	│   ├── audit logger (when audit.enabled)
	│   └── spool GC (when wal.enabled)
	├── PipelineSupervisor ("pipeline-layer")
	│   ├── activity machine
	│   ├── dispatch pool
	│   ├── websocket hub (live activity viewers)
	│   └── spool retry loop (when wal.enabled)
	├── IngestSupervisor ("ingest-layer")
	│   ├── plex poller
	│   └── reconciler (push feed and stale sweep)
	├── MessagingSupervisor ("messaging-layer")
	│   └── NATS components (-tags nats, nats.enabled)
	└── APISupervisor ("api-layer")
	    └── HTTP server

Transitions leave the activity machine through a fanout onto the dispatch
pool. The history writer is registered as guaranteed, so the machine blocks
for queue space instead of dropping a stop. Notifications and the NATS
mirror are best effort.

# Shutdown

On SIGINT or SIGTERM the ingest layer is removed first, the machine and the
pool are drained, every live session is stopped with reason "shutdown" and
written to history, and the pool is drained again before the tree is
canceled.

# Usage

	playwatch                       # run the server
	playwatch -issue-token alice    # print an admin API token and exit

Configuration is read from config.yaml (or CONFIG_PATH) and environment
variables; see the config package.

# Build Tags

	go build ./cmd/server                # NATS disabled
	go build -tags nats ./cmd/server     # bus notifiers and transition mirror
*/
package main
