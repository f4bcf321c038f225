// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

/*
Package services adapts components that do not already implement
suture.Service.

Most Playwatch components (activity.Machine, dispatch.Pool,
sync.SessionPoller, reconciler.Reconciler, wal.RetryLoop) have a
Serve(ctx) error method and are added to the tree directly. This package
holds the two that need a wrapper:

HTTPServerService:
  - runs ListenAndServe in a goroutine
  - on cancellation calls Shutdown with its own timeout
  - treats http.ErrServerClosed as a clean exit

SpoolGCService:
  - runs Badger value-log GC on the history spool every interval
  - logs failures and keeps going

Both implement fmt.Stringer so suture's event hook can name them.
*/
package services
