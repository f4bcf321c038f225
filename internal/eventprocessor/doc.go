// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

// Package eventprocessor connects Playwatch to a NATS JetStream bus through
// Watermill.
//
// The bus is optional and outbound only. Two things publish to it:
//
//   - the "bus" notifier agent, via Publisher.PublishAction, on the subject
//     configured for the notifier (default playwatch.notify.<action>)
//   - the TransitionMirror, registered as a best-effort fanout handler, on
//     playwatch.transitions.<kind>
//
// Message IDs are name-based UUIDs derived from the session instance, the
// kind and the timestamp, and are sent as Nats-Msg-Id so JetStream drops
// duplicates inside the stream's duplicate window.
//
// # Build Tags
//
// Connect, the Watermill publisher and the Broker are compiled only with
// -tags nats. Subjects, serialization and the mirror build without it, so
// the rest of the tree can depend on them unconditionally.
//
// # Embedded Server
//
// With nats.embedded_server the process starts its own single-node
// JetStream server on 127.0.0.1:4222 and stores data under nats.store_dir.
// Otherwise nats.url points at an external server.
package eventprocessor
