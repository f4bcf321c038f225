// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

/*
Package history turns stopped sessions into persisted history records.

A stopped session first passes the retention filter (minimum played time with
pauses excluded, per-user and per-library opt-outs). The resulting record is
then either merged into the user's immediately preceding record for the same
item or written as a new group:

	prev.StoppedAt within GroupingWindow of next.StartedAt
	AND next.StartOffset >= prev.ViewOffset - OffsetTolerance

A merge moves the group's stop time and offset forward, sums paused time and
increments GroupCount. A restart from the beginning fails the offset check and
starts a new group.

Writes are at-least-once with a bounded number of attempts. A transient
failure spools the record to the WAL, whose retry loop replays it through
Writer.Replay until it succeeds or the attempt budget is spent. Data and
corruption failures (see Classify) are abandoned at once and logged.

Regroup recomputes grouping over the whole table using the same rule. It can
only merge rows, never split them.
*/
package history
