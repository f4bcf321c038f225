// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

/*
Package notify turns session transitions into notifications.

The Engine is registered on the dispatch fanout as a best-effort handler.
For every transition it:

  - maps the transition to zero or more actions (Mapper). A stop past the
    watched threshold yields on_stop and on_watched; a start may add
    on_concurrent_streams and on_new_device, both judged against the table
    snapshot carried by the started transition.
  - holds back an action for a session key until its minimum interval has
    passed since the last one of that kind (IntervalGate). on_buffer uses
    notify.buffer_interval; notify.min_intervals sets any other kind.
  - evaluates each notifier's action set and compiled Condition against the
    action's ActionParams.
  - applies the notifier's token bucket, then starts delivery through the
    named Agent under notify.dispatch_timeout. HandleTransition does not
    wait for deliveries; at most notify.max_concurrent_deliveries run at
    once. Engine.Wait lets shutdown and tests wait for them.

Delivery failures are logged and counted, never retried here.

# Conditions

Conditions are parsed once at startup. Unknown parameters are rejected then,
not at evaluation time:

	user == "alice" and media_type == "movie"
	not local and (transcode_decision == "transcode" or user_streams >= 3)
	title contains "star wars" && progress_percent < 10

See ParamNames for the parameters a condition can use.

# Agents

Built-in agents are webhook, discord, log and bus. The bus agent publishes to
NATS through an ActionPublisher supplied by the eventprocessor package.
*/
package notify
