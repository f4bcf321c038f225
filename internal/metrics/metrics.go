// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

// Package metrics declares the Prometheus collectors for Playwatch.
// Collectors are package-level and registered with the default registry;
// callers use the Record* and Set* helpers.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingest
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playwatch_events_ingested_total",
			Help: "Activity events applied by the session machine",
		},
		[]string{"source"}, // push, poll, synthetic
	)

	EventsDebounced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playwatch_events_debounced_total",
			Help: "Push events discarded by the per-session debounce",
		},
	)

	EventsOutOfOrder = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playwatch_events_out_of_order_total",
			Help: "Events discarded because they were observed before the session's current state",
		},
		[]string{"source"},
	)

	PollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "playwatch_poll_duration_seconds",
			Help:    "Duration of full session polls",
			Buckets: prometheus.DefBuckets,
		},
	)

	PollErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playwatch_poll_errors_total",
			Help: "Full session polls that failed",
		},
	)

	FeedConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "playwatch_feed_connected",
			Help: "1 while the push feed is connected",
		},
	)

	FeedReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playwatch_feed_reconnects_total",
			Help: "Push feed reconnect attempts",
		},
	)

	MediaLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playwatch_media_lookups_total",
			Help: "Media item lookups by result",
		},
		[]string{"result"}, // hit, fetched, not_found, error
	)

	// Session machine
	LiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "playwatch_live_sessions",
			Help: "Sessions currently in the session table",
		},
	)

	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playwatch_session_transitions_total",
			Help: "Session transitions emitted",
		},
		[]string{"kind"},
	)

	InvalidTransitions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playwatch_invalid_transitions_total",
			Help: "Events rejected because their state edge is not allowed",
		},
	)

	SessionsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playwatch_sessions_dropped_total",
			Help: "Sessions or events dropped without producing history",
		},
		[]string{"reason"},
	)

	StaleSweeps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playwatch_stale_sweeps_total",
			Help: "Reconciler sweeps over the session table",
		},
	)

	// History
	HistoryWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playwatch_history_writes_total",
			Help: "History writer outcomes",
		},
		[]string{"outcome"}, // inserted, merged, filtered, failed, abandoned, corrupt
	)

	HistoryWriteDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "playwatch_history_write_duration_seconds",
			Help:    "Duration of history persistence",
			Buckets: prometheus.DefBuckets,
		},
	)

	SpoolPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "playwatch_history_spool_pending",
			Help: "History records waiting for a retry in the spool",
		},
	)

	// Notifications
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playwatch_notifications_total",
			Help: "Notification outcomes per action and notifier",
		},
		[]string{"action", "notifier", "outcome"}, // sent, failed, filtered, suppressed, rate_limited
	)

	NotificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "playwatch_notification_duration_seconds",
			Help:    "Notifier delivery latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"agent"},
	)

	// Worker pool
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "playwatch_worker_queue_depth",
			Help: "Jobs waiting in the worker pool",
		},
		[]string{"pool"},
	)

	JobsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playwatch_worker_jobs_dropped_total",
			Help: "Jobs rejected because the worker queue was full",
		},
		[]string{"pool"},
	)

	// Circuit breakers
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Bus
	BusMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playwatch_bus_messages_published_total",
			Help: "Messages published to NATS",
		},
		[]string{"subject", "result"},
	)

	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

// RecordEventIngested counts an event applied by the machine.
func RecordEventIngested(source string) {
	EventsIngested.WithLabelValues(source).Inc()
}

// RecordEventDebounced counts a discarded push event.
func RecordEventDebounced() {
	EventsDebounced.Inc()
}

// RecordEventOutOfOrder counts an event older than the state it would overwrite.
func RecordEventOutOfOrder(source string) {
	EventsOutOfOrder.WithLabelValues(source).Inc()
}

// RecordPoll records a full poll.
func RecordPoll(duration time.Duration, err error) {
	PollDuration.Observe(duration.Seconds())
	if err != nil {
		PollErrors.Inc()
	}
}

// SetFeedConnected flips the feed gauge.
func SetFeedConnected(connected bool) {
	if connected {
		FeedConnected.Set(1)
		return
	}
	FeedConnected.Set(0)
}

// RecordFeedReconnect counts a reconnect attempt.
func RecordFeedReconnect() {
	FeedReconnects.Inc()
}

// RecordMediaLookup counts a media lookup result.
func RecordMediaLookup(result string) {
	MediaLookups.WithLabelValues(result).Inc()
}

// SetLiveSessions publishes the session table size.
func SetLiveSessions(n int) {
	LiveSessions.Set(float64(n))
}

// RecordTransition counts an emitted transition.
func RecordTransition(kind string) {
	Transitions.WithLabelValues(kind).Inc()
}

// RecordInvalidTransition counts a rejected state edge.
func RecordInvalidTransition() {
	InvalidTransitions.Inc()
}

// RecordSessionDropped counts a dropped session or event.
func RecordSessionDropped(reason string) {
	SessionsDropped.WithLabelValues(reason).Inc()
}

// RecordStaleSweep counts a reconciler sweep.
func RecordStaleSweep() {
	StaleSweeps.Inc()
}

// RecordHistoryWrite records a history writer outcome and, for attempted
// writes, their duration.
func RecordHistoryWrite(outcome string, duration time.Duration) {
	HistoryWrites.WithLabelValues(outcome).Inc()
	if duration > 0 {
		HistoryWriteDuration.Observe(duration.Seconds())
	}
}

// SetSpoolPending publishes the spool backlog.
func SetSpoolPending(n int) {
	SpoolPending.Set(float64(n))
}

// RecordNotification records a notification outcome.
func RecordNotification(action, notifier, outcome string) {
	Notifications.WithLabelValues(action, notifier, outcome).Inc()
}

// ObserveNotificationDelivery records a delivery latency for agent.
func ObserveNotificationDelivery(agent string, duration time.Duration) {
	NotificationDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

// SetQueueDepth publishes a pool's backlog.
func SetQueueDepth(pool string, n int) {
	QueueDepth.WithLabelValues(pool).Set(float64(n))
}

// RecordJobDropped counts a rejected job.
func RecordJobDropped(pool string) {
	JobsDropped.WithLabelValues(pool).Inc()
}

// RecordCircuitBreakerTransition updates the breaker gauge and transition counter.
// States follow gobreaker: 0 closed, 1 half-open, 2 open.
func RecordCircuitBreakerTransition(name, from, to string, toState int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(toState))
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
}

// RecordBusPublish counts a NATS publish.
func RecordBusPublish(subject string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	BusMessagesPublished.WithLabelValues(subject, result).Inc()
}

// RecordAPIRequest records an API request.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
