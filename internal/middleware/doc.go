// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

/*
Package middleware provides the HTTP infrastructure middleware shared by the
admin API router.

  - RequestID: assigns X-Request-ID and seeds the logging context with the
    request and correlation IDs.
  - PrometheusMetrics: api_requests_total and api_request_duration_seconds,
    labelled by chi route pattern rather than raw path.

Both are plain func(http.Handler) http.Handler and plug into chi's r.Use.
Authentication lives in internal/auth.
*/
package middleware
