// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

/*
Package api serves the admin HTTP surface on a chi router.

Public routes:

	GET  /api/v1/health          overall state, always 200
	GET  /api/v1/health/live     liveness
	GET  /api/v1/health/ready    503 until the history store answers
	GET  /metrics                Prometheus exposition

Admin routes (auth.RoleAdmin):

	GET    /api/v1/activity                   live session table
	GET    /api/v1/activity/live              websocket stream of transitions
	GET    /api/v1/activity/{key}             one live session
	POST   /api/v1/sessions/flush             stop and record every live session
	GET    /api/v1/history                    paged history, newest first
	GET    /api/v1/history/{id}               one history record
	POST   /api/v1/history/regroup            recompute consecutive-play grouping
	DELETE /api/v1/history/users/{id}         purge one user's history
	DELETE /api/v1/history/libraries/{id}     purge one library's history
	GET    /api/v1/audit                      recorded admin actions
	GET    /api/v1/notifiers                  configured notifier names
	POST   /api/v1/notifiers/{name}/test      deliver a sample action

Every response uses the APIResponse envelope. History rows carry
watched_status, computed from history.watched_threshold at read time.

History listing accepts limit (1-1000, default 50), offset, user_id,
rating_key (matches the item, its season or its show) and section_id.
*/
package api
