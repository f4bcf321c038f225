// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package database

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE SEQUENCE IF NOT EXISTS session_history_id_seq START 1`,
	`CREATE TABLE IF NOT EXISTS session_history (
		id BIGINT PRIMARY KEY,
		reference_id BIGINT NOT NULL,
		session_key VARCHAR NOT NULL,
		user_id INTEGER NOT NULL,
		user_name VARCHAR NOT NULL DEFAULT '',
		rating_key VARCHAR NOT NULL,
		parent_rating_key VARCHAR NOT NULL DEFAULT '',
		grandparent_rating_key VARCHAR NOT NULL DEFAULT '',
		title VARCHAR NOT NULL DEFAULT '',
		parent_title VARCHAR NOT NULL DEFAULT '',
		grandparent_title VARCHAR NOT NULL DEFAULT '',
		media_type VARCHAR NOT NULL DEFAULT '',
		library_section_id VARCHAR NOT NULL DEFAULT '',
		machine_id VARCHAR NOT NULL DEFAULT '',
		platform VARCHAR NOT NULL DEFAULT '',
		player VARCHAR NOT NULL DEFAULT '',
		ip_address VARCHAR NOT NULL DEFAULT '',
		started_at TIMESTAMP NOT NULL,
		stopped_at TIMESTAMP NOT NULL,
		paused_counter BIGINT NOT NULL DEFAULT 0,
		start_offset BIGINT NOT NULL DEFAULT 0,
		view_offset BIGINT NOT NULL DEFAULT 0,
		duration BIGINT NOT NULL DEFAULT 0,
		percent_complete DOUBLE NOT NULL DEFAULT 0,
		group_count INTEGER NOT NULL DEFAULT 1,
		transcode_decision VARCHAR NOT NULL DEFAULT '',
		video_decision VARCHAR NOT NULL DEFAULT '',
		audio_decision VARCHAR NOT NULL DEFAULT '',
		container VARCHAR NOT NULL DEFAULT '',
		video_codec VARCHAR NOT NULL DEFAULT '',
		audio_codec VARCHAR NOT NULL DEFAULT '',
		video_resolution VARCHAR NOT NULL DEFAULT '',
		bitrate INTEGER NOT NULL DEFAULT 0
	)`,
	// Only columns that are never updated are indexed; DuckDB rewrites updates
	// of indexed columns as delete plus insert.
	`CREATE INDEX IF NOT EXISTS idx_history_user_item ON session_history(user_id, rating_key)`,
	`CREATE INDEX IF NOT EXISTS idx_history_user_device ON session_history(user_id, machine_id)`,
	`CREATE INDEX IF NOT EXISTS idx_history_library ON session_history(library_section_id)`,
}

func (db *DB) initialize(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	return nil
}
