// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/playwatch/internal/models"
)

const historyColumns = `id, reference_id, session_key, user_id, user_name,
	rating_key, parent_rating_key, grandparent_rating_key,
	title, parent_title, grandparent_title, media_type, library_section_id,
	machine_id, platform, player, ip_address,
	started_at, stopped_at, paused_counter, start_offset, view_offset, duration,
	percent_complete, group_count,
	transcode_decision, video_decision, audio_decision, container,
	video_codec, audio_codec, video_resolution, bitrate`

// HistoryFilter selects a page of history rows, newest first.
type HistoryFilter struct {
	UserID           *int
	RatingKey        string
	LibrarySectionID string
	Limit            int
	Offset           int
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHistory(row rowScanner) (models.HistoryRecord, error) {
	var r models.HistoryRecord
	err := row.Scan(
		&r.ID, &r.ReferenceID, &r.SessionKey, &r.UserID, &r.UserName,
		&r.RatingKey, &r.ParentRatingKey, &r.GrandparentRatingKey,
		&r.Title, &r.ParentTitle, &r.GrandparentTitle, &r.MediaType, &r.LibrarySectionID,
		&r.MachineID, &r.Platform, &r.Player, &r.IPAddress,
		&r.StartedAt, &r.StoppedAt, &r.PausedCounter, &r.StartOffset, &r.ViewOffset, &r.Duration,
		&r.PercentComplete, &r.GroupCount,
		&r.Stream.TranscodeDecision, &r.Stream.VideoDecision, &r.Stream.AudioDecision, &r.Stream.Container,
		&r.Stream.VideoCodec, &r.Stream.AudioCodec, &r.Stream.VideoResolution, &r.Stream.Bitrate,
	)
	r.StartedAt = r.StartedAt.UTC()
	r.StoppedAt = r.StoppedAt.UTC()
	return r, err
}

func historyArgs(r *models.HistoryRecord) []any {
	return []any{
		r.SessionKey, r.UserID, r.UserName,
		r.RatingKey, r.ParentRatingKey, r.GrandparentRatingKey,
		r.Title, r.ParentTitle, r.GrandparentTitle, r.MediaType, r.LibrarySectionID,
		r.MachineID, r.Platform, r.Player, r.IPAddress,
		r.StartedAt.UTC(), r.StoppedAt.UTC(), r.PausedCounter, r.StartOffset, r.ViewOffset, r.Duration,
		r.PercentComplete, r.GroupCount,
		r.Stream.TranscodeDecision, r.Stream.VideoDecision, r.Stream.AudioDecision, r.Stream.Container,
		r.Stream.VideoCodec, r.Stream.AudioCodec, r.Stream.VideoResolution, r.Stream.Bitrate,
	}
}

func validateRecord(r *models.HistoryRecord) error {
	switch {
	case r.RatingKey == "":
		return fmt.Errorf("%w: rating_key is required", ErrConstraint)
	case r.StartedAt.IsZero() || r.StoppedAt.IsZero():
		return fmt.Errorf("%w: started_at and stopped_at are required", ErrConstraint)
	case r.StoppedAt.Before(r.StartedAt):
		return fmt.Errorf("%w: stopped_at precedes started_at", ErrConstraint)
	}
	return nil
}

// WriteHistory inserts the record when r.ID is zero and updates it otherwise.
// Inserts are idempotent: a row for the same session key, user, item and start
// time is reused, so a retried write never creates a duplicate. On insert the
// record's ID and ReferenceID are filled in.
func (db *DB) WriteHistory(ctx context.Context, r *models.HistoryRecord) (int64, error) {
	if err := validateRecord(r); err != nil {
		return 0, err
	}
	if r.GroupCount < 1 {
		r.GroupCount = 1
	}
	if r.ID != 0 {
		return r.ID, db.updateHistory(ctx, r)
	}

	var existing int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT id FROM session_history
		 WHERE session_key = ? AND user_id = ? AND rating_key = ? AND started_at = ?
		 LIMIT 1`,
		r.SessionKey, r.UserID, r.RatingKey, r.StartedAt.UTC()).Scan(&existing)
	switch {
	case err == nil:
		r.ID = existing
		if r.ReferenceID == 0 {
			r.ReferenceID = existing
		}
		return existing, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, wrapError("lookup existing history", err)
	}

	var id int64
	if err := db.conn.QueryRowContext(ctx, `SELECT nextval('session_history_id_seq')`).Scan(&id); err != nil {
		return 0, wrapError("allocate history id", err)
	}

	args := append([]any{id, id}, historyArgs(r)...)
	query := `INSERT INTO session_history (` + historyColumns + `) VALUES (` + placeholders(len(args)) + `)`
	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return 0, wrapError("insert history", err)
	}

	r.ID = id
	r.ReferenceID = id
	return id, nil
}

func (db *DB) updateHistory(ctx context.Context, r *models.HistoryRecord) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE session_history SET stopped_at = ?, view_offset = ?, duration = ?,
		 paused_counter = ?, percent_complete = ?, group_count = ?,
		 transcode_decision = ?, video_decision = ?, audio_decision = ?, container = ?,
		 video_codec = ?, audio_codec = ?, video_resolution = ?, bitrate = ?
		 WHERE id = ?`,
		r.StoppedAt.UTC(), r.ViewOffset, r.Duration,
		r.PausedCounter, r.PercentComplete, r.GroupCount,
		r.Stream.TranscodeDecision, r.Stream.VideoDecision, r.Stream.AudioDecision, r.Stream.Container,
		r.Stream.VideoCodec, r.Stream.AudioCodec, r.Stream.VideoResolution, r.Stream.Bitrate,
		r.ID)
	if err != nil {
		return wrapError("update history", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update history %d: %w", r.ID, ErrRecordNotFound)
	}
	return nil
}

// FindMergeablePredecessor returns the latest record for the user and item that
// stopped no earlier than window before startedAt and started before it.
// It returns nil, nil when there is none. The grouping rule itself is applied
// by the caller.
func (db *DB) FindMergeablePredecessor(ctx context.Context, userID int, ratingKey string, startedAt time.Time, window time.Duration) (*models.HistoryRecord, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM session_history
		 WHERE user_id = ? AND rating_key = ? AND stopped_at >= ? AND started_at < ?
		 ORDER BY stopped_at DESC, id DESC
		 LIMIT 1`,
		userID, ratingKey, startedAt.Add(-window).UTC(), startedAt.UTC())
	rec, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapError("find mergeable predecessor", err)
	}
	return &rec, nil
}

// GetHistory returns one record by id.
func (db *DB) GetHistory(ctx context.Context, id int64) (*models.HistoryRecord, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+historyColumns+` FROM session_history WHERE id = ?`, id)
	rec, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("history %d: %w", id, ErrRecordNotFound)
	}
	if err != nil {
		return nil, wrapError("get history", err)
	}
	return &rec, nil
}

// ListHistory returns a page of records newest first plus the total match count.
func (db *DB) ListHistory(ctx context.Context, f HistoryFilter) ([]models.HistoryRecord, int, error) {
	var where []string
	var args []any
	if f.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.RatingKey != "" {
		where = append(where, "(rating_key = ? OR parent_rating_key = ? OR grandparent_rating_key = ?)")
		args = append(args, f.RatingKey, f.RatingKey, f.RatingKey)
	}
	if f.LibrarySectionID != "" {
		where = append(where, "library_section_id = ?")
		args = append(args, f.LibrarySectionID)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_history`+clause, args...).Scan(&total); err != nil {
		return nil, 0, wrapError("count history", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	pageArgs := append(append([]any{}, args...), limit, f.Offset)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+historyColumns+` FROM session_history`+clause+
			` ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return nil, 0, wrapError("list history", err)
	}
	defer closeQuietly(rows)

	records, err := collectHistory(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// ListHistoryForRegroup returns every record ordered by user, item and start time.
func (db *DB) ListHistoryForRegroup(ctx context.Context) ([]models.HistoryRecord, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+historyColumns+` FROM session_history ORDER BY user_id, rating_key, started_at, id`)
	if err != nil {
		return nil, wrapError("list history for regroup", err)
	}
	defer closeQuietly(rows)
	return collectHistory(rows)
}

func collectHistory(rows *sql.Rows) ([]models.HistoryRecord, error) {
	var out []models.HistoryRecord
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, wrapError("scan history", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("iterate history", err)
	}
	return out, nil
}

// ReplaceGroup rewrites survivor and deletes the absorbed rows in one transaction.
func (db *DB) ReplaceGroup(ctx context.Context, survivor models.HistoryRecord, absorbed []int64) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return wrapError("begin regroup", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE session_history SET stopped_at = ?, view_offset = ?, duration = ?,
		 paused_counter = ?, percent_complete = ?, group_count = ?
		 WHERE id = ?`,
		survivor.StoppedAt.UTC(), survivor.ViewOffset, survivor.Duration,
		survivor.PausedCounter, survivor.PercentComplete, survivor.GroupCount, survivor.ID)
	if err != nil {
		return wrapError("update regroup survivor", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("regroup survivor %d: %w", survivor.ID, ErrRecordNotFound)
	}

	if len(absorbed) > 0 {
		args := make([]any, len(absorbed))
		for i, id := range absorbed {
			args[i] = id
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM session_history WHERE id IN (`+placeholders(len(args))+`)`, args...); err != nil {
			return wrapError("delete absorbed history", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapError("commit regroup", err)
	}
	return nil
}

// KnownDevice reports whether the user has history from the given player.
func (db *DB) KnownDevice(ctx context.Context, userID int, machineID string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM (SELECT 1 FROM session_history WHERE user_id = ? AND machine_id = ? LIMIT 1)`,
		userID, machineID).Scan(&n)
	if err != nil {
		return false, wrapError("known device", err)
	}
	return n > 0, nil
}

// DeleteHistoryForUser purges all history of one user.
func (db *DB) DeleteHistoryForUser(ctx context.Context, userID int) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM session_history WHERE user_id = ?`, userID)
	if err != nil {
		return 0, wrapError("delete user history", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteHistoryForLibrary purges all history of one library section.
func (db *DB) DeleteHistoryForLibrary(ctx context.Context, sectionID string) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM session_history WHERE library_section_id = ?`, sectionID)
	if err != nil {
		return 0, wrapError("delete library history", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
