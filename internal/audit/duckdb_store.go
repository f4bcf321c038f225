// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var auditSchema = []string{
	`CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL,
		type TEXT NOT NULL,
		outcome TEXT NOT NULL,
		actor TEXT NOT NULL,
		target_type TEXT,
		target_id TEXT,
		source_ip TEXT NOT NULL,
		user_agent TEXT,
		description TEXT NOT NULL,
		metadata TEXT,
		request_id TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_type ON audit_events(type)`,
}

const selectColumns = `id, timestamp, type, outcome, actor, target_type, target_id,
	source_ip, user_agent, description, metadata, request_id`

// DuckDBStore persists events in the audit_events table of the history
// database.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore creates the store. Call CreateTable before use.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates audit_events and its indexes if missing.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	for _, stmt := range auditSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("audit schema: %w", err)
		}
	}
	return nil
}

// Save inserts one event.
func (s *DuckDBStore) Save(ctx context.Context, e *Event) error {
	if e == nil {
		return fmt.Errorf("event cannot be nil")
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO audit_events (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.UTC(), string(e.Type), string(e.Outcome), e.Actor,
		nullString(e.TargetType), nullString(e.TargetID),
		e.SourceIP, nullString(e.UserAgent), e.Description,
		nullString(string(e.Metadata)), nullString(e.RequestID),
	)
	if err != nil {
		return fmt.Errorf("save audit event: %w", err)
	}
	return nil
}

// Get returns one event by id.
func (s *DuckDBStore) Get(ctx context.Context, id string) (*Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM audit_events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	return e, err
}

// Query returns matching events, newest first.
func (s *DuckDBStore) Query(ctx context.Context, f QueryFilter) ([]Event, error) {
	var (
		conds []string
		args  []any
	)
	if len(f.Types) > 0 {
		ph := make([]string, len(f.Types))
		for i, t := range f.Types {
			ph[i] = "?"
			args = append(args, string(t))
		}
		conds = append(conds, "type IN ("+strings.Join(ph, ", ")+")")
	}
	if f.Actor != "" {
		conds = append(conds, "actor = ?")
		args = append(args, f.Actor)
	}
	if f.Since != nil {
		conds = append(conds, "timestamp >= ?")
		args = append(args, f.Since.UTC())
	}

	query := `SELECT ` + selectColumns + ` FROM audit_events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Delete removes events older than the cutoff.
func (s *DuckDBStore) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_events WHERE timestamp < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete audit events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*Event, error) {
	var (
		e                                  Event
		typ, outcome                       string
		targetType, targetID, ua, meta, rq sql.NullString
	)
	if err := row.Scan(&e.ID, &e.Timestamp, &typ, &outcome, &e.Actor, &targetType, &targetID,
		&e.SourceIP, &ua, &e.Description, &meta, &rq); err != nil {
		return nil, err
	}
	e.Type = EventType(typ)
	e.Outcome = Outcome(outcome)
	e.TargetType = targetType.String
	e.TargetID = targetID.String
	e.UserAgent = ua.String
	e.RequestID = rq.String
	if meta.Valid && meta.String != "" {
		e.Metadata = []byte(meta.String)
	}
	return &e, nil
}

// nullString maps "" to NULL.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
