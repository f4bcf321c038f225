// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tomtom215/playwatch/internal/config"
	"github.com/tomtom215/playwatch/internal/models"
)

// DuckDB CGO calls are serialized across tests to keep memory use predictable.
var testDBSemaphore = make(chan struct{}, 1)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	db, err := New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "256MB", Threads: 1})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var base = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

func record(user int, ratingKey string, start time.Time, played time.Duration, startOffset, viewOffset int64) *models.HistoryRecord {
	return &models.HistoryRecord{
		SessionKey:       fmt.Sprintf("%d-%d", user, start.Unix()),
		UserID:           user,
		UserName:         fmt.Sprintf("user%d", user),
		RatingKey:        ratingKey,
		Title:            "Arrival",
		MediaType:        "movie",
		LibrarySectionID: "1",
		MachineID:        "tv-1",
		StartedAt:        start,
		StoppedAt:        start.Add(played),
		StartOffset:      startOffset,
		ViewOffset:       viewOffset,
		Duration:         600000,
		PercentComplete:  models.PercentComplete(viewOffset, 600000),
		GroupCount:       1,
		Stream:           models.StreamDetails{TranscodeDecision: "direct play", Bitrate: 8000},
	}
}

func TestWriteHistory_InsertAndUpdate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	r := record(7, "100", base, 5*time.Minute, 0, 300000)
	id, err := db.WriteHistory(ctx, r)
	if err != nil {
		t.Fatalf("WriteHistory() error = %v", err)
	}
	if id == 0 || r.ID != id || r.ReferenceID != id {
		t.Fatalf("ids = (%d, %d, %d), want all equal and non-zero", id, r.ID, r.ReferenceID)
	}

	r.ViewOffset = 540000
	r.StoppedAt = base.Add(9 * time.Minute)
	r.GroupCount = 2
	r.PercentComplete = 0.9
	if _, err := db.WriteHistory(ctx, r); err != nil {
		t.Fatalf("WriteHistory(update) error = %v", err)
	}

	got, err := db.GetHistory(ctx, id)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if got.ViewOffset != 540000 || got.GroupCount != 2 || !got.StoppedAt.Equal(r.StoppedAt) {
		t.Errorf("GetHistory() = %+v", got)
	}
	if got.Stream.TranscodeDecision != "direct play" || got.Stream.Bitrate != 8000 {
		t.Errorf("stream details not persisted: %+v", got.Stream)
	}
}

func TestWriteHistory_RetriedInsertIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first := record(7, "100", base, 5*time.Minute, 0, 300000)
	retry := *first

	id1, err := db.WriteHistory(ctx, first)
	if err != nil {
		t.Fatalf("WriteHistory() error = %v", err)
	}
	id2, err := db.WriteHistory(ctx, &retry)
	if err != nil {
		t.Fatalf("WriteHistory(retry) error = %v", err)
	}
	if id1 != id2 {
		t.Errorf("retried insert produced id %d, want %d", id2, id1)
	}

	_, total, err := db.ListHistory(ctx, HistoryFilter{})
	if err != nil {
		t.Fatalf("ListHistory() error = %v", err)
	}
	if total != 1 {
		t.Errorf("total = %d, want 1", total)
	}
}

func TestWriteHistory_Validation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(r *models.HistoryRecord)
	}{
		{"missing rating key", func(r *models.HistoryRecord) { r.RatingKey = "" }},
		{"missing start", func(r *models.HistoryRecord) { r.StartedAt = time.Time{} }},
		{"stop before start", func(r *models.HistoryRecord) { r.StoppedAt = r.StartedAt.Add(-time.Second) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := record(1, "5", base, time.Minute, 0, 1000)
			tt.mutate(r)
			_, err := db.WriteHistory(ctx, r)
			if !errors.Is(err, ErrConstraint) {
				t.Errorf("WriteHistory() error = %v, want ErrConstraint", err)
			}
		})
	}
}

func TestWriteHistory_UpdateMissingRow(t *testing.T) {
	db := setupTestDB(t)
	r := record(1, "5", base, time.Minute, 0, 1000)
	r.ID = 999
	if _, err := db.WriteHistory(context.Background(), r); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("WriteHistory() error = %v, want ErrRecordNotFound", err)
	}
}

func TestFindMergeablePredecessor(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	older := record(7, "100", base, 2*time.Minute, 0, 120000)
	newer := record(7, "100", base.Add(3*time.Minute), 2*time.Minute, 120000, 240000)
	otherUser := record(8, "100", base.Add(4*time.Minute), time.Minute, 0, 60000)
	for _, r := range []*models.HistoryRecord{older, newer, otherUser} {
		if _, err := db.WriteHistory(ctx, r); err != nil {
			t.Fatalf("WriteHistory() error = %v", err)
		}
	}

	tests := []struct {
		name    string
		user    int
		key     string
		started time.Time
		window  time.Duration
		wantID  int64
	}{
		{"latest within window", 7, "100", base.Add(6 * time.Minute), 10 * time.Minute, newer.ID},
		{"outside window", 7, "100", base.Add(30 * time.Minute), 10 * time.Minute, 0},
		{"different item", 7, "200", base.Add(6 * time.Minute), 10 * time.Minute, 0},
		{"excludes records starting at the same time", 7, "100", newer.StartedAt, 10 * time.Minute, older.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.FindMergeablePredecessor(ctx, tt.user, tt.key, tt.started, tt.window)
			if err != nil {
				t.Fatalf("FindMergeablePredecessor() error = %v", err)
			}
			var gotID int64
			if got != nil {
				gotID = got.ID
			}
			if gotID != tt.wantID {
				t.Errorf("FindMergeablePredecessor() id = %d, want %d", gotID, tt.wantID)
			}
		})
	}
}

func TestListHistory_Pagination(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		r := record(1, fmt.Sprintf("%d", 100+i), base.Add(time.Duration(i)*time.Hour), time.Minute, 0, 60000)
		if _, err := db.WriteHistory(ctx, r); err != nil {
			t.Fatalf("WriteHistory() error = %v", err)
		}
	}

	page, total, err := db.ListHistory(ctx, HistoryFilter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListHistory() error = %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(page) != 2 || page[0].RatingKey != "103" || page[1].RatingKey != "102" {
		t.Errorf("page = %+v", page)
	}

	user := 2
	page, total, err = db.ListHistory(ctx, HistoryFilter{UserID: &user})
	if err != nil {
		t.Fatalf("ListHistory(user) error = %v", err)
	}
	if total != 0 || len(page) != 0 {
		t.Errorf("ListHistory(user 2) = %d rows, total %d", len(page), total)
	}
}

func TestReplaceGroup(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a := record(7, "100", base, 2*time.Minute, 0, 120000)
	b := record(7, "100", base.Add(3*time.Minute), 2*time.Minute, 120000, 240000)
	for _, r := range []*models.HistoryRecord{a, b} {
		if _, err := db.WriteHistory(ctx, r); err != nil {
			t.Fatalf("WriteHistory() error = %v", err)
		}
	}

	survivor := *a
	survivor.StoppedAt = b.StoppedAt
	survivor.ViewOffset = b.ViewOffset
	survivor.GroupCount = 2
	if err := db.ReplaceGroup(ctx, survivor, []int64{b.ID}); err != nil {
		t.Fatalf("ReplaceGroup() error = %v", err)
	}

	all, err := db.ListHistoryForRegroup(ctx)
	if err != nil {
		t.Fatalf("ListHistoryForRegroup() error = %v", err)
	}
	if len(all) != 1 || all[0].ID != a.ID || all[0].GroupCount != 2 || all[0].ViewOffset != 240000 {
		t.Errorf("after regroup = %+v", all)
	}
}

func TestKnownDeviceAndPurge(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	r := record(7, "100", base, time.Minute, 0, 60000)
	r.LibrarySectionID = "4"
	if _, err := db.WriteHistory(ctx, r); err != nil {
		t.Fatalf("WriteHistory() error = %v", err)
	}

	known, err := db.KnownDevice(ctx, 7, "tv-1")
	if err != nil || !known {
		t.Errorf("KnownDevice(tv-1) = %v, %v; want true", known, err)
	}
	known, err = db.KnownDevice(ctx, 7, "phone-9")
	if err != nil || known {
		t.Errorf("KnownDevice(phone-9) = %v, %v; want false", known, err)
	}

	n, err := db.DeleteHistoryForLibrary(ctx, "4")
	if err != nil || n != 1 {
		t.Errorf("DeleteHistoryForLibrary() = %d, %v; want 1", n, err)
	}
	n, err = db.DeleteHistoryForUser(ctx, 7)
	if err != nil || n != 0 {
		t.Errorf("DeleteHistoryForUser() = %d, %v; want 0", n, err)
	}
}

func TestWrapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"internal", errors.New("INTERNAL Error: block checksum mismatch"), ErrCorrupt},
		{"constraint", errors.New("Constraint Error: duplicate key"), ErrConstraint},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := wrapError("op", tt.err); !errors.Is(got, tt.want) {
				t.Errorf("wrapError() = %v, want %v", got, tt.want)
			}
		})
	}

	plain := wrapError("op", errors.New("connection reset"))
	if errors.Is(plain, ErrCorrupt) || errors.Is(plain, ErrConstraint) {
		t.Errorf("wrapError() tagged a plain error: %v", plain)
	}
	if wrapError("op", nil) != nil {
		t.Error("wrapError(nil) should be nil")
	}
}
