// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package history

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/playwatch/internal/config"
	"github.com/tomtom215/playwatch/internal/database"
	"github.com/tomtom215/playwatch/internal/models"
)

func rec(id int64, user int, key string, start, stop time.Duration, startOffsetSec, viewOffsetSec int64) models.HistoryRecord {
	return models.HistoryRecord{
		ID:          id,
		ReferenceID: id,
		UserID:      user,
		RatingKey:   key,
		StartedAt:   t0.Add(start),
		StoppedAt:   t0.Add(stop),
		StartOffset: startOffsetSec * 1000,
		ViewOffset:  viewOffsetSec * 1000,
		Duration:    3600 * 1000,
		GroupCount:  1,
	}
}

func TestGroupingRule_Mergeable(t *testing.T) {
	rule := GroupingRule{Window: 10 * time.Minute, OffsetTolerance: time.Minute}
	prev := rec(1, 7, "500", 0, 20*time.Minute, 0, 1200)

	tests := []struct {
		name string
		next models.HistoryRecord
		want bool
	}{
		{"resume", rec(2, 7, "500", 25*time.Minute, 40*time.Minute, 1200, 2100), true},
		{"resume slightly before stop offset", rec(2, 7, "500", 25*time.Minute, 40*time.Minute, 1141, 2100), true},
		{"restart", rec(2, 7, "500", 25*time.Minute, 40*time.Minute, 0, 900), false},
		{"gap exactly the window", rec(2, 7, "500", 30*time.Minute, 40*time.Minute, 1200, 1800), true},
		{"gap over the window", rec(2, 7, "500", 30*time.Minute+time.Second, 40*time.Minute, 1200, 1800), false},
		{"reconnect overlap", rec(2, 7, "500", 19*time.Minute, 40*time.Minute, 1180, 2400), true},
		{"other user", rec(2, 8, "500", 25*time.Minute, 40*time.Minute, 1200, 2100), false},
		{"other item", rec(2, 7, "501", 25*time.Minute, 40*time.Minute, 1200, 2100), false},
		{"next stopped first", rec(2, 7, "500", 5*time.Minute, 10*time.Minute, 1200, 1500), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rule.Mergeable(prev, tt.next); got != tt.want {
				t.Errorf("Mergeable() = %v, want %v", got, tt.want)
			}
		})
	}

	if (GroupingRule{}).Mergeable(prev, tests[0].next) {
		t.Error("a zero window disables grouping")
	}
}

func TestMerge(t *testing.T) {
	prev := rec(1, 7, "500", 0, 20*time.Minute, 0, 1200)
	prev.PausedCounter = 1000
	prev.GroupCount = 2
	next := rec(2, 7, "500", 25*time.Minute, 40*time.Minute, 1200, 3600)
	next.PausedCounter = 500
	next.Stream.TranscodeDecision = "transcode"

	m := Merge(prev, next)
	if m.ID != 1 || !m.StartedAt.Equal(prev.StartedAt) {
		t.Errorf("merge changed identity: %+v", m)
	}
	if !m.StoppedAt.Equal(next.StoppedAt) || m.ViewOffset != next.ViewOffset {
		t.Errorf("merge did not advance the group: %+v", m)
	}
	if m.PausedCounter != 1500 || m.GroupCount != 3 || m.PercentComplete != 1.0 {
		t.Errorf("paused = %d group = %d percent = %v", m.PausedCounter, m.GroupCount, m.PercentComplete)
	}
	if m.Stream.TranscodeDecision != "transcode" {
		t.Errorf("stream snapshot should come from the latest stop")
	}
}

func TestPlanRegroup(t *testing.T) {
	rule := GroupingRule{Window: 10 * time.Minute, OffsetTolerance: time.Minute}
	records := []models.HistoryRecord{
		rec(1, 7, "500", 0, 20*time.Minute, 0, 1200),
		rec(2, 7, "500", 22*time.Minute, 30*time.Minute, 1200, 1680),
		rec(3, 7, "500", 31*time.Minute, 50*time.Minute, 1670, 2800),
		rec(4, 7, "500", 52*time.Minute, 60*time.Minute, 0, 480), // restart
		rec(5, 7, "600", 0, 10*time.Minute, 0, 600),
		rec(6, 8, "600", 12*time.Minute, 20*time.Minute, 600, 1080), // another user
	}

	plans := PlanRegroup(records, rule)
	if len(plans) != 1 {
		t.Fatalf("plans = %d, want 1: %+v", len(plans), plans)
	}
	p := plans[0]
	if p.Survivor.ID != 1 || len(p.Absorbed) != 2 || p.Absorbed[0] != 2 || p.Absorbed[1] != 3 {
		t.Errorf("plan = survivor %d absorbed %v", p.Survivor.ID, p.Absorbed)
	}
	if p.Survivor.GroupCount != 3 || p.Survivor.ViewOffset != 2800*1000 {
		t.Errorf("survivor = %+v", p.Survivor)
	}

	if got := PlanRegroup(nil, rule); len(got) != 0 {
		t.Errorf("PlanRegroup(nil) = %v", got)
	}
}

func TestRegroup_OnlyMerges(t *testing.T) {
	store := newMemStore()
	// Fragments written while grouping was disabled.
	w := NewWriter(store, nil, Config{Policy: NewRetentionPolicy(0, nil, nil)})
	ctx := context.Background()
	for _, s := range []models.Session{
		stopped("1", 0, 20*time.Minute, 0, 1200),
		stopped("2", 22*time.Minute, 30*time.Minute, 1200, 1680),
		stopped("3", 4*time.Hour, 5*time.Hour, 0, 3600),
	} {
		if _, err := w.Record(ctx, s); err != nil {
			t.Fatal(err)
		}
	}
	if got := len(store.records()); got != 3 {
		t.Fatalf("rows before regroup = %d, want 3", got)
	}

	res, err := Regroup(ctx, store, GroupingRule{Window: 10 * time.Minute, OffsetTolerance: time.Minute})
	if err != nil {
		t.Fatalf("Regroup() error = %v", err)
	}
	if res.Examined != 3 || res.Groups != 1 || res.Absorbed != 1 {
		t.Errorf("Regroup() = %+v", res)
	}
	if got := len(store.records()); got != 2 {
		t.Errorf("rows after regroup = %d, want 2", got)
	}

	// Running again is a no-op.
	res, err = Regroup(ctx, store, GroupingRule{Window: 10 * time.Minute, OffsetTolerance: time.Minute})
	if err != nil || res.Groups != 0 {
		t.Errorf("second Regroup() = %+v, %v", res, err)
	}
}

// The grouping property checked against the real DuckDB store.
func TestWriter_GroupingWithDuckDB(t *testing.T) {
	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "256MB", Threads: 1})
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	tests := []struct {
		name       string
		userID     int
		next       models.Session
		wantGroups int
		wantCount  int
	}{
		{"resume merges", 7, stopped("2", 25*time.Minute, 55*time.Minute, 1190, 3000), 1, 2},
		{"restart separates", 8, stopped("2", 25*time.Minute, 55*time.Minute, 0, 1800), 2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newTestWriter(db, nil)
			first := stopped("1", 0, 20*time.Minute, 0, 1200)
			first.UserID = tt.userID
			tt.next.UserID = tt.userID
			if _, err := w.Record(ctx, first); err != nil {
				t.Fatal(err)
			}
			if _, err := w.Record(ctx, tt.next); err != nil {
				t.Fatal(err)
			}

			user := tt.userID
			rows, total, err := db.ListHistory(ctx, database.HistoryFilter{UserID: &user})
			if err != nil {
				t.Fatalf("ListHistory() error = %v", err)
			}
			if total != tt.wantGroups {
				t.Fatalf("groups = %d, want %d", total, tt.wantGroups)
			}
			// Newest first: the first row holds the latest group.
			if rows[len(rows)-1].GroupCount != tt.wantCount {
				t.Errorf("group_count = %d, want %d", rows[len(rows)-1].GroupCount, tt.wantCount)
			}
		})
	}
}
