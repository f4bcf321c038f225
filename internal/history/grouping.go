// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package history

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/playwatch/internal/logging"
	"github.com/tomtom215/playwatch/internal/models"
)

// GroupingRule holds the consecutive-play merge thresholds.
type GroupingRule struct {
	// Window is the largest gap between the previous stop and the next start.
	Window time.Duration
	// OffsetTolerance is how far before the previous stop offset the next
	// play may begin and still count as a resume.
	OffsetTolerance time.Duration
}

// Mergeable reports whether next continues prev. Both must belong to the same
// user and item, prev must have stopped first, the gap must fit the window and
// next must not start before prev's stop offset minus the tolerance.
func (g GroupingRule) Mergeable(prev, next models.HistoryRecord) bool {
	if prev.UserID != next.UserID || prev.RatingKey != next.RatingKey {
		return false
	}
	if g.Window <= 0 || !prev.StoppedAt.Before(next.StoppedAt) {
		return false
	}
	if next.StartedAt.Sub(prev.StoppedAt) > g.Window {
		return false
	}
	return next.StartOffset >= prev.ViewOffset-g.OffsetTolerance.Milliseconds()
}

// AlreadyMerged reports whether prev already absorbed next, which happens
// when a write is replayed after it actually succeeded.
func AlreadyMerged(prev, next models.HistoryRecord) bool {
	return prev.UserID == next.UserID &&
		prev.RatingKey == next.RatingKey &&
		prev.StoppedAt.Equal(next.StoppedAt) &&
		prev.ViewOffset == next.ViewOffset
}

// Merge folds next into prev. prev's identity and start are kept.
func Merge(prev, next models.HistoryRecord) models.HistoryRecord {
	m := prev
	m.StoppedAt = next.StoppedAt
	m.ViewOffset = next.ViewOffset
	if next.Duration > 0 {
		m.Duration = next.Duration
	}
	m.PausedCounter = prev.PausedCounter + next.PausedCounter
	m.GroupCount = max(prev.GroupCount, 1) + max(next.GroupCount, 1)
	m.PercentComplete = models.PercentComplete(m.ViewOffset, m.Duration)
	m.Stream = next.Stream
	return m
}

// MergePlan is one regrouped row: Survivor is rewritten and Absorbed are deleted.
type MergePlan struct {
	Survivor models.HistoryRecord
	Absorbed []int64
}

// PlanRegroup computes merges over records sorted by user, item and start
// time. Records already grouped stay grouped.
func PlanRegroup(records []models.HistoryRecord, rule GroupingRule) []MergePlan {
	var plans []MergePlan
	if len(records) == 0 {
		return plans
	}

	current := MergePlan{Survivor: records[0]}
	flush := func() {
		if len(current.Absorbed) > 0 {
			plans = append(plans, current)
		}
	}
	for _, next := range records[1:] {
		if rule.Mergeable(current.Survivor, next) {
			current.Survivor = Merge(current.Survivor, next)
			current.Absorbed = append(current.Absorbed, next.ID)
			continue
		}
		flush()
		current = MergePlan{Survivor: next}
	}
	flush()
	return plans
}

// RegroupStore is the persistence needed by Regroup.
type RegroupStore interface {
	ListHistoryForRegroup(ctx context.Context) ([]models.HistoryRecord, error)
	ReplaceGroup(ctx context.Context, survivor models.HistoryRecord, absorbed []int64) error
}

// RegroupResult summarizes a regroup run.
type RegroupResult struct {
	Examined int `json:"examined"`
	Groups   int `json:"groups"`
	Absorbed int `json:"absorbed"`
}

// Regroup recomputes grouping over all stored records.
func Regroup(ctx context.Context, store RegroupStore, rule GroupingRule) (RegroupResult, error) {
	records, err := store.ListHistoryForRegroup(ctx)
	if err != nil {
		return RegroupResult{}, fmt.Errorf("list history: %w", err)
	}

	res := RegroupResult{Examined: len(records)}
	for _, plan := range PlanRegroup(records, rule) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := store.ReplaceGroup(ctx, plan.Survivor, plan.Absorbed); err != nil {
			return res, fmt.Errorf("regroup %d: %w", plan.Survivor.ID, err)
		}
		res.Groups++
		res.Absorbed += len(plan.Absorbed)
	}

	logging.Info().
		Int("examined", res.Examined).
		Int("groups", res.Groups).
		Int("absorbed", res.Absorbed).
		Msg("History regroup complete")
	return res, nil
}
