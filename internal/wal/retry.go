// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package wal

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/tomtom215/playwatch/internal/logging"
	"github.com/tomtom215/playwatch/internal/metrics"
)

// ErrPermanent marks a replay failure that must not be retried.
var ErrPermanent = errors.New("permanent failure")

// Processor replays spooled entries.
type Processor interface {
	// Replay re-attempts the write. Wrap the error with ErrPermanent to abandon
	// the entry without further attempts.
	Replay(ctx context.Context, e *Entry) error

	// Abandoned is called once when an entry is given up on.
	Abandoned(e *Entry, reason string)
}

// RetryLoop periodically replays pending entries with exponential backoff
// and abandons them after Config.MaxAttempts.
type RetryLoop struct {
	wal       *BadgerWAL
	processor Processor
	config    Config
	now       func() time.Time
}

// NewRetryLoop creates a retry loop over w.
func NewRetryLoop(w *BadgerWAL, p Processor) *RetryLoop {
	return &RetryLoop{wal: w, processor: p, config: w.Config(), now: time.Now}
}

// String implements fmt.Stringer for supervisor logging.
func (r *RetryLoop) String() string {
	return "spool-retry"
}

// Serve runs until ctx is canceled. It implements suture.Service.
func (r *RetryLoop) Serve(ctx context.Context) error {
	retryTicker := time.NewTicker(r.config.RetryInterval)
	defer retryTicker.Stop()

	gcInterval := r.config.GCInterval
	if gcInterval <= 0 {
		gcInterval = time.Hour
	}
	gcTicker := time.NewTicker(gcInterval)
	defer gcTicker.Stop()

	logging.Info().
		Dur("interval", r.config.RetryInterval).
		Int("max_attempts", r.config.MaxAttempts).
		Msg("Spool retry loop started")

	r.RetryPending(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-retryTicker.C:
			r.RetryPending(ctx)
		case <-gcTicker.C:
			if err := r.wal.RunGC(); err != nil {
				logging.Warn().Err(err).Msg("Spool value log GC failed")
			}
		}
	}
}

// RetryResult summarizes one pass.
type RetryResult struct {
	Succeeded int
	Failed    int
	Abandoned int
	Skipped   int
}

// RetryPending runs one pass over the pending entries.
func (r *RetryLoop) RetryPending(ctx context.Context) RetryResult {
	var res RetryResult

	entries, err := r.wal.GetPending(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Spool retry: failed to list pending entries")
		}
		return res
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		switch r.process(ctx, entry) {
		case outcomeSucceeded:
			res.Succeeded++
		case outcomeFailed:
			res.Failed++
		case outcomeAbandoned:
			res.Abandoned++
		case outcomeSkipped:
			res.Skipped++
		}
	}

	metrics.SetSpoolPending(int(r.wal.Stats().Pending))
	if res.Succeeded > 0 || res.Failed > 0 || res.Abandoned > 0 {
		logging.Info().
			Int("succeeded", res.Succeeded).
			Int("failed", res.Failed).
			Int("abandoned", res.Abandoned).
			Msg("Spool retry pass complete")
	}
	return res
}

type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeFailed
	outcomeAbandoned
	outcomeSkipped
)

func (r *RetryLoop) process(ctx context.Context, entry *Entry) outcome {
	if entry.Attempts >= r.config.MaxAttempts {
		return r.abandon(ctx, entry, "max attempts exceeded")
	}
	if r.config.EntryTTL > 0 && r.now().Sub(entry.CreatedAt) > r.config.EntryTTL {
		return r.abandon(ctx, entry, "expired")
	}
	if !r.ready(entry) {
		return outcomeSkipped
	}

	err := r.processor.Replay(ctx, entry)
	if err == nil {
		if cerr := r.wal.Complete(ctx, entry.ID); cerr != nil {
			logging.Error().Err(cerr).Str("entry_id", entry.ID).Msg("Spool retry: failed to remove completed entry")
		}
		return outcomeSucceeded
	}

	if errors.Is(err, ErrPermanent) {
		entry.LastError = err.Error()
		return r.abandon(ctx, entry, "permanent failure")
	}

	entry.Attempts++
	logging.Warn().
		Err(err).
		Str("entry_id", entry.ID).
		Str("key", entry.Key).
		Int("attempt", entry.Attempts).
		Int("max_attempts", r.config.MaxAttempts).
		Msg("Spool retry: replay failed")
	if entry.Attempts >= r.config.MaxAttempts {
		entry.LastError = err.Error()
		return r.abandon(ctx, entry, "max attempts exceeded")
	}
	if uerr := r.wal.UpdateAttempt(ctx, entry.ID, err.Error()); uerr != nil {
		logging.Error().Err(uerr).Str("entry_id", entry.ID).Msg("Spool retry: failed to record attempt")
	}
	return outcomeFailed
}

func (r *RetryLoop) abandon(ctx context.Context, entry *Entry, reason string) outcome {
	logging.Error().
		Str("entry_id", entry.ID).
		Str("key", entry.Key).
		Int("attempts", entry.Attempts).
		Str("last_error", entry.LastError).
		Str("reason", reason).
		Msg("Spool retry: abandoning entry")
	if err := r.wal.Abandon(ctx, entry.ID); err != nil && !errors.Is(err, ErrEntryNotFound) {
		logging.Error().Err(err).Str("entry_id", entry.ID).Msg("Spool retry: failed to remove abandoned entry")
	}
	r.processor.Abandoned(entry, reason)
	return outcomeAbandoned
}

func (r *RetryLoop) ready(entry *Entry) bool {
	if entry.LastAttemptAt.IsZero() {
		return true
	}
	return r.now().Sub(entry.LastAttemptAt) >= r.backoff(entry.Attempts)
}

// backoff is RetryBackoff * 2^(attempts-1), capped at MaxBackoff.
func (r *RetryLoop) backoff(attempts int) time.Duration {
	if attempts < 1 {
		return 0
	}
	d := float64(r.config.RetryBackoff) * math.Pow(2, float64(attempts-1))
	if d > float64(r.config.MaxBackoff) {
		return r.config.MaxBackoff
	}
	return time.Duration(d)
}
