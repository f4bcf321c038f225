// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package history

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/playwatch/internal/logging"
	"github.com/tomtom215/playwatch/internal/metrics"
	"github.com/tomtom215/playwatch/internal/models"
	"github.com/tomtom215/playwatch/internal/wal"
)

// Store is the persistence capability used by the writer.
type Store interface {
	WriteHistory(ctx context.Context, r *models.HistoryRecord) (int64, error)
	FindMergeablePredecessor(ctx context.Context, userID int, ratingKey string, startedAt time.Time, window time.Duration) (*models.HistoryRecord, error)
}

// Spool durably queues records whose write failed.
type Spool interface {
	Write(ctx context.Context, key string, payload any, attempts int, lastErr string) (string, error)
}

// Outcome is the result of recording one session.
type Outcome string

const (
	OutcomeFiltered  Outcome = "filtered"
	OutcomeInserted  Outcome = "inserted"
	OutcomeMerged    Outcome = "merged"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeSpooled   Outcome = "spooled"
	OutcomeAbandoned Outcome = "abandoned"
)

// Config configures a Writer.
type Config struct {
	Policy           RetentionPolicy
	Grouping         GroupingRule
	MaxWriteAttempts int
	WriteTimeout     time.Duration
	// RetryBackoff is the base delay for in-process retries when no spool is configured.
	RetryBackoff time.Duration
}

// pendingWrite is the spooled form of a failed write.
type pendingWrite struct {
	InstanceID string               `json:"instance_id"`
	Record     models.HistoryRecord `json:"record"`
}

// Writer persists stopped sessions. It is the "history" handler of the
// transition fanout and the replay processor of the spool retry loop.
type Writer struct {
	store  Store
	spool  Spool
	cfg    Config
	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewWriter creates a Writer. spool may be nil, in which case failed writes
// are retried in place up to MaxWriteAttempts.
func NewWriter(store Store, spool Spool, cfg Config) *Writer {
	if cfg.MaxWriteAttempts < 1 {
		cfg.MaxWriteAttempts = 1
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	return &Writer{
		store:  store,
		spool:  spool,
		cfg:    cfg,
		logger: logging.WithComponent("history"),
		sleep:  sleepCtx,
	}
}

// Name identifies the handler in the fanout.
func (w *Writer) Name() string {
	return "history"
}

// HandleTransition records stopped sessions and ignores everything else.
func (w *Writer) HandleTransition(ctx context.Context, t models.SessionTransition) {
	if t.Kind != models.TransitionStopped {
		return
	}
	if _, err := w.Record(ctx, t.Session); err != nil {
		w.logger.Debug().Err(err).Str("session_key", t.Session.SessionKey).Msg("History record not written")
	}
}

// Spill parks a stopped session in the spool without touching the store.
// The spool retry loop writes it later through Replay. It implements
// dispatch.Spiller.
func (w *Writer) Spill(ctx context.Context, t models.SessionTransition) error {
	if t.Kind != models.TransitionStopped {
		return nil
	}
	if w.spool == nil {
		return ErrNoSpool
	}
	s := t.Session
	if keep, _ := w.cfg.Policy.Keep(s); !keep {
		return nil
	}
	rec := models.HistoryRecordFromSession(s)
	id, err := w.spool.Write(ctx, s.SessionKey, pendingWrite{InstanceID: s.InstanceID, Record: rec}, s.FailedWriteAttempts, "worker pool saturated")
	if err != nil {
		return fmt.Errorf("spill session %s: %w", s.SessionKey, err)
	}
	metrics.RecordHistoryWrite(string(OutcomeSpooled), 0)
	w.logger.Warn().Str("session_key", s.SessionKey).Str("entry_id", id).Msg("History write spilled to spool")
	return nil
}

// Record applies the retention filter and grouping rule to a stopped
// session and persists the result.
func (w *Writer) Record(ctx context.Context, s models.Session) (Outcome, error) {
	if keep, reason := w.cfg.Policy.Keep(s); !keep {
		w.logger.Debug().
			Str("session_key", s.SessionKey).
			Int("user_id", s.UserID).
			Str("rating_key", s.RatingKey).
			Str("reason", reason).
			Msg("Session below retention filter, not recorded")
		metrics.RecordHistoryWrite(string(OutcomeFiltered), 0)
		return OutcomeFiltered, nil
	}

	rec := models.HistoryRecordFromSession(s)
	if rec.RatingKey == "" || rec.StartedAt.IsZero() || rec.StoppedAt.IsZero() {
		err := fmt.Errorf("session %s: %w", s.SessionKey, ErrIncompleteSession)
		return w.abandon(s.InstanceID, rec, s.FailedWriteAttempts, err), err
	}

	outcome, err := w.persist(ctx, &rec)
	if err == nil {
		return outcome, nil
	}
	return w.handleFailure(ctx, s, rec, err)
}

// persist finds the predecessor, merges or inserts, and records metrics.
func (w *Writer) persist(ctx context.Context, rec *models.HistoryRecord) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.WriteTimeout)
	defer cancel()
	start := time.Now()

	prev, err := w.store.FindMergeablePredecessor(ctx, rec.UserID, rec.RatingKey, rec.StartedAt, w.cfg.Grouping.Window)
	if err != nil {
		metrics.RecordHistoryWrite("error", time.Since(start))
		return "", err
	}

	outcome := OutcomeInserted
	target := rec
	switch {
	case prev != nil && AlreadyMerged(*prev, *rec):
		metrics.RecordHistoryWrite(string(OutcomeDuplicate), time.Since(start))
		return OutcomeDuplicate, nil
	case prev != nil && w.cfg.Grouping.Mergeable(*prev, *rec):
		merged := Merge(*prev, *rec)
		target = &merged
		outcome = OutcomeMerged
	}

	if _, err := w.store.WriteHistory(ctx, target); err != nil {
		metrics.RecordHistoryWrite("error", time.Since(start))
		return "", err
	}
	metrics.RecordHistoryWrite(string(outcome), time.Since(start))

	w.logger.Info().
		Str("outcome", string(outcome)).
		Int64("history_id", target.ID).
		Int64("reference_id", target.ReferenceID).
		Int("user_id", target.UserID).
		Str("rating_key", target.RatingKey).
		Int("group_count", target.GroupCount).
		Float64("percent_complete", target.PercentComplete).
		Msg("History recorded")
	return outcome, nil
}

func (w *Writer) handleFailure(ctx context.Context, s models.Session, rec models.HistoryRecord, err error) (Outcome, error) {
	attempts := s.FailedWriteAttempts + 1
	if class := Classify(err); class != ClassTransient {
		return w.abandon(s.InstanceID, rec, attempts, err), err
	}

	if attempts >= w.cfg.MaxWriteAttempts {
		return w.abandon(s.InstanceID, rec, attempts, err), err
	}

	if w.spool != nil {
		id, serr := w.spool.Write(ctx, s.SessionKey, pendingWrite{InstanceID: s.InstanceID, Record: rec}, attempts, err.Error())
		if serr == nil {
			w.logger.Warn().
				Err(err).
				Str("session_key", s.SessionKey).
				Str("entry_id", id).
				Int("failed_write_attempts", attempts).
				Msg("History write failed, spooled for retry")
			metrics.RecordHistoryWrite(string(OutcomeSpooled), 0)
			return OutcomeSpooled, nil
		}
		w.logger.Error().Err(serr).Str("session_key", s.SessionKey).Msg("Failed to spool history write, retrying in place")
	}

	return w.retryInPlace(ctx, s.InstanceID, rec, attempts, err)
}

// retryInPlace keeps trying with exponential backoff until the attempt budget is spent.
func (w *Writer) retryInPlace(ctx context.Context, instanceID string, rec models.HistoryRecord, attempts int, lastErr error) (Outcome, error) {
	delay := w.cfg.RetryBackoff
	for attempts < w.cfg.MaxWriteAttempts {
		if err := w.sleep(ctx, delay); err != nil {
			return w.abandon(instanceID, rec, attempts, fmt.Errorf("%w (last error: %v)", err, lastErr)), err
		}
		delay *= 2

		attempt := rec
		outcome, err := w.persist(ctx, &attempt)
		if err == nil {
			return outcome, nil
		}
		attempts++
		lastErr = err
		if Classify(err) != ClassTransient {
			break
		}
	}
	return w.abandon(instanceID, rec, attempts, lastErr), lastErr
}

func (w *Writer) abandon(instanceID string, rec models.HistoryRecord, attempts int, err error) Outcome {
	w.logger.Error().
		Err(err).
		Str("class", string(Classify(err))).
		Str("instance_id", instanceID).
		Str("session_key", rec.SessionKey).
		Int("user_id", rec.UserID).
		Str("rating_key", rec.RatingKey).
		Time("started_at", rec.StartedAt).
		Int("failed_write_attempts", attempts).
		Msg("History record abandoned")
	metrics.RecordHistoryWrite(string(OutcomeAbandoned), 0)
	return OutcomeAbandoned
}

// Replay re-attempts a spooled write. It implements wal.Processor.
func (w *Writer) Replay(ctx context.Context, e *wal.Entry) error {
	var p pendingWrite
	if err := e.UnmarshalPayload(&p); err != nil {
		return fmt.Errorf("decode spooled history: %v: %w", err, wal.ErrPermanent)
	}
	if _, err := w.persist(ctx, &p.Record); err != nil {
		if Classify(err) != ClassTransient {
			return fmt.Errorf("%v: %w", err, wal.ErrPermanent)
		}
		return err
	}
	return nil
}

// Abandoned logs a spooled write the retry loop gave up on. It implements wal.Processor.
func (w *Writer) Abandoned(e *wal.Entry, reason string) {
	var p pendingWrite
	if err := e.UnmarshalPayload(&p); err != nil {
		w.logger.Error().Err(err).Str("entry_id", e.ID).Msg("Abandoned undecodable spooled history")
		return
	}
	w.abandon(p.InstanceID, p.Record, e.Attempts, fmt.Errorf("%s: %s", reason, e.LastError))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
