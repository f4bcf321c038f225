// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package activity

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/playwatch/internal/models"
)

var (
	// ErrInvalidTransition is returned for an edge missing from CanTransition.
	// The event's offsets and timestamps are still applied.
	ErrInvalidTransition = errors.New("activity: invalid state transition")

	// ErrLookupExhausted is returned when a session is dropped because its
	// media item could not be resolved.
	ErrLookupExhausted = errors.New("activity: media lookup attempts exhausted")

	// ErrStaleEvent is returned for a live-state event observed before the
	// session's LastSeenAt. The session is left untouched.
	ErrStaleEvent = errors.New("activity: event older than session state")
)

// Stop reasons carried by synthetic stop events.
const (
	ReasonObserved   = "observed"
	ReasonPollAbsent = "poll_absent"
	ReasonStale      = "stale"
	ReasonFlush      = "flush"
	ReasonShutdown   = "shutdown"
	ReasonLookup     = "lookup_failed"
)

// Rules parameterize Apply.
type Rules struct {
	// WatchedThreshold is the progress fraction at which a session counts as watched.
	WatchedThreshold float64
	// MaxLookupAttempts is how many failed media lookups a session survives.
	MaxLookupAttempts int
	// NewID generates session instance ids.
	NewID func() string
}

// DefaultRules returns the production defaults.
func DefaultRules() Rules {
	return Rules{
		WatchedThreshold:  0.85,
		MaxLookupAttempts: 3,
		NewID:             uuid.NewString,
	}
}

// CanTransition reports whether a session may move from one state to another.
// The empty state stands for "no session yet".
func CanTransition(from, to models.SessionState) bool {
	switch from {
	case "":
		return to == models.StatePlaying
	case models.StatePlaying:
		return to == models.StatePaused || to == models.StateBuffering || to == models.StateStopped
	case models.StatePaused:
		return to == models.StatePlaying || to == models.StateStopped
	case models.StateBuffering:
		return to == models.StatePlaying || to == models.StateStopped
	default:
		// stopped is terminal
		return false
	}
}

// Apply folds ev into prev and returns the next session value together with
// the transitions it produced. prev is nil when the key has no live session.
//
// A nil next session means the table entry must be removed: the session
// stopped or was dropped. Apply never reads the clock; all timestamps come
// from ev.ObservedAt.
func Apply(prev *models.Session, ev models.RawActivityEvent, r Rules) (*models.Session, []models.SessionTransition, error) {
	if ev.State == models.StateStopped {
		if prev == nil {
			return nil, nil, nil
		}
		s := *prev
		// A late stop still ends the session, but never rewinds it.
		if ev.ViewOffset > 0 && !ev.ObservedAt.Before(s.LastSeenAt) {
			s.ViewOffset = ev.ViewOffset
		}
		return nil, []models.SessionTransition{stop(&s, ev, r)}, nil
	}
	if !ev.State.Live() {
		return prev, nil, fmt.Errorf("%w: unknown state %q for session %s", ErrInvalidTransition, ev.State, ev.SessionKey)
	}
	if prev != nil && ev.ObservedAt.Before(prev.LastSeenAt) {
		return prev, nil, fmt.Errorf("%w: %s observed at %s, last seen %s",
			ErrStaleEvent, ev.SessionKey, ev.ObservedAt.Format(time.RFC3339Nano), prev.LastSeenAt.Format(time.RFC3339Nano))
	}

	var (
		s       models.Session
		created bool
	)
	if prev == nil {
		s = newSession(ev, r)
		created = true
	} else {
		s = *prev
	}

	if dropped, err := resolveMedia(&s, ev, r); dropped {
		s.StoppedAt = ev.ObservedAt
		t := models.SessionTransition{
			Kind:     models.TransitionError,
			Previous: stateOrNone(prev),
			Session:  s,
			At:       ev.ObservedAt,
			Reason:   ReasonLookup,
		}
		return nil, []models.SessionTransition{t}, err
	}

	decisionChanged := !created &&
		ev.Stream.TranscodeDecision != "" &&
		s.Stream.TranscodeDecision != "" &&
		ev.Stream.TranscodeDecision != s.Stream.TranscodeDecision
	offsetChanged := !created && ev.ViewOffset != s.ViewOffset

	absorb(&s, ev)
	crossed := markWatched(&s, ev, r)

	var out []models.SessionTransition
	emit := func(kind models.TransitionKind, from models.SessionState) {
		out = append(out, models.SessionTransition{Kind: kind, Previous: from, Session: s, At: ev.ObservedAt})
	}

	if created {
		emit(models.TransitionStarted, "")
	}

	var err error
	if ev.State != s.State {
		from := s.State
		switch {
		case !CanTransition(from, ev.State):
			err = fmt.Errorf("%w: %s -> %s for session %s", ErrInvalidTransition, from, ev.State, ev.SessionKey)
		case ev.State == models.StatePaused:
			s.State = models.StatePaused
			s.PausedSince = ev.ObservedAt
			emit(models.TransitionPaused, from)
		case ev.State == models.StateBuffering:
			s.State = models.StateBuffering
			// Bursts of buffer starts within one second collapse into one transition.
			collapsed := !s.LastBufferAt.IsZero() && s.LastBufferAt.Unix() == ev.ObservedAt.Unix()
			s.LastBufferAt = ev.ObservedAt
			if !collapsed {
				s.BufferCount++
				emit(models.TransitionBuffering, from)
			}
		case from == models.StatePaused:
			s.State = models.StatePlaying
			s.PausedCounter += ev.ObservedAt.Sub(s.PausedSince).Milliseconds()
			s.PausedSince = time.Time{}
			emit(models.TransitionResumed, from)
		default:
			s.State = models.StatePlaying
			emit(models.TransitionBufferEnd, from)
		}
	}

	if decisionChanged {
		emit(models.TransitionTranscodeChange, s.State)
	}
	if len(out) == 0 && (offsetChanged || crossed) {
		emit(models.TransitionProgressed, s.State)
	}
	if crossed && len(out) > 0 {
		out[len(out)-1].CrossedWatched = true
	}
	return &s, out, err
}

func newSession(ev models.RawActivityEvent, r Rules) models.Session {
	id := ""
	if r.NewID != nil {
		id = r.NewID()
	}
	return models.Session{
		InstanceID:  id,
		SessionKey:  ev.SessionKey,
		SessionID:   ev.SessionID,
		RatingKey:   ev.RatingKey,
		UserID:      ev.UserID,
		UserName:    ev.UserName,
		State:       models.StatePlaying,
		StartOffset: ev.ViewOffset,
		ViewOffset:  ev.ViewOffset,
		StartedAt:   ev.ObservedAt,
		LastSeenAt:  ev.ObservedAt,
		Stream:      ev.Stream,
		Player:      ev.Player,
	}
}

// resolveMedia applies the lookup outcome carried by ev. It reports true when
// the session has run out of lookup attempts and must be dropped.
func resolveMedia(s *models.Session, ev models.RawActivityEvent, r Rules) (bool, error) {
	switch {
	case ev.Media != nil:
		s.Media = *ev.Media
		s.MediaResolved = true
		s.LookupAttempts = 0
	case ev.LookupErr != "" && !s.MediaResolved:
		s.LookupAttempts++
		if r.MaxLookupAttempts > 0 && s.LookupAttempts >= r.MaxLookupAttempts {
			return true, fmt.Errorf("%w: rating_key=%s after %d attempts: %s",
				ErrLookupExhausted, s.RatingKey, s.LookupAttempts, ev.LookupErr)
		}
	}
	return false, nil
}

// absorb copies the always-updated fields of ev onto s.
func absorb(s *models.Session, ev models.RawActivityEvent) {
	s.ViewOffset = ev.ViewOffset
	s.LastSeenAt = ev.ObservedAt
	if ev.Stream != (models.StreamDetails{}) {
		s.Stream = ev.Stream
	}
	if ev.Player.MachineID != "" {
		s.Player = ev.Player
	}
	if ev.SessionID != "" {
		s.SessionID = ev.SessionID
	}
	switch {
	case ev.Duration > 0:
		s.Duration = ev.Duration
	case s.Duration == 0:
		s.Duration = s.Media.Duration
	}
}

// markWatched records the first time s reaches the watched threshold.
func markWatched(s *models.Session, ev models.RawActivityEvent, r Rules) bool {
	if !s.WatchedAt.IsZero() || r.WatchedThreshold <= 0 {
		return false
	}
	if s.PercentComplete() < r.WatchedThreshold {
		return false
	}
	s.WatchedAt = ev.ObservedAt
	return true
}

func stop(s *models.Session, ev models.RawActivityEvent, r Rules) models.SessionTransition {
	if ev.ObservedAt.Before(s.LastSeenAt) {
		ev.ObservedAt = s.LastSeenAt
	}
	from := s.State
	if from == models.StatePaused && !s.PausedSince.IsZero() {
		s.PausedCounter += ev.ObservedAt.Sub(s.PausedSince).Milliseconds()
	}
	s.PausedSince = time.Time{}
	s.State = models.StateStopped
	s.StoppedAt = ev.ObservedAt
	crossed := markWatched(s, ev, r)

	reason := ev.Reason
	if reason == "" {
		reason = ReasonObserved
	}
	return models.SessionTransition{
		Kind:           models.TransitionStopped,
		Previous:       from,
		Session:        *s,
		At:             ev.ObservedAt,
		Synthetic:      ev.Source == models.SourceSynthetic,
		Reason:         reason,
		CrossedWatched: crossed,
	}
}

func stateOrNone(s *models.Session) models.SessionState {
	if s == nil {
		return ""
	}
	return s.State
}
