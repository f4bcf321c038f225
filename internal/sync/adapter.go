// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package sync

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/tomtom215/playwatch/internal/logging"
	"github.com/tomtom215/playwatch/internal/metrics"
	"github.com/tomtom215/playwatch/internal/models"
)

// Transcode decisions as stored on StreamDetails.
const (
	DecisionDirectPlay = "direct play"
	DecisionCopy       = "copy"
	DecisionTranscode  = "transcode"
)

// eventFromSession normalizes one /status/sessions entry. Media comes from
// lookup; a not-found answer is recorded as LookupErr so the machine can count
// attempts, while a transient failure falls back to the metadata embedded in
// the session so an outage does not burn lookup attempts.
func eventFromSession(ctx context.Context, ps *models.PlexSession, lookup MediaLookup, source models.EventSource, at time.Time) (models.RawActivityEvent, bool) {
	ev := models.RawActivityEvent{
		SessionKey: ps.SessionKey,
		RatingKey:  ps.RatingKey,
		ViewOffset: ps.ViewOffset,
		Duration:   ps.Duration,
		Stream:     streamDetails(ps),
		ObservedAt: at,
		Source:     source,
	}
	if ps.Session != nil {
		ev.SessionID = ps.Session.ID
	}
	if ps.User != nil {
		ev.UserID, _ = strconv.Atoi(ps.User.ID)
		ev.UserName = ps.User.Title
	}
	// The player carries the state; without it the entry is unusable.
	if ps.Player == nil {
		return ev, false
	}
	ev.Player = models.PlayerInfo{
		MachineID: ps.Player.MachineID,
		Device:    ps.Player.Device,
		Platform:  ps.Player.Platform,
		Product:   ps.Player.Product,
		Title:     ps.Player.Title,
		Address:   ps.Player.Address,
		Local:     ps.Player.Local,
	}
	state, ok := models.ParseSessionState(ps.Player.State)
	if !ok || state == models.StateStopped {
		return ev, false
	}
	ev.State = state

	if lookup == nil {
		ev.Media = inlineMedia(ps)
		return ev, true
	}
	item, err := lookup.GetItem(ctx, ps.RatingKey)
	switch {
	case err == nil:
		ev.Media = item
	case errors.Is(err, ErrItemNotFound):
		ev.LookupErr = err.Error()
	default:
		logging.Debug().Err(err).Str("rating_key", ps.RatingKey).Msg("Media lookup failed, using session metadata")
		ev.Media = inlineMedia(ps)
	}
	return ev, true
}

func inlineMedia(ps *models.PlexSession) *models.MediaItem {
	return &models.MediaItem{
		RatingKey:            ps.RatingKey,
		ParentRatingKey:      ps.ParentRatingKey,
		GrandparentRatingKey: ps.GrandparentRatingKey,
		MediaType:            ps.Type,
		Title:                ps.Title,
		ParentTitle:          ps.ParentTitle,
		GrandparentTitle:     ps.GrandparentTitle,
		LibrarySectionID:     ps.LibrarySectionID,
		Year:                 ps.Year,
		Duration:             ps.Duration,
	}
}

// streamDetails derives the transcode decision the way clients display it:
// no transcode session is direct play, any transcoded track is transcode,
// anything else is a copy (remux).
func streamDetails(ps *models.PlexSession) models.StreamDetails {
	d := models.StreamDetails{TranscodeDecision: DecisionDirectPlay}
	if len(ps.Media) > 0 {
		m := ps.Media[0]
		d.Container = m.Container
		d.VideoCodec = m.VideoCodec
		d.AudioCodec = m.AudioCodec
		d.VideoResolution = m.VideoResolution
		d.Bitrate = m.Bitrate
	}
	if ts := ps.TranscodeSession; ts != nil {
		d.VideoDecision = ts.VideoDecision
		d.AudioDecision = ts.AudioDecision
		if ts.Container != "" {
			d.Container = ts.Container
		}
		if ts.VideoDecision == DecisionTranscode || ts.AudioDecision == DecisionTranscode {
			d.TranscodeDecision = DecisionTranscode
		} else {
			d.TranscodeDecision = DecisionCopy
		}
	}
	return d
}

// Debouncer drops push events that repeat the last state of a session key
// within a minimum interval. State changes and stops always pass.
type Debouncer struct {
	interval time.Duration

	mu   sync.Mutex
	last map[string]debounceEntry
}

type debounceEntry struct {
	state models.SessionState
	at    time.Time
}

// NewDebouncer creates a Debouncer. A zero interval passes everything.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval, last: make(map[string]debounceEntry)}
}

// Allow reports whether an event for key in state at time at should pass.
func (d *Debouncer) Allow(key string, state models.SessionState, at time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if state == models.StateStopped {
		delete(d.last, key)
		return true
	}
	if prev, ok := d.last[key]; ok && d.interval > 0 && prev.state == state && at.Sub(prev.at) < d.interval {
		metrics.RecordEventDebounced()
		return false
	}
	d.last[key] = debounceEntry{state: state, at: at}
	return true
}

// Len returns the number of tracked keys.
func (d *Debouncer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.last)
}
