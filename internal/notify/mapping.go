// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package notify

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/playwatch/internal/cache"
	"github.com/tomtom215/playwatch/internal/logging"
	"github.com/tomtom215/playwatch/internal/models"
)

// DeviceLookup reports whether a user has played from a device before.
type DeviceLookup interface {
	KnownDevice(ctx context.Context, userID int, machineID string) (bool, error)
}

// watchedCacheSize bounds the on_watched once-set.
const watchedCacheSize = 10000

// Mapper turns session transitions into notification actions.
type Mapper struct {
	concurrentThreshold int
	devices             DeviceLookup
	watched             *cache.LRU[struct{}]
	logger              zerolog.Logger
}

// NewMapper creates a Mapper. devices may be nil, in which case only the live
// table decides whether a device is new.
func NewMapper(concurrentThreshold int, devices DeviceLookup, watchedTTL time.Duration) *Mapper {
	if concurrentThreshold < 2 {
		concurrentThreshold = 2
	}
	return &Mapper{
		concurrentThreshold: concurrentThreshold,
		devices:             devices,
		watched:             cache.NewLRU[struct{}](watchedCacheSize, watchedTTL),
		logger:              logging.WithComponent("notify"),
	}
}

// transitionActions is the direct kind-to-action table. Progressed and
// buffer_end transitions map to nothing on their own.
var transitionActions = map[models.TransitionKind]models.ActionKind{
	models.TransitionStarted:         models.ActionPlay,
	models.TransitionPaused:          models.ActionPause,
	models.TransitionResumed:         models.ActionResume,
	models.TransitionBuffering:       models.ActionBuffer,
	models.TransitionTranscodeChange: models.ActionTranscodeDecisionChange,
	models.TransitionStopped:         models.ActionStop,
	models.TransitionError:           models.ActionError,
}

// Map returns the actions for t, in firing order. A stop past the watched
// threshold yields on_stop followed by on_watched. on_watched fires at most
// once per session instance.
func (m *Mapper) Map(ctx context.Context, t models.SessionTransition) []models.NotifyAction {
	var kinds []models.ActionKind
	if kind, ok := transitionActions[t.Kind]; ok {
		kinds = append(kinds, kind)
	}

	if t.Kind == models.TransitionStarted {
		if userStreams(t.Active, t.Session.UserID) >= m.concurrentThreshold {
			kinds = append(kinds, models.ActionConcurrentStreams)
		}
		if m.isNewDevice(ctx, t) {
			kinds = append(kinds, models.ActionNewDevice)
		}
	}

	if t.CrossedWatched && !m.watched.Seen(t.Session.InstanceID) {
		kinds = append(kinds, models.ActionWatched)
	}

	actions := make([]models.NotifyAction, 0, len(kinds))
	for _, kind := range kinds {
		actions = append(actions, models.NotifyAction{
			Kind:       kind,
			Session:    t.Session,
			Params:     BuildParams(kind, t),
			Transition: string(t.Kind),
			At:         t.At,
		})
	}
	return actions
}

// isNewDevice checks the live snapshot first, then stored history. A lookup
// failure counts as known so a flaky store cannot produce false alerts.
func (m *Mapper) isNewDevice(ctx context.Context, t models.SessionTransition) bool {
	s := t.Session
	if s.Player.MachineID == "" {
		return false
	}
	for _, other := range t.Active {
		if other.SessionKey != s.SessionKey && other.UserID == s.UserID && other.Player.MachineID == s.Player.MachineID {
			return false
		}
	}
	if m.devices == nil {
		return true
	}
	known, err := m.devices.KnownDevice(ctx, s.UserID, s.Player.MachineID)
	if err != nil {
		m.logger.Warn().Err(err).
			Int("user_id", s.UserID).
			Str("machine_id", s.Player.MachineID).
			Msg("Device lookup failed, skipping new device check")
		return false
	}
	return !known
}

func userStreams(active []models.Session, userID int) int {
	n := 0
	for _, s := range active {
		if s.UserID == userID {
			n++
		}
	}
	return n
}

// BuildParams computes the condition parameters for one action. Stream counts
// come from the snapshot carried by started transitions and are zero otherwise.
func BuildParams(kind models.ActionKind, t models.SessionTransition) models.ActionParams {
	s := t.Session
	p := models.ActionParams{
		Action:            string(kind),
		User:              s.UserName,
		UserID:            s.UserID,
		MediaType:         s.Media.MediaType,
		Title:             s.Media.Title,
		ShowName:          s.Media.GrandparentTitle,
		LibrarySectionID:  s.Media.LibrarySectionID,
		RatingKey:         s.RatingKey,
		Year:              s.Media.Year,
		State:             string(s.State),
		ProgressPercent:   math.Round(s.PercentComplete()*1000) / 10,
		ViewOffset:        s.ViewOffset,
		Duration:          s.Duration,
		TranscodeDecision: s.Stream.TranscodeDecision,
		VideoResolution:   s.Stream.VideoResolution,
		Player:            s.Player.Title,
		Platform:          s.Player.Platform,
		Product:           s.Player.Product,
		MachineID:         s.Player.MachineID,
		IPAddress:         s.Player.Address,
		Local:             s.Player.Local,
		InitialStream:     s.InitialStream,
		BufferCount:       s.BufferCount,
		Reason:            t.Reason,
	}
	if t.Active != nil {
		p.TotalStreams = len(t.Active)
		p.UserStreams = userStreams(t.Active, s.UserID)
	}
	return p
}
