// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package dispatch

import (
	"context"
	"time"

	"github.com/tomtom215/playwatch/internal/logging"
	"github.com/tomtom215/playwatch/internal/models"
)

// Handler consumes session transitions on a pool worker.
type Handler interface {
	Name() string
	HandleTransition(ctx context.Context, t models.SessionTransition)
}

// Spiller is implemented by guaranteed handlers that can park a transition
// durably when their pool stays saturated past the block timeout.
type Spiller interface {
	Spill(ctx context.Context, t models.SessionTransition) error
}

type route struct {
	handler    Handler
	guaranteed bool
}

// Fanout delivers every transition to each registered handler as a separate
// job. Jobs are keyed by handler and session key, so each handler sees the
// transitions of one session in order.
//
// Guaranteed and best-effort handlers run on separate pools: a hung
// best-effort handler can fill its own queues but never delays a
// guaranteed job or blocks the producer.
type Fanout struct {
	guaranteed   *Pool
	bestEffort   *Pool
	routes       []route
	blockTimeout time.Duration
}

// NewFanout creates a fanout. guaranteed receives jobs with backpressure,
// bestEffort receives jobs that are dropped when its queue is full.
func NewFanout(guaranteed, bestEffort *Pool, blockTimeout time.Duration) *Fanout {
	if blockTimeout <= 0 {
		blockTimeout = 30 * time.Second
	}
	return &Fanout{guaranteed: guaranteed, bestEffort: bestEffort, blockTimeout: blockTimeout}
}

// Register adds a handler.
func (f *Fanout) Register(h Handler, guaranteed bool) {
	f.routes = append(f.routes, route{handler: h, guaranteed: guaranteed})
}

// Publish implements activity.Sink.
func (f *Fanout) Publish(t models.SessionTransition) {
	for _, r := range f.routes {
		h := r.handler
		key := h.Name() + "/" + t.Session.SessionKey
		job := func(ctx context.Context) { h.HandleTransition(ctx, t) }

		if !r.guaranteed {
			if err := f.bestEffort.TrySubmit(key, job); err != nil {
				logging.Warn().Err(err).
					Str("handler", h.Name()).
					Str("session_key", t.Session.SessionKey).
					Str("transition", string(t.Kind)).
					Msg("dropping transition, worker queue full")
			}
			continue
		}
		f.submitGuaranteed(h, key, job, t)
	}
}

func (f *Fanout) submitGuaranteed(h Handler, key string, job Job, t models.SessionTransition) {
	ctx, cancel := context.WithTimeout(context.Background(), f.blockTimeout)
	defer cancel()

	err := f.guaranteed.Submit(ctx, key, job)
	if err == nil {
		return
	}
	if sp, ok := h.(Spiller); ok {
		serr := sp.Spill(context.Background(), t)
		if serr == nil {
			logging.Warn().Err(err).
				Str("handler", h.Name()).
				Str("session_key", t.Session.SessionKey).
				Msg("worker pool saturated, transition spilled")
			return
		}
		err = serr
	}
	logging.Error().Err(err).
		Str("handler", h.Name()).
		Str("session_key", t.Session.SessionKey).
		Str("transition", string(t.Kind)).
		Msg("dropping transition, worker pool saturated")
}
