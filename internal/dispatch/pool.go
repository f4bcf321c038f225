// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

// Package dispatch runs downstream work (history writes, notification
// evaluation) off the session machine goroutine.
//
// Jobs are sharded onto workers by key, so jobs sharing a key run one at a
// time in submission order while different keys proceed in parallel.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/playwatch/internal/logging"
	"github.com/tomtom215/playwatch/internal/metrics"
)

var (
	// ErrQueueFull is returned by TrySubmit when the key's worker queue is full.
	ErrQueueFull = errors.New("dispatch: queue full")
)

// Job is a unit of work. ctx is canceled when the pool stops.
type Job func(ctx context.Context)

// Config configures a Pool.
type Config struct {
	Name      string
	Workers   int
	QueueSize int // per worker
}

// Pool is a fixed set of workers, each with its own bounded queue.
type Pool struct {
	name     string
	queues   []chan Job
	inflight atomic.Int64
	logger   zerolog.Logger
}

// NewPool creates a pool. Workers start when Serve is called; jobs submitted
// earlier wait in the queues.
func NewPool(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Name == "" {
		cfg.Name = "dispatch"
	}
	p := &Pool{
		name:   cfg.Name,
		queues: make([]chan Job, cfg.Workers),
		logger: logging.WithComponent("dispatch").With().Str("pool", cfg.Name).Logger(),
	}
	for i := range p.queues {
		p.queues[i] = make(chan Job, cfg.QueueSize)
	}
	return p
}

// String implements fmt.Stringer for supervisor logging.
func (p *Pool) String() string { return "dispatch-pool-" + p.name }

// Submit queues job on the worker owning key, blocking until there is room
// or ctx is done.
func (p *Pool) Submit(ctx context.Context, key string, job Job) error {
	p.inflight.Add(1)
	select {
	case p.queue(key) <- job:
		metrics.SetQueueDepth(p.name, int(p.inflight.Load()))
		return nil
	case <-ctx.Done():
		p.inflight.Add(-1)
		return fmt.Errorf("dispatch %s: submit %s: %w", p.name, key, ctx.Err())
	}
}

// TrySubmit queues job without blocking.
func (p *Pool) TrySubmit(key string, job Job) error {
	p.inflight.Add(1)
	select {
	case p.queue(key) <- job:
		metrics.SetQueueDepth(p.name, int(p.inflight.Load()))
		return nil
	default:
		p.inflight.Add(-1)
		metrics.RecordJobDropped(p.name)
		return ErrQueueFull
	}
}

// Pending returns the number of queued and running jobs.
func (p *Pool) Pending() int {
	return int(p.inflight.Load())
}

// Serve runs the workers until ctx is canceled. Jobs still queued at that
// point stay queued and run if Serve is started again.
func (p *Pool) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	for i, q := range p.queues {
		wg.Add(1)
		go func(id int, q chan Job) {
			defer wg.Done()
			p.work(ctx, id, q)
		}(i, q)
	}
	p.logger.Info().Int("workers", len(p.queues)).Msg("worker pool started")

	<-ctx.Done()
	wg.Wait()
	p.logger.Info().Int("pending", p.Pending()).Msg("worker pool stopped")
	return ctx.Err()
}

// Drain waits until every submitted job has finished or ctx expires.
func (p *Pool) Drain(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if p.inflight.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("dispatch %s: drain with %d pending: %w", p.name, p.Pending(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (p *Pool) work(ctx context.Context, id int, q chan Job) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q:
			p.run(ctx, id, job)
		}
	}
}

func (p *Pool) run(ctx context.Context, id int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Int("worker", id).Interface("panic", r).Msg("job panicked")
		}
		n := p.inflight.Add(-1)
		metrics.SetQueueDepth(p.name, int(n))
	}()
	job(ctx)
}

func (p *Pool) queue(key string) chan Job {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return p.queues[h.Sum32()%uint32(len(p.queues))]
}
