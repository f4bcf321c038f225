// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package wal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/playwatch/internal/logging"
)

var (
	ErrWALClosed     = errors.New("wal is closed")
	ErrNilPayload    = errors.New("wal payload is nil")
	ErrEntryNotFound = errors.New("wal entry not found")
)

const prefixPending = "pending:"

// Entry is one spooled write and its attempt history.
type Entry struct {
	ID            string          `json:"id"`
	Key           string          `json:"key,omitempty"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
	Attempts      int             `json:"attempts"`
	LastAttemptAt time.Time       `json:"last_attempt_at,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
}

// UnmarshalPayload decodes the payload into v.
func (e *Entry) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// Stats are cumulative spool counters.
type Stats struct {
	Pending   int64
	Writes    int64
	Completed int64
	Abandoned int64
}

// BadgerWAL is a durable spool of writes that failed at least once.
// Entries are removed when they succeed or are abandoned.
type BadgerWAL struct {
	db     *badger.DB
	config Config

	pending   atomic.Int64
	writes    atomic.Int64
	completed atomic.Int64
	abandoned atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the spool at cfg.Path.
func Open(cfg Config) (*BadgerWAL, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.MemTableSize = 16 << 20
	opts.ValueLogFileSize = 64 << 20
	opts.NumCompactors = 2
	if cfg.Compression {
		opts.Compression = options.Snappy
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	w := &BadgerWAL{db: db, config: cfg}
	n, err := w.countPending()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("count pending entries: %w", err)
	}
	w.pending.Store(n)

	logging.Info().
		Str("path", cfg.Path).
		Int64("pending", n).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("Spool opened")
	return w, nil
}

// Config returns the spool configuration.
func (w *BadgerWAL) Config() Config {
	return w.config
}

func (w *BadgerWAL) checkOpen() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWALClosed
	}
	return nil
}

// Write spools payload. attempts and lastErr record the failure that caused
// the spooling; key is an optional caller identifier used only in logs.
func (w *BadgerWAL) Write(ctx context.Context, key string, payload any, attempts int, lastErr string) (string, error) {
	if err := w.checkOpen(); err != nil {
		return "", err
	}
	if payload == nil {
		return "", ErrNilPayload
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	now := time.Now().UTC()
	entry := &Entry{
		ID:        uuid.New().String(),
		Key:       key,
		Payload:   data,
		CreatedAt: now,
		Attempts:  attempts,
		LastError: lastErr,
	}
	if attempts > 0 {
		entry.LastAttemptAt = now
	}

	if err := w.put(entry); err != nil {
		return "", err
	}
	w.writes.Add(1)
	w.pending.Add(1)
	return entry.ID, nil
}

func (w *BadgerWAL) put(entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	err = w.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(prefixPending+entry.ID), data)
		if w.config.EntryTTL > 0 {
			e = e.WithTTL(w.config.EntryTTL)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("write to BadgerDB: %w", err)
	}
	return nil
}

// Get returns one pending entry.
func (w *BadgerWAL) Get(ctx context.Context, id string) (*Entry, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}
	var entry Entry
	err := w.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixPending + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrEntryNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetPending returns all pending entries from a consistent snapshot.
func (w *BadgerWAL) GetPending(ctx context.Context) ([]*Entry, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}

	var entries []*Entry
	err := w.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixPending)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			var entry Entry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("Spool skipped undecodable entry")
				continue
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate pending entries: %w", err)
	}
	return entries, nil
}

// UpdateAttempt records a failed attempt on a pending entry.
func (w *BadgerWAL) UpdateAttempt(ctx context.Context, id, lastErr string) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	entry, err := w.Get(ctx, id)
	if err != nil {
		return err
	}
	entry.Attempts++
	entry.LastAttemptAt = time.Now().UTC()
	entry.LastError = lastErr
	return w.put(entry)
}

// Complete removes an entry whose write succeeded.
func (w *BadgerWAL) Complete(ctx context.Context, id string) error {
	if err := w.remove(id); err != nil {
		return err
	}
	w.completed.Add(1)
	return nil
}

// Abandon removes an entry that will not be retried again.
func (w *BadgerWAL) Abandon(ctx context.Context, id string) error {
	if err := w.remove(id); err != nil {
		return err
	}
	w.abandoned.Add(1)
	return nil
}

func (w *BadgerWAL) remove(id string) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	err := w.db.Update(func(txn *badger.Txn) error {
		key := []byte(prefixPending + id)
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrEntryNotFound
		} else if err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if err != nil {
		return err
	}
	w.pending.Add(-1)
	return nil
}

func (w *BadgerWAL) countPending() (int64, error) {
	var n int64
	err := w.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(prefixPending)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// RunGC reclaims value log space. ErrNoRewrite means there was nothing to do.
func (w *BadgerWAL) RunGC() error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	err := w.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}

// Stats returns spool counters.
func (w *BadgerWAL) Stats() Stats {
	return Stats{
		Pending:   w.pending.Load(),
		Writes:    w.writes.Load(),
		Completed: w.completed.Load(),
		Abandoned: w.abandoned.Load(),
	}
}

// Close flushes and closes the underlying database. It is safe to call twice.
func (w *BadgerWAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.db.Close(); err != nil {
		return fmt.Errorf("close BadgerDB: %w", err)
	}
	logging.Info().Msg("Spool closed")
	return nil
}
