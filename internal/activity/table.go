// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package activity

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/tomtom215/playwatch/internal/models"
)

// Snapshot is an immutable view of the live sessions, sorted by session key.
// The Sessions slice is never modified after publication.
type Snapshot struct {
	Sessions  []models.Session
	Version   uint64
	Published time.Time
}

// Len returns the number of live sessions.
func (s Snapshot) Len() int { return len(s.Sessions) }

// Get returns the session for key.
func (s Snapshot) Get(key string) (models.Session, bool) {
	i := sort.Search(len(s.Sessions), func(i int) bool { return s.Sessions[i].SessionKey >= key })
	if i < len(s.Sessions) && s.Sessions[i].SessionKey == key {
		return s.Sessions[i], true
	}
	return models.Session{}, false
}

// ForUser returns the sessions belonging to userID.
func (s Snapshot) ForUser(userID int) []models.Session {
	var out []models.Session
	for _, sess := range s.Sessions {
		if sess.UserID == userID {
			out = append(out, sess)
		}
	}
	return out
}

// Table is the session arena. Mutating methods must only be called from the
// machine goroutine; Snapshot is safe from anywhere.
type Table struct {
	live    map[string]models.Session
	version uint64
	snap    atomic.Pointer[Snapshot]
}

// NewTable returns an empty table with an empty published snapshot.
func NewTable() *Table {
	t := &Table{live: make(map[string]models.Session)}
	t.snap.Store(&Snapshot{})
	return t
}

// Lookup returns a copy of the live session for key.
func (t *Table) Lookup(key string) (models.Session, bool) {
	s, ok := t.live[key]
	return s, ok
}

// Put stores s under its session key.
func (t *Table) Put(s models.Session) {
	t.live[s.SessionKey] = s
}

// Delete removes key.
func (t *Table) Delete(key string) {
	delete(t.live, key)
}

// Keys returns the live keys in sorted order.
func (t *Table) Keys() []string {
	keys := make([]string, 0, len(t.live))
	for k := range t.live {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Publish makes the current contents visible to Snapshot readers.
func (t *Table) Publish(at time.Time) Snapshot {
	sessions := make([]models.Session, 0, len(t.live))
	for _, k := range t.Keys() {
		sessions = append(sessions, t.live[k])
	}
	t.version++
	snap := &Snapshot{Sessions: sessions, Version: t.version, Published: at}
	t.snap.Store(snap)
	return *snap
}

// Snapshot returns the most recently published view.
func (t *Table) Snapshot() Snapshot {
	return *t.snap.Load()
}
