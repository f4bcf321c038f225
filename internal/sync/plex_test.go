// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package sync

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/playwatch/internal/config"
)

const sessionsJSON = `{
  "MediaContainer": {
    "size": 1,
    "Metadata": [{
      "sessionKey": "12",
      "ratingKey": "5001",
      "grandparentTitle": "The Show",
      "title": "Pilot",
      "type": "episode",
      "librarySectionID": "2",
      "viewOffset": 60000,
      "duration": 1800000,
      "User": {"id": "7", "title": "alice"},
      "Player": {"machineIdentifier": "abc", "state": "paused", "title": "Living Room", "platform": "Roku", "local": true},
      "Session": {"id": "sess-1", "location": "lan"},
      "TranscodeSession": {"videoDecision": "copy", "audioDecision": "transcode"},
      "Media": [{"bitrate": 8000, "container": "mkv", "videoCodec": "h264", "audioCodec": "eac3", "videoResolution": "1080"}]
    }]
  }
}`

func newTestClient(url string) *PlexClient {
	c := NewPlexClient(&config.PlexConfig{URL: url, Token: "secret-token", RequestTimeout: 5 * time.Second})
	c.retryBase = time.Millisecond
	return c
}

func TestPlexClient_GetSessions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status/sessions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("X-Plex-Token") != "secret-token" {
			t.Errorf("X-Plex-Token = %q", r.Header.Get("X-Plex-Token"))
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sessionsJSON))
	}))
	defer server.Close()

	sessions, err := newTestClient(server.URL + "/").GetSessions(context.Background())
	if err != nil {
		t.Fatalf("GetSessions() error: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(sessions))
	}
	s := sessions[0]
	if s.SessionKey != "12" || s.User == nil || s.User.Title != "alice" || s.Player.State != "paused" {
		t.Errorf("unexpected session %+v", s)
	}
}

func TestPlexClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		call    func(c *PlexClient) error
		wantIs  error
	}{
		{
			name:    "server error is source unavailable",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
			call:    func(c *PlexClient) error { _, err := c.GetSessions(context.Background()); return err },
			wantIs:  ErrSourceUnavailable,
		},
		{
			name:    "bad json is source unavailable",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("{not json")) },
			call:    func(c *PlexClient) error { _, err := c.GetSessions(context.Background()); return err },
			wantIs:  ErrSourceUnavailable,
		},
		{
			name:    "metadata 404 is not found",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) },
			call:    func(c *PlexClient) error { _, err := c.GetMetadata(context.Background(), "1"); return err },
			wantIs:  ErrItemNotFound,
		},
		{
			name:    "empty metadata is not found",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"MediaContainer":{"size":0}}`)) },
			call:    func(c *PlexClient) error { _, err := c.GetMetadata(context.Background(), "1"); return err },
			wantIs:  ErrItemNotFound,
		},
		{
			name: "persistent 429",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
			call:   func(c *PlexClient) error { _, err := c.GetSessions(context.Background()); return err },
			wantIs: ErrRateLimited,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			err := tt.call(newTestClient(server.URL))
			if !errors.Is(err, tt.wantIs) {
				t.Errorf("error = %v, want %v", err, tt.wantIs)
			}
		})
	}
}

func TestPlexClient_NotFoundIsNotSourceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GetMetadata(context.Background(), "1")
	if errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("404 should not be a connectivity failure: %v", err)
	}
}

func TestPlexClient_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"MediaContainer":{"size":1,"Metadata":[{"ratingKey":"9","type":"movie","title":"Heat","librarySectionID":1,"duration":100}]}}`))
	}))
	defer server.Close()

	md, err := newTestClient(server.URL).GetMetadata(context.Background(), "9")
	if err != nil {
		t.Fatalf("GetMetadata() error: %v", err)
	}
	if md.Title != "Heat" || md.LibrarySectionID != 1 {
		t.Errorf("metadata = %+v", md)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestPlexClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(url).GetSessions(context.Background())
	var serr *SourceError
	if !errors.As(err, &serr) {
		t.Fatalf("error = %v, want *SourceError", err)
	}
	if serr.Op != "sessions" {
		t.Errorf("Op = %q", serr.Op)
	}
}

func TestBuildWebSocketURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://plex.local:32400", "ws://plex.local:32400/:/websockets/notifications?X-Plex-Token=tok"},
		{"https://plex.example.com", "wss://plex.example.com/:/websockets/notifications?X-Plex-Token=tok"},
	}
	for _, tt := range tests {
		got, err := buildWebSocketURL(tt.base, "tok")
		if err != nil {
			t.Fatalf("buildWebSocketURL(%q) error: %v", tt.base, err)
		}
		if got != tt.want {
			t.Errorf("buildWebSocketURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}
