// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/playwatch/internal/models"
)

func startHub(t *testing.T, buffer int) (*Hub, context.CancelFunc, <-chan error) {
	t.Helper()
	hub := NewHub(buffer)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Serve(ctx) }()
	t.Cleanup(cancel)
	return hub, cancel, done
}

func testClient(hub *Hub, buffer int) *Client {
	return &Client{id: clientIDCounter.Add(1), hub: hub, send: make(chan Message, buffer)}
}

func transition(kind models.TransitionKind, key string) models.SessionTransition {
	return models.SessionTransition{
		Kind:    kind,
		Session: models.Session{SessionKey: key, UserName: "alice"},
		At:      time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC),
	}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func TestHub_BroadcastsTransitions(t *testing.T) {
	hub, _, _ := startHub(t, 8)
	a, b := testClient(hub, 8), testClient(hub, 8)
	hub.Register <- a
	hub.Register <- b

	hub.HandleTransition(context.Background(), transition(models.TransitionPaused, "7"))

	for _, c := range []*Client{a, b} {
		msg := receive(t, c)
		if msg.Type != MessageTypeTransition {
			t.Fatalf("Type = %q", msg.Type)
		}
		tr, ok := msg.Data.(models.SessionTransition)
		if !ok || tr.Kind != models.TransitionPaused || tr.Session.SessionKey != "7" {
			t.Errorf("Data = %#v", msg.Data)
		}
	}
	if got := hub.ClientCount(); got != 2 {
		t.Errorf("ClientCount() = %d, want 2", got)
	}
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	hub, _, _ := startHub(t, 8)
	c := testClient(hub, 1)
	hub.Register <- c
	hub.Unregister <- c

	select {
	case _, ok := <-c.send:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("send not closed")
	}
	if got := hub.ClientCount(); got != 0 {
		t.Errorf("ClientCount() = %d, want 0", got)
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub, _, _ := startHub(t, 8)
	slow := testClient(hub, 1)
	hub.Register <- slow

	hub.HandleTransition(context.Background(), transition(models.TransitionStarted, "1"))
	hub.HandleTransition(context.Background(), transition(models.TransitionProgressed, "1"))

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("slow client was not disconnected")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_HandleTransitionNeverBlocks(t *testing.T) {
	hub := NewHub(1)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.HandleTransition(context.Background(), transition(models.TransitionProgressed, "1"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("HandleTransition blocked on a full buffer")
	}
}

func TestHub_ServeStopsAndClosesClients(t *testing.T) {
	hub, cancel, done := startHub(t, 8)
	c := testClient(hub, 1)
	hub.Register <- c
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
	if _, ok := <-c.send; ok {
		t.Error("client send channel still open")
	}
	if hub.String() != "websocket-hub" || hub.Name() != "websocket" {
		t.Errorf("names = %q, %q", hub.String(), hub.Name())
	}
}

func TestClient_EndToEnd(t *testing.T) {
	hub, _, _ := startHub(t, 8)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn)
		hub.Register <- client
		client.Start()
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var pong struct {
		Type string `json:"type"`
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if err := json.Unmarshal(data, &pong); err != nil || pong.Type != MessageTypePong {
		t.Fatalf("got %s, want pong", data)
	}

	hub.HandleTransition(context.Background(), transition(models.TransitionStopped, "42"))
	_, data, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read transition: %v", err)
	}
	var frame struct {
		Type string                   `json:"type"`
		Data models.SessionTransition `json:"data"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if frame.Type != MessageTypeTransition || frame.Data.Kind != models.TransitionStopped || frame.Data.Session.SessionKey != "42" {
		t.Errorf("frame = %+v", frame)
	}
}

func TestHub_GreetsNewClientWithSnapshot(t *testing.T) {
	hub := NewHub(8)
	hub.SetSnapshotSource(func() []models.Session {
		return []models.Session{{SessionKey: "7", UserName: "alice"}}
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = hub.Serve(ctx) }()

	client := testClient(hub, 4)
	hub.Register <- client

	first := receive(t, client)
	sessions, ok := first.Data.([]models.Session)
	if first.Type != MessageTypeSnapshot || !ok || len(sessions) != 1 || sessions[0].SessionKey != "7" {
		t.Fatalf("first frame = %+v, want snapshot with session 7", first)
	}

	hub.HandleTransition(context.Background(), transition(models.TransitionPaused, "7"))
	if msg := receive(t, client); msg.Type != MessageTypeTransition {
		t.Errorf("second frame type = %q, want transition", msg.Type)
	}
}

func TestClient_Answer(t *testing.T) {
	hub := NewHub(1)
	client := testClient(hub, 1)

	if msg, ok := client.answer([]byte(`{"type":"ping"}`)); !ok || msg.Type != MessageTypePong {
		t.Errorf("ping -> %+v, %v", msg, ok)
	}
	if _, ok := client.answer([]byte(`{"type":"snapshot"}`)); ok {
		t.Error("snapshot answered without a source")
	}
	if _, ok := client.answer([]byte(`not json`)); ok {
		t.Error("garbage answered")
	}

	hub.SetSnapshotSource(func() []models.Session { return nil })
	msg, ok := client.answer([]byte(`{"type":"snapshot"}`))
	if !ok || msg.Type != MessageTypeSnapshot {
		t.Fatalf("snapshot -> %+v, %v", msg, ok)
	}
	if sessions, _ := msg.Data.([]models.Session); sessions == nil {
		t.Error("empty table should encode as [] not null")
	}
}
