// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package sync

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/playwatch/internal/logging"
	"github.com/tomtom215/playwatch/internal/models"
)

const (
	feedReadTimeout  = 60 * time.Second
	feedPingInterval = 30 * time.Second
	feedWriteTimeout = 10 * time.Second
)

// buildWebSocketURL converts the server URL into the notifications endpoint:
// ws(s)://{host}/:/websockets/notifications?X-Plex-Token={token}
func buildWebSocketURL(baseURL, token string) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	scheme := "ws"
	if parsed.Scheme == "https" {
		scheme = "wss"
	}
	ws := url.URL{
		Scheme: scheme,
		Host:   parsed.Host,
		Path:   "/:/websockets/notifications",
	}
	q := ws.Query()
	q.Set("X-Plex-Token", token)
	ws.RawQuery = q.Encode()
	return ws.String(), nil
}

// plexFeed is one websocket connection. It does not reconnect on its own;
// the reconciler owns reconnection and resynchronization.
type plexFeed struct {
	conn    *websocket.Conn
	handler func(ctx context.Context, n models.PlexPlayingNotification) bool

	events chan models.RawActivityEvent
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	mu  sync.Mutex
	err error
}

func dialFeed(ctx context.Context, baseURL, token string) (*websocket.Conn, error) {
	wsURL, err := buildWebSocketURL(baseURL, token)
	if err != nil {
		return nil, sourceErr("feed", 0, err)
	}
	dialer := websocket.Dialer{
		HandshakeTimeout:  10 * time.Second,
		EnableCompression: true,
	}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, sourceErr("feed", status, fmt.Errorf("websocket dial: %w", err))
	}
	return conn, nil
}

// Events implements Subscription.
func (f *plexFeed) Events() <-chan models.RawActivityEvent { return f.events }

// Err implements Subscription.
func (f *plexFeed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Close implements Subscription.
func (f *plexFeed) Close() error {
	f.once.Do(func() {
		close(f.done)
		_ = f.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = f.conn.Close()
	})
	f.wg.Wait()
	return nil
}

func (f *plexFeed) start(ctx context.Context) {
	f.conn.SetPongHandler(func(string) error {
		return f.conn.SetReadDeadline(time.Now().Add(feedReadTimeout))
	})
	f.wg.Add(2)
	go f.listen(ctx)
	go f.pingLoop(ctx)
}

func (f *plexFeed) fail(err error) {
	f.mu.Lock()
	if f.err == nil {
		f.err = err
	}
	f.mu.Unlock()
}

// listen reads until the connection fails or the feed is closed, then closes
// the events channel. Err is set unless the close was requested.
func (f *plexFeed) listen(ctx context.Context) {
	defer f.wg.Done()
	defer close(f.events)

	for {
		if err := f.conn.SetReadDeadline(time.Now().Add(feedReadTimeout)); err != nil {
			logging.Debug().Err(err).Msg("Plex WebSocket: failed to set read deadline")
		}
		_, message, err := f.conn.ReadMessage()
		if err != nil {
			select {
			case <-f.done:
				return
			default:
			}
			if ctx.Err() != nil {
				f.fail(ctx.Err())
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				f.fail(sourceErr("feed", 0, fmt.Errorf("closed by server: %w", err)))
			} else {
				f.fail(sourceErr("feed", 0, fmt.Errorf("read: %w", err)))
			}
			return
		}
		if !f.handleMessage(ctx, message) {
			return
		}
	}
}

// handleMessage routes "playing" notifications; every other type is ignored.
// It returns false once the feed is shutting down.
func (f *plexFeed) handleMessage(ctx context.Context, data []byte) bool {
	var wrapper models.PlexNotificationWrapper
	if err := json.Unmarshal(data, &wrapper); err != nil {
		logging.Warn().Err(err).Msg("Failed to parse Plex notification")
		return true
	}
	container := wrapper.NotificationContainer
	if container.Type != "playing" {
		return true
	}
	for i := range container.PlaySessionStateNotification {
		if !f.handler(ctx, container.PlaySessionStateNotification[i]) {
			return false
		}
	}
	return true
}

func (f *plexFeed) emit(ctx context.Context, ev models.RawActivityEvent) bool {
	select {
	case f.events <- ev:
		return true
	case <-f.done:
		return false
	case <-ctx.Done():
		f.fail(ctx.Err())
		return false
	}
}

func (f *plexFeed) pingLoop(ctx context.Context) {
	defer f.wg.Done()

	ticker := time.NewTicker(feedPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = f.conn.Close()
			return
		case <-f.done:
			return
		case <-ticker.C:
			if err := f.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(feedWriteTimeout)); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					logging.Warn().Err(err).Msg("Plex WebSocket ping failed")
				}
				// Unblocks the reader, which reports the failure.
				_ = f.conn.Close()
				return
			}
		}
	}
}
