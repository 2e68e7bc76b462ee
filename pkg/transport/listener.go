package transport

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// Listener reads the execution service's push channel and feeds every
// frame to a Bridge, reconnecting with backoff until its context ends.
type Listener struct {
	url    string
	bridge *Bridge
	dialer *websocket.Dialer
	logger *slog.Logger

	MinBackoff time.Duration
	MaxBackoff time.Duration
}

func NewListener(url string, bridge *Bridge, logger *slog.Logger) *Listener {
	return &Listener{
		url:        url,
		bridge:     bridge,
		dialer:     websocket.DefaultDialer,
		logger:     logger.With("module", "transport_listener"),
		MinBackoff: time.Second,
		MaxBackoff: 30 * time.Second,
	}
}

// Run blocks until ctx is done.
func (l *Listener) Run(ctx context.Context) error {
	backoff := l.MinBackoff

	for {
		connected, err := l.listenOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if connected {
			backoff = l.MinBackoff
		}

		l.logger.Warn("Push channel closed, reconnecting", "url", l.url, "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff = min(backoff*2, l.MaxBackoff)
	}
}

// listenOnce serves one connection. It reports whether the dial succeeded.
func (l *Listener) listenOnce(ctx context.Context) (bool, error) {
	conn, resp, err := l.dialer.DialContext(ctx, l.url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		return false, err
	}

	l.logger.Info("Push channel connected", "url", l.url)

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
			_ = conn.Close()
		}
	}()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return true, errors.New("closed by server")
			}

			return true, err
		}

		switch kind {
		case websocket.TextMessage:
			err = l.bridge.HandleText(ctx, data)
		case websocket.BinaryMessage:
			err = l.bridge.HandleBinary(ctx, data)
		default:
			continue
		}

		if err != nil {
			l.logger.Warn("Failed to handle message", "error", err)
		}
	}
}
