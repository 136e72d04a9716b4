/*
Package chat contains the presence-aware broadcast core.

This file defines WSTransport, the gorilla WebSocket implementation of Transport. Writes come
from the connection's delivery goroutine; reads happen in ReadPump on the HTTP handler's goroutine.
*/
package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"fullchat/internal/pkg/logx"
)

const (
	// timeout for writes that have no deadline of their own, such as the close frame.
	writeWait = 10 * time.Second

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxFrameSize = 8192

	// WsCloseCodeDropped is sent when the server drops a connection that fell behind or went idle.
	WsCloseCodeDropped = 4002
)

// WSTransport adapts a gorilla WebSocket connection to Transport and Pinger.
type WSTransport struct {
	conn *websocket.Conn

	// writeMu serializes data frames; gorilla allows one concurrent writer.
	writeMu sync.Mutex

	// pongWait is the read deadline extended on every pong or inbound frame.
	pongWait time.Duration

	// readDone is closed when ReadPump returns, i.e. when the client went away.
	readDone chan struct{}

	closeOnce sync.Once

	logger zerolog.Logger
}

// NewWSTransport wraps conn. pongWait should match the hub's idle timeout so a peer that
// stops answering pings is noticed on the read side too.
func NewWSTransport(conn *websocket.Conn, pongWait time.Duration) *WSTransport {
	if pongWait <= 0 {
		pongWait = DefaultIdleTimeout
	}

	return &WSTransport{
		conn:     conn,
		pongWait: pongWait,
		readDone: make(chan struct{}),
		logger: logx.Component("WSTransport").With().
			Str("remote_addr", conn.RemoteAddr().String()).
			Logger(),
	}
}

// Send writes payload as a text frame. Cancelling ctx aborts a blocked write.
func (t *WSTransport) Send(ctx context.Context, payload []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := t.conn.SetWriteDeadline(deadline(ctx)); err != nil {
		return err
	}

	// unblock an in-flight write as soon as ctx is done.
	stop := context.AfterFunc(ctx, func() {
		_ = t.conn.NetConn().SetWriteDeadline(time.Now())
	})
	defer stop()

	if err := t.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Join(ctxErr, err)
		}
		return err
	}

	return nil
}

// Ping sends a WebSocket ping control frame.
func (t *WSTransport) Ping(ctx context.Context) error {
	return t.conn.WriteControl(websocket.PingMessage, nil, deadline(ctx))
}

// Closed is closed once the read side of the connection has ended.
func (t *WSTransport) Closed() <-chan struct{} {
	return t.readDone
}

// Close sends a close frame carrying reason and closes the underlying connection.
func (t *WSTransport) Close(reason string) error {
	var err error

	t.closeOnce.Do(func() {
		message := websocket.FormatCloseMessage(closeCode(reason), reason)
		if writeErr := t.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeWait)); writeErr != nil &&
			!errors.Is(writeErr, websocket.ErrCloseSent) {
			t.logger.Debug().Err(writeErr).Msg("Failed to send close frame.")
		}

		err = t.conn.Close()
	})

	return err
}

// ReadPump reads client frames until the connection fails or is closed, passing each text
// frame to handle. It must be called from a single goroutine; when it returns, Closed fires.
func (t *WSTransport) ReadPump(handle func(frame []byte)) {
	defer close(t.readDone)

	t.conn.SetReadLimit(maxFrameSize)

	if err := t.conn.SetReadDeadline(time.Now().Add(t.pongWait)); err != nil {
		t.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	t.conn.SetPongHandler(func(string) error {
		return t.conn.SetReadDeadline(time.Now().Add(t.pongWait))
	})

	for {
		messageType, frame, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.logger.Info().Err(err).Msg("Error reading frame (client close/going away)")
			}
			return
		}

		if err := t.conn.SetReadDeadline(time.Now().Add(t.pongWait)); err != nil {
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		handle(frame)
	}
}

func deadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(writeWait)
}

func closeCode(reason string) int {
	switch reason {
	case "bye":
		return websocket.CloseNormalClosure
	case "server shutting down":
		return websocket.CloseGoingAway
	case "unauthenticated":
		return websocket.ClosePolicyViolation
	default:
		return WsCloseCodeDropped
	}
}
