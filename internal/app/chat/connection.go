/*
Package chat contains the presence-aware broadcast core.

This file defines Connection, one live channel to a client. A Connection owns a bounded send
queue that is drained by exactly one delivery goroutine started by the Hub.
*/
package chat

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"fullchat/internal/app/user"
	"fullchat/internal/pkg/logx"
)

// ConnectionID identifies a connection for its whole lifetime. IDs are never reused.
type ConnectionID string

// Connection is one live client channel. A user may own several.
type Connection struct {
	// bindOnce guards id and identity, which are assigned once when the connection is registered.
	bindOnce sync.Once
	id       ConnectionID
	identity user.Identity

	// underlying client channel.
	transport Transport

	// buffered queue of encoded frames waiting for the delivery goroutine.
	queue chan []byte

	// ctx is cancelled with the termination cause when the connection dies.
	ctx    context.Context
	cancel context.CancelCauseFunc

	// unix nanos of the last successful send or ping.
	lastSend atomic.Int64

	// set once the connection has been sent an "online users" frame.
	greeted atomic.Bool

	// observer connections receive broadcasts but are not part of the registry.
	observer bool

	logger zerolog.Logger
}

// newConnection wraps a transport with a send queue of the given size.
func newConnection(transport Transport, queueSize int) *Connection {
	if queueSize < 1 {
		queueSize = 1
	}

	ctx, cancel := context.WithCancelCause(context.Background())

	c := &Connection{
		transport: transport,
		queue:     make(chan []byte, queueSize),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logx.Component("Connection"),
	}
	c.touch()

	return c
}

// bind assigns the id and identity. Later calls are ignored.
func (c *Connection) bind(id ConnectionID, identity user.Identity) {
	c.bindOnce.Do(func() {
		c.id = id
		c.identity = identity
		c.logger = c.logger.With().
			Str("connection_id", string(id)).
			Str("user_id", identity.ID).
			Logger()
	})
}

// ID returns the connection id, or "" before the connection is registered.
func (c *Connection) ID() ConnectionID {
	return c.id
}

// Identity returns the owning identity. It is zero for anonymous observers.
func (c *Connection) Identity() user.Identity {
	return c.identity
}

// Anonymous reports whether this connection is an unauthenticated observer.
func (c *Connection) Anonymous() bool {
	return c.observer
}

// Alive reports whether the connection has not been terminated.
func (c *Connection) Alive() bool {
	return c.ctx.Err() == nil
}

// Done is closed when the connection is terminated.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Err returns the termination cause, or nil while the connection is alive.
func (c *Connection) Err() error {
	if c.ctx.Err() == nil {
		return nil
	}
	return context.Cause(c.ctx)
}

// terminate marks the connection dead. Only the first cause is kept.
// It takes no locks, so it is safe to call from inside hub and registry critical sections.
func (c *Connection) terminate(cause error) {
	c.cancel(cause)
}

// enqueue hands a frame to the delivery goroutine without blocking.
// A full queue terminates the connection with ErrSlowConsumer.
func (c *Connection) enqueue(payload []byte) bool {
	if !c.Alive() {
		return false
	}

	select {
	case c.queue <- payload:
		return true
	default:
		c.logger.Warn().
			Int("queue_len", len(c.queue)).
			Msg("Send queue full, dropping slow connection.")
		c.terminate(ErrSlowConsumer)
		return false
	}
}

func (c *Connection) touch() {
	c.lastSend.Store(time.Now().UnixNano())
}

func (c *Connection) idleFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, c.lastSend.Load()))
}
