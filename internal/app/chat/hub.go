/*
Package chat contains the presence-aware broadcast core.

This file defines the Hub, which fans events out to every live connection. Each connection is
drained by its own delivery goroutine, so a slow or broken client never delays the others:
a full queue, a failed send or an idle timeout terminates only that connection.
*/
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fullchat/internal/app/user"
	"fullchat/internal/pkg/logx"
	"fullchat/internal/pkg/randx"
)

const (
	// DefaultQueueSize is the per-connection send queue bound.
	DefaultQueueSize = 256

	// DefaultIdleTimeout is how long a connection may go without a successful send.
	DefaultIdleTimeout = 75 * time.Second

	// DefaultWriteTimeout bounds a single send.
	DefaultWriteTimeout = 10 * time.Second
)

// HubOptions configures delivery limits. Zero values fall back to the defaults above.
type HubOptions struct {
	QueueSize    int
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
}

func (o HubOptions) withDefaults() HubOptions {
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	return o
}

// Hub delivers events to registered connections and anonymous observers.
type Hub struct {
	// mu serializes Publish and SendTo, which gives every connection the same event order.
	// It also protects observers and closed.
	mu sync.Mutex

	registry *Registry

	// observers receive broadcasts but are not part of the registry or the presence set.
	observers map[ConnectionID]*Connection

	closed bool

	opts HubOptions

	// wg tracks delivery goroutines.
	wg sync.WaitGroup

	logger zerolog.Logger
}

// NewHub creates a Hub that broadcasts to the connections of registry.
func NewHub(registry *Registry, opts HubOptions) *Hub {
	return &Hub{
		registry:  registry,
		observers: make(map[ConnectionID]*Connection),
		opts:      opts.withDefaults(),
		logger:    logx.Component("Hub"),
	}
}

// NewConnection wraps transport in a Connection with the configured queue bound.
func (h *Hub) NewConnection(transport Transport) *Connection {
	return newConnection(transport, h.opts.QueueSize)
}

// Publish enqueues evt for every connection registered at the time of the call and every
// observer. It never blocks on I/O. Connections whose queue is full are terminated, and
// terminated connections it comes across are pruned.
func (h *Hub) Publish(evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error().Err(err).Str("event", string(evt.Kind)).Msg("Error marshaling event for broadcast.")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	delivered := 0
	var dead []ConnectionID

	for conn := range h.registry.AllConnections() {
		if h.enqueueLocked(conn, evt.Kind, payload) {
			delivered++
		} else if !conn.Alive() {
			dead = append(dead, conn.ID())
		}
	}
	for id, conn := range h.observers {
		if h.enqueueLocked(conn, evt.Kind, payload) {
			delivered++
		} else if !conn.Alive() {
			delete(h.observers, id)
		}
	}

	h.logger.Debug().
		Str("event", string(evt.Kind)).
		Int("delivered", delivered).
		Int("dead", len(dead)).
		Msg("Event published.")

	if len(dead) > 0 {
		// Publish may run under the tracker lock, and unregistering notifies the tracker.
		h.wg.Add(1)
		go h.prune(dead)
	}
}

// prune unregisters connections found dead while publishing.
func (h *Hub) prune(ids []ConnectionID) {
	defer h.wg.Done()

	for _, id := range ids {
		h.registry.Unregister(id)
	}
}

// SendTo enqueues evt for a single connection, in order with published events.
func (h *Hub) SendTo(conn *Connection, evt Event) bool {
	payload, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error().Err(err).Str("event", string(evt.Kind)).Msg("Error marshaling event for connection.")
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	return h.enqueueLocked(conn, evt.Kind, payload)
}

func (h *Hub) enqueueLocked(conn *Connection, kind EventKind, payload []byte) bool {
	if !conn.enqueue(payload) {
		return false
	}
	if kind == EventPresenceChanged {
		conn.greeted.Store(true)
	}
	return true
}

// Start launches the delivery goroutine of a registered connection. After Shutdown the
// connection is unregistered and closed instead.
func (h *Hub) Start(conn *Connection) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		h.refuse(conn)
		h.registry.Unregister(conn.ID())
		return ErrServiceClosed
	}
	h.wg.Add(1)
	h.mu.Unlock()

	go h.deliver(conn)

	return nil
}

// Observe attaches an anonymous connection that receives broadcasts without being registered.
func (h *Hub) Observe(conn *Connection) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		h.refuse(conn)
		return ErrServiceClosed
	}

	conn.observer = true
	conn.bind(ConnectionID(randx.ObserverID()), user.Identity{})
	h.observers[conn.ID()] = conn
	observers := len(h.observers)

	h.wg.Add(1)
	h.mu.Unlock()

	go h.deliver(conn)

	h.logger.Info().
		Str("connection_id", string(conn.ID())).
		Int("observers", observers).
		Msg("Anonymous observer attached.")

	return nil
}

func (h *Hub) refuse(conn *Connection) {
	conn.terminate(ErrServiceClosed)
	if err := conn.transport.Close(closeReason(ErrServiceClosed)); err != nil {
		h.logger.Debug().Err(err).Msg("Transport close error.")
	}
}

// Disconnect terminates the connection with the given id and removes it immediately.
// Unknown ids are ignored.
func (h *Hub) Disconnect(id ConnectionID) {
	h.mu.Lock()
	observer, isObserver := h.observers[id]
	if isObserver {
		delete(h.observers, id)
	}
	h.mu.Unlock()

	if isObserver {
		observer.terminate(ErrConnectionClosed)
		return
	}

	if conn, ok := h.registry.Lookup(id); ok {
		conn.terminate(ErrConnectionClosed)
	}
	h.registry.Unregister(id)
}

// Observers returns the number of attached anonymous observers.
func (h *Hub) Observers() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.observers)
}

// Shutdown terminates every connection and waits for the delivery goroutines to exit.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true

	conns := make([]*Connection, 0, len(h.observers))
	for _, conn := range h.observers {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for conn := range h.registry.AllConnections() {
		conns = append(conns, conn)
	}

	h.logger.Info().Int("connections", len(conns)).Msg("Shutting down hub.")

	for _, conn := range conns {
		conn.terminate(ErrServiceClosed)
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info().Msg("Hub shutdown complete.")
		return nil
	case <-ctx.Done():
		h.logger.Warn().Msg("Hub shutdown timed out, some deliveries may still be running.")
		return ctx.Err()
	}
}

// deliver drains the connection's queue until it is terminated or the client goes away.
func (h *Hub) deliver(conn *Connection) {
	defer h.wg.Done()
	defer h.release(conn)

	ticker := time.NewTicker(h.heartbeatPeriod())
	defer ticker.Stop()

	for {
		select {
		case <-conn.Done():
			return

		case <-conn.transport.Closed():
			conn.terminate(ErrConnectionClosed)
			return

		case payload := <-conn.queue:
			if !conn.Alive() {
				return
			}
			if err := h.write(conn, payload); err != nil {
				conn.terminate(fmt.Errorf("%w: %v", ErrTransport, err))
				return
			}

		case now := <-ticker.C:
			if err := h.heartbeat(conn); err != nil {
				conn.terminate(fmt.Errorf("%w: %v", ErrTransport, err))
				return
			}
			if conn.idleFor(now) > h.opts.IdleTimeout {
				conn.terminate(ErrIdleTimeout)
				return
			}
		}
	}
}

func (h *Hub) write(conn *Connection, payload []byte) error {
	ctx, cancel := context.WithTimeout(conn.ctx, h.opts.WriteTimeout)
	defer cancel()

	if err := conn.transport.Send(ctx, payload); err != nil {
		return err
	}

	conn.touch()
	return nil
}

func (h *Hub) heartbeat(conn *Connection) error {
	pinger, ok := conn.transport.(Pinger)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(conn.ctx, h.opts.WriteTimeout)
	defer cancel()

	if err := pinger.Ping(ctx); err != nil {
		return err
	}

	conn.touch()
	return nil
}

func (h *Hub) heartbeatPeriod() time.Duration {
	period := h.opts.IdleTimeout * 9 / 10
	if period <= 0 {
		period = time.Millisecond
	}
	return period
}

// release removes a dead connection from the registry (or the observer set) and closes its
// transport. Removing it here, on the connection's own goroutine, keeps termination free of
// lock re-entry from inside Publish.
func (h *Hub) release(conn *Connection) {
	conn.terminate(ErrConnectionClosed)
	cause := conn.Err()

	if conn.observer {
		h.mu.Lock()
		delete(h.observers, conn.ID())
		h.mu.Unlock()
	} else {
		h.registry.Unregister(conn.ID())
	}

	if err := conn.transport.Close(closeReason(cause)); err != nil {
		conn.logger.Debug().Err(err).Msg("Transport close error.")
	}

	event := conn.logger.Info()
	if !errors.Is(cause, ErrConnectionClosed) && !errors.Is(cause, ErrServiceClosed) {
		event = conn.logger.Warn()
	}
	event.Err(cause).Msg("Connection released.")
}

func closeReason(cause error) string {
	switch {
	case errors.Is(cause, ErrSlowConsumer):
		return "too slow"
	case errors.Is(cause, ErrIdleTimeout):
		return "idle timeout"
	case errors.Is(cause, ErrServiceClosed):
		return "server shutting down"
	case errors.Is(cause, ErrTransport):
		return "send failed"
	default:
		return "bye"
	}
}
