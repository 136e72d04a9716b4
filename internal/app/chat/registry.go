/*
Package chat contains the presence-aware broadcast core.

This file defines the Registry, the single owner of live connection membership. All mutations
are serialized by its mutex; listeners are notified after the lock is released.
*/
package chat

import (
	"iter"
	"maps"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"fullchat/internal/app/user"
	"fullchat/internal/pkg/logx"
	"fullchat/internal/pkg/randx"
)

// Registry tracks live connections keyed by id and indexed by user identity.
type Registry struct {
	// mu protects every map below and the listener list.
	mu sync.RWMutex

	// conns holds every registered connection.
	conns map[ConnectionID]*Connection

	// byUser indexes connections by identity id.
	byUser map[string]map[ConnectionID]*Connection

	// listeners run after each membership change, outside the lock.
	listeners []func()

	logger zerolog.Logger
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[ConnectionID]*Connection),
		byUser: make(map[string]map[ConnectionID]*Connection),
		logger: logx.Component("Registry"),
	}
}

// OnChange adds a listener invoked after every Register and every effective Unregister.
func (r *Registry) OnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.listeners = append(r.listeners, fn)
}

// Register adds a live connection for identity and returns its id. Several connections per
// identity are allowed. A connection is bound to one id and one identity for its whole life:
// registering it again returns its existing id and adds nothing, whether it is still
// registered or was unregistered in the meantime.
func (r *Registry) Register(identity user.Identity, conn *Connection) ConnectionID {
	r.mu.Lock()

	if id := conn.ID(); id != "" {
		_, registered := r.conns[id]
		r.mu.Unlock()

		if !registered {
			r.logger.Warn().
				Str("connection_id", string(id)).
				Str("user_id", identity.ID).
				Msg("Refusing to register a connection that was already bound.")
		}
		return id
	}

	conn.bind(r.newIDLocked(), identity)
	id := conn.ID()

	r.conns[id] = conn

	owned, ok := r.byUser[identity.ID]
	if !ok {
		owned = make(map[ConnectionID]*Connection)
		r.byUser[identity.ID] = owned
	}
	owned[id] = conn

	userConns := len(owned)
	total := len(r.conns)
	listeners := slices.Clone(r.listeners)

	r.mu.Unlock()

	r.logger.Info().
		Str("connection_id", string(id)).
		Str("user_id", identity.ID).
		Int("user_connections", userConns).
		Int("total_connections", total).
		Msg("Connection registered.")

	notify(listeners)

	return id
}

// Unregister removes the connection if present. Removing an unknown or already removed
// connection is a no-op.
func (r *Registry) Unregister(id ConnectionID) {
	r.mu.Lock()

	conn, ok := r.conns[id]
	if !ok {
		r.mu.Unlock()
		return
	}

	delete(r.conns, id)

	userID := conn.Identity().ID
	owned := r.byUser[userID]
	delete(owned, id)
	userConns := len(owned)
	if userConns == 0 {
		delete(r.byUser, userID)
	}

	total := len(r.conns)
	listeners := slices.Clone(r.listeners)

	r.mu.Unlock()

	r.logger.Info().
		Str("connection_id", string(id)).
		Str("user_id", userID).
		Int("user_connections", userConns).
		Int("total_connections", total).
		Msg("Connection unregistered.")

	notify(listeners)
}

// Lookup returns the registered connection with the given id.
func (r *Registry) Lookup(id ConnectionID) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[id]
	return conn, ok
}

// ConnectionsFor returns the connections owned by identity. Each iteration takes a fresh
// snapshot, so the sequence is finite and can be ranged over again.
func (r *Registry) ConnectionsFor(identity user.Identity) iter.Seq[*Connection] {
	return func(yield func(*Connection) bool) {
		r.mu.RLock()
		snapshot := slices.Collect(maps.Values(r.byUser[identity.ID]))
		r.mu.RUnlock()

		for _, conn := range snapshot {
			if !yield(conn) {
				return
			}
		}
	}
}

// AllConnections returns every registered connection as of the moment iteration starts.
func (r *Registry) AllConnections() iter.Seq[*Connection] {
	return func(yield func(*Connection) bool) {
		r.mu.RLock()
		snapshot := slices.Collect(maps.Values(r.conns))
		r.mu.RUnlock()

		for _, conn := range snapshot {
			if !yield(conn) {
				return
			}
		}
	}
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}

// Identities returns the distinct identities with at least one registered connection, keyed by id.
func (r *Registry) Identities() map[string]user.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identities := make(map[string]user.Identity, len(r.byUser))
	for userID, owned := range r.byUser {
		for _, conn := range owned {
			identities[userID] = conn.Identity()
			break
		}
	}
	return identities
}

// newIDLocked returns an id not currently in use. Caller holds r.mu.
func (r *Registry) newIDLocked() ConnectionID {
	for {
		id := ConnectionID(randx.ConnectionID())
		if _, taken := r.conns[id]; !taken {
			return id
		}
	}
}

func notify(listeners []func()) {
	for _, fn := range listeners {
		fn()
	}
}
