package chat

import (
	"sync"

	"github.com/rs/zerolog"

	"fullchat/internal/app/user"
	"fullchat/internal/pkg/logx"
)

// Publisher is the part of the Hub the presence tracker talks to.
type Publisher interface {
	Publish(evt Event)
	SendTo(conn *Connection, evt Event) bool
}

// PresenceTracker derives the online set from the registry. An identity enters the set with
// its first connection and leaves it with its last, so extra devices and tab reloads do not
// produce presence events.
type PresenceTracker struct {
	// mu serializes recomputation, so published sets are in the order they were computed.
	mu sync.Mutex

	registry  *Registry
	publisher Publisher

	// current is the last computed set, keyed by identity id.
	current map[string]user.Identity

	logger zerolog.Logger
}

// NewPresenceTracker creates a tracker and subscribes it to registry changes.
func NewPresenceTracker(registry *Registry, publisher Publisher) *PresenceTracker {
	t := &PresenceTracker{
		registry:  registry,
		publisher: publisher,
		current:   make(map[string]user.Identity),
		logger:    logx.Component("PresenceTracker"),
	}

	registry.OnChange(t.OnRegistryChanged)

	return t
}

// CurrentSet returns the online set as last computed.
func (t *PresenceTracker) CurrentSet() PresenceSet {
	t.mu.Lock()
	defer t.mu.Unlock()

	return newPresenceSet(t.current)
}

// OnRegistryChanged recomputes the set and publishes PresenceChanged only when an identity
// entered or left it.
func (t *PresenceTracker) OnRegistryChanged() {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := t.registry.Identities()

	entered, left := 0, 0
	for id := range next {
		if _, ok := t.current[id]; !ok {
			entered++
		}
	}
	for id := range t.current {
		if _, ok := next[id]; !ok {
			left++
		}
	}

	if entered == 0 && left == 0 {
		return
	}

	t.current = next
	set := newPresenceSet(next)

	t.logger.Info().
		Int("entered", entered).
		Int("left", left).
		Int("online", len(set)).
		Msg("Presence changed.")

	t.publisher.Publish(PresenceChanged(set))
}

// Greet sends the current set to conn unless it already received one. It runs under the
// tracker lock so a greeting can never overtake a newer PresenceChanged.
func (t *PresenceTracker) Greet(conn *Connection) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if conn.greeted.Load() {
		return
	}

	t.publisher.SendTo(conn, PresenceChanged(newPresenceSet(t.current)))
}
