package chat

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"fullchat/internal/app/user"
)

var (
	alice = user.Identity{ID: "u-alice", Username: "alice"}
	bob   = user.Identity{ID: "u-bob", Username: "bob"}
	carol = user.Identity{ID: "u-carol", Username: "carol"}
)

func testConnection() *Connection {
	return newConnection(NewFakeTransport(), 8)
}

func TestRegistry_RegisterAssignsUniqueIDs(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	// Given two connections for the same identity
	first, second := testConnection(), testConnection()

	// When both are registered
	id1 := registry.Register(alice, first)
	id2 := registry.Register(alice, second)

	// Then they get distinct ids and are both owned by alice
	req.NotEmpty(id1)
	req.NotEqual(id1, id2)
	req.Equal(2, registry.Count())
	req.Len(slices.Collect(registry.ConnectionsFor(alice)), 2)
	req.Equal(alice, first.Identity())
}

func TestRegistry_RegisterSameConnectionTwice(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn := testConnection()

	id1 := registry.Register(alice, conn)
	id2 := registry.Register(alice, conn)

	req.Equal(id1, id2)
	req.Equal(1, registry.Count())
}

func TestRegistry_ConnectionIsNeverRebound(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	var changes atomic.Int32
	registry.OnChange(func() { changes.Add(1) })

	// Given a connection registered for alice and then unregistered
	conn := testConnection()
	id := registry.Register(alice, conn)
	registry.Unregister(id)
	req.Equal(int32(2), changes.Load())

	// When the same connection is registered again for bob
	again := registry.Register(bob, conn)

	// Then it keeps its id and identity and is not added back
	req.Equal(id, again)
	req.Equal(alice, conn.Identity())
	req.Zero(registry.Count())
	req.Empty(registry.Identities())
	req.Empty(slices.Collect(registry.ConnectionsFor(bob)))
	req.Equal(int32(2), changes.Load())

	// And unregistering it once more leaves nobody behind
	registry.Unregister(again)
	req.Empty(registry.Identities())
}

func TestRegistry_UnregisterIsIdempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	var changes atomic.Int32
	registry.OnChange(func() { changes.Add(1) })

	id := registry.Register(alice, testConnection())
	req.Equal(int32(1), changes.Load())

	// When the same id is unregistered twice, plus an unknown id
	registry.Unregister(id)
	registry.Unregister(id)
	registry.Unregister("conn_unknown")

	// Then only the effective removal notifies listeners
	req.Equal(int32(2), changes.Load())
	req.Zero(registry.Count())
	_, ok := registry.Lookup(id)
	req.False(ok)
	req.Empty(registry.Identities())
}

func TestRegistry_ConnectionsForIsRestartable(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	registry.Register(bob, testConnection())
	seq := registry.ConnectionsFor(bob)

	req.Len(slices.Collect(seq), 1)

	// a later registration is visible to the next iteration of the same sequence
	registry.Register(bob, testConnection())
	req.Len(slices.Collect(seq), 2)

	// and iteration can stop early
	for range seq {
		break
	}

	req.Empty(slices.Collect(registry.ConnectionsFor(carol)))
}

func TestRegistry_IdentitiesMatchLiveConnections(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	tracker := NewPresenceTracker(registry, newRecordingPublisher())
	identities := []user.Identity{alice, bob, carol}

	type entry struct {
		id       ConnectionID
		identity user.Identity
	}

	var (
		mu   sync.Mutex
		live []entry
		wg   sync.WaitGroup
	)

	// When many goroutines register and unregister concurrently
	for worker := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(uint64(worker), 42))

			for range 200 {
				if rng.IntN(3) > 0 {
					identity := identities[rng.IntN(len(identities))]
					id := registry.Register(identity, testConnection())

					mu.Lock()
					live = append(live, entry{id: id, identity: identity})
					mu.Unlock()
					continue
				}

				mu.Lock()
				if len(live) == 0 {
					mu.Unlock()
					continue
				}
				i := rng.IntN(len(live))
				victim := live[i]
				live = slices.Delete(live, i, i+1)
				mu.Unlock()

				registry.Unregister(victim.id)
			}
		}()
	}
	wg.Wait()

	// Then the identity set is exactly the owners of the remaining connections
	expected := lo.Uniq(lo.Map(live, func(e entry, _ int) string { return e.identity.ID }))
	req.ElementsMatch(expected, lo.Keys(registry.Identities()))
	req.Equal(len(live), registry.Count())

	// And so is the presence set the tracker derived from the same changes
	req.ElementsMatch(expected, tracker.CurrentSet().IDs())

	for _, identity := range identities {
		owned := lo.CountBy(live, func(e entry) bool { return e.identity.ID == identity.ID })
		req.Len(slices.Collect(registry.ConnectionsFor(identity)), owned, fmt.Sprintf("connections of %s", identity.Username))
	}
}
