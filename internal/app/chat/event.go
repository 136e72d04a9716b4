/*
Package chat contains the presence-aware broadcast core: the connection registry, the presence
tracker, the broadcast hub, the session gate and the Service facade that drives them.

This file defines the values that travel through the core: messages, presence sets and the
events pushed to clients.
*/
package chat

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/samber/lo"

	"fullchat/internal/app/user"
)

// EventKind names an event on the wire. The values are the event names clients listen for.
type EventKind string

const (
	// EventMessageCreated carries a newly persisted Message.
	EventMessageCreated EventKind = "new message"

	// EventPresenceChanged carries the full list of online identities.
	EventPresenceChanged EventKind = "online users"

	// EventError is sent to a single connection when one of its own submissions failed.
	EventError EventKind = "error"
)

// Message is an immutable chat message as created by the Store.
type Message struct {
	ID        string        `json:"id"`
	Author    user.Identity `json:"user"`
	Text      string        `json:"text"`
	CreatedAt time.Time     `json:"createdAt"`
}

// PresenceSet is the set of distinct identities with at least one live connection,
// ordered by username and then id.
type PresenceSet []user.Identity

// newPresenceSet builds an ordered PresenceSet from identities keyed by id.
func newPresenceSet(members map[string]user.Identity) PresenceSet {
	set := PresenceSet(lo.Values(members))
	slices.SortFunc(set, func(a, b user.Identity) int {
		return cmp.Or(cmp.Compare(a.Username, b.Username), cmp.Compare(a.ID, b.ID))
	})
	return set
}

// Contains reports whether the identity with the given id is online.
func (p PresenceSet) Contains(id string) bool {
	return slices.ContainsFunc(p, func(i user.Identity) bool { return i.ID == id })
}

// IDs returns the member ids in set order.
func (p PresenceSet) IDs() []string {
	return lo.Map(p, func(i user.Identity, _ int) string { return i.ID })
}

// MarshalJSON always encodes an array, never null.
func (p PresenceSet) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]user.Identity(p))
}

// ErrorPayload is the data of an EventError frame.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Event is a tagged variant over the frames the hub delivers.
// Only the field matching Kind is meaningful.
type Event struct {
	Kind     EventKind
	Message  Message
	Presence PresenceSet
	Failure  ErrorPayload
}

// MessageCreated builds the event announcing a persisted message.
func MessageCreated(msg Message) Event {
	return Event{Kind: EventMessageCreated, Message: msg}
}

// PresenceChanged builds the event announcing the current online list.
func PresenceChanged(set PresenceSet) Event {
	return Event{Kind: EventPresenceChanged, Presence: set}
}

// Failure builds the error event sent back to a single submitter.
func Failure(code int, message string) Event {
	return Event{Kind: EventError, Failure: ErrorPayload{Code: code, Message: message}}
}

type envelope struct {
	Event EventKind `json:"event"`
	Data  any       `json:"data"`
}

// MarshalJSON encodes the event as {"event": kind, "data": payload}.
func (e Event) MarshalJSON() ([]byte, error) {
	var data any

	switch e.Kind {
	case EventMessageCreated:
		data = e.Message
	case EventPresenceChanged:
		data = e.Presence
	case EventError:
		data = e.Failure
	default:
		return nil, fmt.Errorf("unknown event kind %q", e.Kind)
	}

	return json.Marshal(envelope{Event: e.Kind, Data: data})
}
