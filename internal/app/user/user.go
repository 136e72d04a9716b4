/*
Package user contains the identity type shared by the chat core, the session layer and the store.

An Identity is what an authenticated session resolves to. It is bound to a connection when the
connection is registered and never changes afterwards.
*/
package user

// Identity is the authenticated reference to a chat participant.
// Fields use JSON tags because identities are pushed to clients in the "online users" list.
type Identity struct {

	// ID is the opaque, stable identifier of the user (a UUID string for stored accounts).
	ID string `json:"id"`

	// Username is the display name shown next to messages and in the online list.
	Username string `json:"username"`
}

// IsZero reports whether the identity is unset, which is how anonymous observers are represented.
func (i Identity) IsZero() bool {
	return i.ID == ""
}
