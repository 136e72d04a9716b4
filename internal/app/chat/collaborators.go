//go:generate go run go.uber.org/mock/mockgen -source=collaborators.go -destination=../../mocks/mock_chat.go -package=mocks
package chat

import (
	"context"

	"fullchat/internal/app/user"
)

// AuthVerifier resolves a session token to the identity it was issued for.
// A token that does not resolve returns ok == false with a nil error; err is reserved for lookup failures.
type AuthVerifier interface {
	Verify(ctx context.Context, sessionToken string) (identity user.Identity, ok bool, err error)
}

// Store persists and lists chat messages.
// CreateMessage fails with *ValidationError on empty or oversized text and with *StoreError when
// the message could not be persisted.
type Store interface {
	CreateMessage(ctx context.Context, authorID string, text string) (Message, error)
	ListMessages(ctx context.Context) ([]Message, error)
}
