package store

import (
	"context"
	"fmt"

	"fullchat/internal/app/chat"
	"fullchat/internal/app/user"
	"fullchat/internal/pkg/logx"
)

// Demo account created by SeedDemoData.
const (
	DemoUsername = "bot"
	DemoPassword = "secret"
)

// DemoMessages are posted by the demo account, in this order.
var DemoMessages = []string{"Hello World!", "Hello World, once again!", "Hello?"}

// Registrar creates accounts. It is satisfied by *account.Service.
type Registrar interface {
	Empty(ctx context.Context) (bool, error)
	Register(ctx context.Context, username, password string) (user.Identity, error)
}

// SeedDemoData creates the demo account and its messages when no account exists yet.
// It reports whether anything was written.
func SeedDemoData(ctx context.Context, accounts Registrar, messages chat.Store) (bool, error) {
	empty, err := accounts.Empty(ctx)
	if err != nil {
		return false, err
	}
	if !empty {
		return false, nil
	}

	bot, err := accounts.Register(ctx, DemoUsername, DemoPassword)
	if err != nil {
		return false, fmt.Errorf("seed demo user: %w", err)
	}

	for _, text := range DemoMessages {
		if _, err := messages.CreateMessage(ctx, bot.ID, text); err != nil {
			return false, fmt.Errorf("seed demo message: %w", err)
		}
	}

	logx.Info("Demo data seeded.", "username", DemoUsername, "messages", len(DemoMessages))

	return true, nil
}
