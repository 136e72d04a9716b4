package jwt

import (
	"context"

	"fullchat/internal/app/user"
	"fullchat/internal/pkg/logx"
)

// IdentityLookup resolves an account id to its current identity.
type IdentityLookup interface {
	Lookup(ctx context.Context, id string) (identity user.Identity, ok bool, err error)
}

// Verifier resolves session tokens to identities for the chat core.
type Verifier struct {
	secretKey string
	accounts  IdentityLookup
}

// NewVerifier returns a Verifier for tokens signed with secretKey. When accounts is not nil,
// the token's user must still exist and its current username is used.
func NewVerifier(secretKey string, accounts IdentityLookup) *Verifier {
	return &Verifier{secretKey: secretKey, accounts: accounts}
}

// Verify implements chat.AuthVerifier. Invalid or expired tokens are reported with ok == false.
func (v *Verifier) Verify(ctx context.Context, sessionToken string) (user.Identity, bool, error) {
	payload, err := ParseToken(sessionToken, v.secretKey)
	if err != nil {
		logx.Info("Session token rejected", "error", err)
		return user.Identity{}, false, nil
	}

	if v.accounts == nil {
		return payload.Identity(), true, nil
	}

	return v.accounts.Lookup(ctx, payload.ID)
}
