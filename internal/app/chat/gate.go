package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"fullchat/internal/app/user"
	"fullchat/internal/pkg/logx"
)

// AnonymousPolicy decides what happens to a connection that carries no valid session.
type AnonymousPolicy string

const (
	// AnonymousObserve attaches unauthenticated connections as observers: they receive
	// broadcasts but never appear in the registry or the presence set.
	AnonymousObserve AnonymousPolicy = "observe"

	// AnonymousReject closes unauthenticated connections.
	AnonymousReject AnonymousPolicy = "reject"
)

// ParseAnonymousPolicy parses a policy name. An empty name selects AnonymousObserve.
func ParseAnonymousPolicy(name string) (AnonymousPolicy, error) {
	switch p := AnonymousPolicy(strings.ToLower(strings.TrimSpace(name))); p {
	case "":
		return AnonymousObserve, nil
	case AnonymousObserve, AnonymousReject:
		return p, nil
	default:
		return "", fmt.Errorf("unknown anonymous policy %q", name)
	}
}

// ConnectRequest describes an inbound connection before it is bound to an identity.
type ConnectRequest struct {
	SessionToken string
	RemoteAddr   string
	Transport    Transport
}

// SessionGate binds inbound connections to identities through the AuthVerifier.
type SessionGate struct {
	verifier AuthVerifier
	logger   zerolog.Logger
}

// NewSessionGate returns a gate backed by verifier.
func NewSessionGate(verifier AuthVerifier) *SessionGate {
	return &SessionGate{
		verifier: verifier,
		logger:   logx.Component("SessionGate"),
	}
}

// Authenticate resolves the request's session token. A missing or unknown token yields
// ErrUnauthenticated; a verifier failure is wrapped and returned as is.
func (g *SessionGate) Authenticate(ctx context.Context, req ConnectRequest) (user.Identity, error) {
	token := strings.TrimSpace(req.SessionToken)
	if token == "" {
		g.logger.Debug().Str("remote_addr", req.RemoteAddr).Msg("Connection without session token.")
		return user.Identity{}, ErrUnauthenticated
	}

	identity, ok, err := g.verifier.Verify(ctx, token)
	if err != nil {
		g.logger.Error().Err(err).Str("remote_addr", req.RemoteAddr).Msg("Session verification failed.")
		return user.Identity{}, fmt.Errorf("verify session: %w", err)
	}

	if !ok || identity.IsZero() {
		g.logger.Info().Str("remote_addr", req.RemoteAddr).Msg("Connection with unknown session token.")
		return user.Identity{}, ErrUnauthenticated
	}

	return identity, nil
}
