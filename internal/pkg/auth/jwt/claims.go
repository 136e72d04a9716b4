package jwt

import (
	"github.com/golang-jwt/jwt"

	"fullchat/internal/app/user"
)

// Payload defines the structure of the JSON Web Token (JWT) claims for a chat session.
type Payload struct {
	// StandardClaims embeds the necessary JWT standard fields such as Exp (Expiration),
	// Iat (Issued At), and Iss (Issuer). These are crucial for token validity checks.
	jwt.StandardClaims `json:"standard_claims"`

	// ID is the account id of the session holder.
	ID string `json:"id"`

	// Username is the display name at the time the token was issued.
	Username string `json:"username"`
}

// NewPayload builds claims for identity. Standard claims are filled in by GenerateToken.
func NewPayload(identity user.Identity) *Payload {
	return &Payload{ID: identity.ID, Username: identity.Username}
}

// Identity returns the identity the token was issued for.
func (p *Payload) Identity() user.Identity {
	return user.Identity{ID: p.ID, Username: p.Username}
}
