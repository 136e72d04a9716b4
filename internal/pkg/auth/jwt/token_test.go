package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fullchat/internal/app/user"
)

const testSecret = "test-secret"

var alice = user.Identity{ID: "6f1c5a0e-8a0d-4a9e-9d49-1f0b7c7f2a11", Username: "alice"}

func TestToken_RoundTrip(t *testing.T) {
	req := require.New(t)

	token, err := GenerateToken(NewPayload(alice), testSecret, time.Hour)
	req.NoError(err)

	payload, err := ParseToken(token, testSecret)
	req.NoError(err)
	req.Equal(alice, payload.Identity())
	req.Equal(TokenIssuer, payload.Issuer)
	req.Equal(alice.ID, payload.Subject)
}

func TestToken_Rejections(t *testing.T) {
	valid, err := GenerateToken(NewPayload(alice), testSecret, time.Hour)
	require.NoError(t, err)

	expired, err := GenerateToken(NewPayload(alice), testSecret, -time.Minute)
	require.NoError(t, err)

	anonymous, err := GenerateToken(&Payload{Username: "nobody"}, testSecret, time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name   string
		token  string
		secret string
	}{
		{name: "wrong secret", token: valid, secret: "other-secret"},
		{name: "expired", token: expired, secret: testSecret},
		{name: "no user id", token: anonymous, secret: testSecret},
		{name: "garbage", token: "not-a-token", secret: testSecret},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload, err := ParseToken(tc.token, tc.secret)

			require.Error(t, err)
			require.Nil(t, payload)
		})
	}
}
