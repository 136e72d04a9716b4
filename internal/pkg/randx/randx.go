/*
Package randx provides functions for generating cryptographically secure random identifiers.

It is used for the ids of registered connections and anonymous observers. Message ids are
assigned by the database.
*/
package randx

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the total number of characters in the Base62 character set (62).
	Base62Len = int64(len(Base62Chars))

	// ConnectionIDLength is the length of the random part of a connection id.
	ConnectionIDLength = 12

	// ConnectionIDPrefix prefixes ids of registered connections.
	ConnectionIDPrefix = "conn_"

	// ObserverIDPrefix prefixes ids of anonymous observer connections.
	ObserverIDPrefix = "anon_"
)

// ConnectionID generates a random id for a registered connection.
func ConnectionID() string {
	return ConnectionIDPrefix + base62(ConnectionIDLength)
}

// ObserverID generates a random id for an anonymous observer connection.
func ObserverID() string {
	return ObserverIDPrefix + base62(ConnectionIDLength)
}

// base62 returns n random Base62 characters. If the system random source fails, it falls back
// to the characters of a fresh UUID so callers never have to handle an error.
func base62(n int) string {
	result := make([]byte, n)

	for i := range n {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return fallback(n)
		}
		result[i] = Base62Chars[num.Int64()]
	}

	return string(result)
}

func fallback(n int) string {
	raw := uuid.New()
	result := make([]byte, n)
	for i := range n {
		result[i] = Base62Chars[int64(raw[i%len(raw)])%Base62Len]
	}
	return string(result)
}
