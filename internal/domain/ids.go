package domain

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/google/uuid"
)

// Session code alphabet omits O, 0, I and 1 to stay human-typeable.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeLength = 6

// NewSessionCode generates a random short code. Uniqueness among live
// sessions is the store's responsibility.
func NewSessionCode() string {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf)
}

// NewHostToken generates the opaque capability token that authenticates
// the session host.
func NewHostToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// NewPlayerID generates an identifier for a player, observer or connection.
func NewPlayerID() string {
	return uuid.NewString()
}
