package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// SessionCookieName is the single HTTP-only cookie carrying the raw session
// token. The raw value never appears in a JSON body.
const SessionCookieName = "pid_session"

// NewRawToken returns a fresh 256-bit session token, hex-encoded.
func NewRawToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// NewNonce returns a fresh 128-bit challenge nonce, hex-encoded.
func NewNonce() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// HashToken is the one-way hash under which bearer tokens are persisted
// and looked up.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
