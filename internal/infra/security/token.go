package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const sessionTokenEntropy = 32

// NewSessionToken returns an opaque bearer token carrying 256 random bits.
// Only HashToken of it is ever persisted.
func NewSessionToken() (string, error) {
	var raw [sessionTokenEntropy]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("read random session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// HashToken is the hex SHA-256 digest used as the session store key.
func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}

// NewSecurityStamp returns 32 upper-case hex characters. Rotating the stamp invalidates
// outstanding purpose tokens and marks credential changes.
func NewSecurityStamp() string {
	id := uuid.New()
	return strings.ToUpper(hex.EncodeToString(id[:]))
}
