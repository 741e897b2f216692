// Package passhash hashes account passwords. The primary scheme prehashes
// the password with SHA-256 (base64-encoded) before bcrypt, so passwords
// longer than bcrypt's 72-byte input limit still hash fully instead of
// being silently truncated. Stored hashes carry a scheme prefix;
// verification also accepts prefix-less plain bcrypt hashes issued before
// the prehash scheme existed.
package passhash

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const sha256Prefix = "$sha256-bcrypt$"

// Hash derives a storable hash for a password using the primary scheme.
func Hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword(prehash(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return sha256Prefix + string(h), nil
}

// Verify reports whether password matches the stored hash. The primary
// scheme is tried first; anything without the scheme prefix is treated as a
// legacy plain bcrypt hash.
func Verify(password, stored string) bool {
	stored = strings.TrimSpace(stored)
	if stored == "" {
		return false
	}
	if rest, ok := strings.CutPrefix(stored, sha256Prefix); ok {
		return bcrypt.CompareHashAndPassword([]byte(rest), prehash(password)) == nil
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
}

// prehash maps a password of any length into 44 base64 bytes, safely under
// bcrypt's 72-byte limit.
func prehash(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}
