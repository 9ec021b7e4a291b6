package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint derives the cache key for a query: a SHA-256 digest of
// the normalized query text plus the user/session scope. Identical
// queries from the same scope share a key; other scopes never collide.
func Fingerprint(text, userID, sessionID string) string {
	h := sha256.New()
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(sessionID))
	h.Write([]byte{0})
	h.Write([]byte(Normalize(text)))
	return "query:" + hex.EncodeToString(h.Sum(nil))
}

// Normalize lowercases text and collapses runs of whitespace so
// trivially different spellings of a query share a fingerprint.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
