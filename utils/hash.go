package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashBytes returns the hex-encoded sha256 digest of b. Document integrity
// checks compare these digests, so every code path that hashes rendered bytes
// must go through this function.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// NormalizeDigest lowercases a digest and strips an optional "sha256:" prefix
// so digests pasted by third parties compare cleanly.
func NormalizeDigest(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	return strings.TrimPrefix(s, "sha256:")
}

// DigestsEqual compares two digests after normalization.
func DigestsEqual(a, b string) bool {
	return NormalizeDigest(a) != "" && NormalizeDigest(a) == NormalizeDigest(b)
}
