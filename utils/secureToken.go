package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// GenerateLinkToken returns a URL-safe capability token for external signing
// links. 32 random bytes keeps the token unguessable.
func GenerateLinkToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// tokenGroupAlphabet deliberately omits ambiguous characters (0/O, 1/I/L)
// because inspection tokens are read aloud and typed by hand.
const tokenGroupAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

func randomTokenGroup(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, v := range b {
		out[i] = tokenGroupAlphabet[int(v)%len(tokenGroupAlphabet)]
	}
	return string(out), nil
}

// GeneratePublicToken builds the human-shareable inspection token:
// HAB-<TYPE>-<YEAR>-XXXX-XXXX. The random groups make it non-sequential and
// underivable from the numeric primary key.
func GeneratePublicToken(inspectionType string, at time.Time) (string, error) {
	g1, err := randomTokenGroup(4)
	if err != nil {
		return "", err
	}
	g2, err := randomTokenGroup(4)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("HAB-%s-%d-%s-%s", inspectionType, at.Year(), g1, g2), nil
}
