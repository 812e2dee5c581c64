package utils

import (
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestGeneratePublicTokenFormat(t *testing.T) {
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	token, err := GeneratePublicToken("MOVEIN", at)
	if err != nil {
		t.Fatalf("GeneratePublicToken: %v", err)
	}

	re := regexp.MustCompile(`^HAB-MOVEIN-2026-[A-Z2-9]{4}-[A-Z2-9]{4}$`)
	if !re.MatchString(token) {
		t.Fatalf("token %q does not match expected format", token)
	}

	// Groups only use the ambiguity-free alphabet.
	groups := strings.Split(token, "-")
	for _, g := range groups[3:] {
		for _, r := range g {
			if !strings.ContainsRune(tokenGroupAlphabet, r) {
				t.Fatalf("token group %q contains %q, outside the allowed alphabet", g, r)
			}
		}
	}
}

func TestGeneratePublicTokenUniqueness(t *testing.T) {
	at := time.Now()
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		token, err := GeneratePublicToken("MOVEOUT", at)
		if err != nil {
			t.Fatalf("GeneratePublicToken: %v", err)
		}
		if seen[token] {
			t.Fatalf("duplicate token generated: %s", token)
		}
		seen[token] = true
	}
}

func TestGenerateLinkToken(t *testing.T) {
	a, err := GenerateLinkToken()
	if err != nil {
		t.Fatalf("GenerateLinkToken: %v", err)
	}
	b, err := GenerateLinkToken()
	if err != nil {
		t.Fatalf("GenerateLinkToken: %v", err)
	}
	if a == b {
		t.Fatal("two link tokens must not collide")
	}
	// 32 bytes base64url, unpadded.
	if len(a) != 43 {
		t.Fatalf("unexpected token length %d for %q", len(a), a)
	}
	if strings.ContainsAny(a, "+/=") {
		t.Fatalf("token %q is not URL-safe", a)
	}
}
