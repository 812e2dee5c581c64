package config

import (
	"fmt"
	"os"
	"strings"
)

// GetFrontendBaseURL returns the base URL used to build public verification
// and signing links. Injected here once instead of read ad hoc at call sites.
func GetFrontendBaseURL() string {
	base := strings.TrimRight(strings.TrimSpace(os.Getenv("FRONTEND_URL")), "/")
	if base == "" {
		base = "https://app.habitaflow.example"
	}
	return base
}

// BuildVerificationURL returns the public tamper-check URL for an inspection's
// shareable token.
func BuildVerificationURL(publicToken string) string {
	return fmt.Sprintf("%s/verify/%s", GetFrontendBaseURL(), publicToken)
}

// BuildSignatureURL returns the external signing URL for a link token.
func BuildSignatureURL(linkToken string) string {
	return fmt.Sprintf("%s/sign/%s", GetFrontendBaseURL(), linkToken)
}

// RequireExplicitFinalize disables the finalize-on-approve fallback: approve
// then fails unless Finalize was called first.
//
// Set via env:
// - REQUIRE_EXPLICIT_FINALIZE=true
func RequireExplicitFinalize() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("REQUIRE_EXPLICIT_FINALIZE")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
