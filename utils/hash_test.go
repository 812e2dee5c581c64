package utils

import "testing"

func TestHashBytesKnownVector(t *testing.T) {
	// sha256("hello")
	const want = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got := HashBytes([]byte("hello")); got != want {
		t.Fatalf("HashBytes: got %s, want %s", got, want)
	}
}

func TestNormalizeDigest(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "abc123", "abc123"},
		{"uppercase", "ABC123", "abc123"},
		{"prefixed", "sha256:abc123", "abc123"},
		{"prefixed uppercase", "SHA256:ABC123", "abc123"},
		{"whitespace", "  abc123\n", "abc123"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeDigest(tc.in); got != tc.want {
				t.Fatalf("NormalizeDigest(%q): got %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestDigestsEqual(t *testing.T) {
	digest := HashBytes([]byte("doc"))

	if !DigestsEqual(digest, "sha256:"+digest) {
		t.Fatal("prefixed digest should compare equal")
	}
	if !DigestsEqual(digest, "SHA256:"+digest) {
		t.Fatal("case-insensitive prefix should compare equal")
	}
	if DigestsEqual(digest, HashBytes([]byte("other"))) {
		t.Fatal("different digests must not compare equal")
	}
	if DigestsEqual("", "") {
		t.Fatal("two empty digests must not compare equal")
	}
}
