package utils

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/png"
	"testing"
)

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 4))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeSignatureImage(t *testing.T) {
	raw := tinyPNG(t)
	encoded := base64.StdEncoding.EncodeToString(raw)

	cases := []struct {
		name string
		in   string
	}{
		{"bare base64", encoded},
		{"data url", "data:image/png;base64," + encoded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeSignatureImage(tc.in)
			if err != nil {
				t.Fatalf("DecodeSignatureImage: %v", err)
			}
			if !bytes.Equal(got, raw) {
				t.Fatal("decoded bytes differ from original")
			}
		})
	}
}

func TestDecodeSignatureImageRejectsJunk(t *testing.T) {
	if _, err := DecodeSignatureImage(""); err == nil {
		t.Fatal("empty blob must be rejected")
	}
	if _, err := DecodeSignatureImage("not!!base64##"); err == nil {
		t.Fatal("non-base64 blob must be rejected")
	}
}

func TestNormalizeSignatureImageIsDeterministic(t *testing.T) {
	raw := tinyPNG(t)

	first, err := NormalizeSignatureImage(raw)
	if err != nil {
		t.Fatalf("NormalizeSignatureImage: %v", err)
	}
	second, err := NormalizeSignatureImage(raw)
	if err != nil {
		t.Fatalf("NormalizeSignatureImage: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("normalization must be byte-deterministic for identical input")
	}

	cfg, err := png.DecodeConfig(bytes.NewReader(first))
	if err != nil {
		t.Fatalf("normalized output is not a PNG: %v", err)
	}
	if cfg.Width != 400 {
		t.Fatalf("normalized width = %d, want 400", cfg.Width)
	}
}
