package utils

import (
	"bytes"
	"encoding/base64"
	"strings"

	"github.com/disintegration/imaging"
)

// DecodeSignatureImage decodes a captured signature blob. Clients send either
// a bare base64 string or a data URL ("data:image/png;base64,...").
func DecodeSignatureImage(blob string) ([]byte, error) {
	blob = strings.TrimSpace(blob)
	if blob == "" {
		return nil, InvalidInputError("signature image is empty")
	}
	if idx := strings.Index(blob, ";base64,"); idx >= 0 {
		blob = blob[idx+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(blob)
	}
	if err != nil {
		return nil, InvalidInputError("signature image is not valid base64")
	}
	return data, nil
}

// NormalizeSignatureImage re-encodes a signature image as a fixed-width PNG.
// Rendered documents embed this normalized form, which keeps the PDF bytes
// independent of whatever capture resolution the client used.
func NormalizeSignatureImage(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, InvalidInputError("signature image cannot be decoded: %v", err)
	}
	normalized := imaging.Resize(img, 400, 0, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, normalized, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
