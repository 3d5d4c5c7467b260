package utils

import (
	"encoding/base64"
	"strings"
)

// ToURLBase64 encodes bytes with the URL safe alphabet and no padding, the format RenVM uses for
// hashes and byte parameters.
func ToURLBase64(bz []byte) string {
	return base64.RawURLEncoding.EncodeToString(bz)
}

// FromURLBase64 decodes URL safe base64 with or without padding.
func FromURLBase64(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
