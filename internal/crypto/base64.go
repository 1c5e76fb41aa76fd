package crypto

import (
	"encoding/base64"
	"strings"
	"unicode"
)

// ToBase64 encodes bytes to standard base64 with padding.
// All protocol values exchanged with the KMS use this form.
func ToBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// FromBase64 decodes standard base64 (with padding) to bytes.
func FromBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// RestorePlus undoes form-decoding damage on base64 text: a '+' that
// travelled unescaped through an urlencoded body arrives as a space.
// Every whitespace rune is mapped back to '+'.
func RestorePlus(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '+'
		}
		return r
	}, s)
}

// FromTransportBase64 restores '+' characters and decodes standard base64.
func FromTransportBase64(s string) ([]byte, error) {
	return FromBase64(RestorePlus(s))
}
