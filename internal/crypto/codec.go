package crypto

import (
	"unicode/utf8"
)

// BytesToString converts bytes to a binary string in which every byte
// becomes the code point of the same value (U+0000..U+00FF).
// Empty input yields "".
func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

// StringToBytes is the inverse of BytesToString. It returns nil for empty
// input and for strings containing invalid UTF-8 or code points above U+00FF.
func StringToBytes(s string) []byte {
	if s == "" || !utf8.ValidString(s) {
		return nil
	}
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xff {
			return nil
		}
		out = append(out, byte(r))
	}
	return out
}

// TextEncode returns the UTF-8 encoding of s. Applied to a binary string,
// bytes >= 0x80 expand to two bytes, matching a browser TextEncoder fed
// with the output of atob.
func TextEncode(s string) []byte {
	return []byte(s)
}

// binaryUTF8 re-encodes raw bytes the way the web client prepares
// derivation inputs: atob followed by TextEncoder.
func binaryUTF8(b []byte) []byte {
	return TextEncode(BytesToString(b))
}
