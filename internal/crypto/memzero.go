package crypto

import (
	"crypto/subtle"
	"runtime"
)

// Zero overwrites b with zeros. Best effort: the write is kept live so the
// compiler cannot elide it.
//
//go:noinline
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(&b)
}

func constantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
