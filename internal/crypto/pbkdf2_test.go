package crypto

import (
	"bytes"
	"crypto/sha512"
	"errors"
	"testing"

	"golang.org/x/crypto/pbkdf2"
)

func TestDeriveWrappingKey_Deterministic(t *testing.T) {
	a := testWrappingKey(t, "correct horse", "s0m3salt")
	b := testWrappingKey(t, "correct horse", "s0m3salt")

	if !a.Equal(b) {
		t.Error("identical inputs produced different keys")
	}
	if len(a.key) != WrappingKeySize {
		t.Errorf("key length = %d, want %d", len(a.key), WrappingKeySize)
	}
}

func TestDeriveWrappingKey_InputsMatter(t *testing.T) {
	base := testWrappingKey(t, "correct horse", "s0m3salt")

	tests := []struct {
		name     string
		secret   string
		password string
		salt     string
	}{
		{"other password", testSecret, "battery staple", "s0m3salt"},
		{"other salt", testSecret, "correct horse", "0th3rsal"},
		{"other secret", "c2VjcmV0", "correct horse", "s0m3salt"},
		{"empty password", testSecret, "", "s0m3salt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wk, err := DeriveWrappingKey(tt.secret, tt.password, tt.salt)
			if err != nil {
				t.Fatalf("DeriveWrappingKey() error = %v", err)
			}
			if wk.Equal(base) {
				t.Error("different inputs produced the same key")
			}
		})
	}
}

func TestDeriveWrappingKey_KnownInputs(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		password string
		salt     string
		ikm      []byte
		rawSalt  []byte
	}{
		{
			name:     "ascii",
			secret:   "c2VjcmV0", // "secret"
			password: "pw",
			salt:     "c2FsdA==", // "salt"
			ikm:      []byte("secretpw"),
			rawSalt:  []byte("salt"),
		},
		{
			name:     "high bytes are utf-8 expanded",
			secret:   "6Q==", // 0xe9
			password: "pw",
			salt:     "/w==", // 0xff
			ikm:      []byte{0xc3, 0xa9, 'p', 'w'},
			rawSalt:  []byte{0xc3, 0xbf},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wk, err := DeriveWrappingKey(tt.secret, tt.password, tt.salt)
			if err != nil {
				t.Fatalf("DeriveWrappingKey() error = %v", err)
			}
			want := pbkdf2.Key(tt.ikm, tt.rawSalt, PBKDF2Iterations, WrappingKeySize, sha512.New)
			if !bytes.Equal(wk.key, want) {
				t.Errorf("key = %x, want %x", wk.key, want)
			}
		})
	}
}

func TestDeriveWrappingKey_SaltWithSpaces(t *testing.T) {
	// 0xfb 0xef 0xbe encodes as "++++".
	clean := testWrappingKey(t, "pw", "++++")
	damaged := testWrappingKey(t, "pw", "    ")

	if !clean.Equal(damaged) {
		t.Error("space-damaged salt derived a different key")
	}
}

func TestDeriveWrappingKey_Errors(t *testing.T) {
	tests := []struct {
		name       string
		secret     string
		salt       string
		iterations int
	}{
		{"empty salt", testSecret, "", PBKDF2Iterations},
		{"malformed salt", testSecret, "s0m3salt!", PBKDF2Iterations},
		{"malformed secret", "not*base64", "s0m3salt", PBKDF2Iterations},
		{"zero iterations", testSecret, "s0m3salt", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DeriveWrappingKeyWithIterations(tt.secret, "pw", tt.salt, tt.iterations)
			if !errors.Is(err, ErrDerive) {
				t.Errorf("expected ErrDerive, got %v", err)
			}
		})
	}
}

func TestWrappingKey_Destroy(t *testing.T) {
	wk := testWrappingKey(t, "pw", "s0m3salt")
	material := wk.key

	wk.Destroy()

	if wk.key != nil {
		t.Error("key still set after Destroy")
	}
	if !bytes.Equal(material, make([]byte, WrappingKeySize)) {
		t.Error("key material not zeroed")
	}

	var nilKey *WrappingKey
	nilKey.Destroy()
}

func BenchmarkDeriveWrappingKey(b *testing.B) {
	for i := 0; i < b.N; i++ {
		if _, err := DeriveWrappingKey(testSecret, "correct horse", "s0m3salt"); err != nil {
			b.Fatal(err)
		}
	}
}
