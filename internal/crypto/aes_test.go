package crypto

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
)

func randomBytes(t testing.TB, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatal(err)
	}
	return b
}

func TestSealOpenAESGCM_RoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", []byte{}},
		{"json", []byte(`{"kty":"RSA","n":"AQAB"}`)},
		{"binary", []byte{0x00, 0xff, 0x7f, 0x80}},
		{"large", make([]byte, 10000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := randomBytes(t, AESKeySize)
			nonce := randomBytes(t, AESNonceSize)

			ct, err := sealAESGCM(key, nonce, tt.plaintext)
			if err != nil {
				t.Fatalf("sealAESGCM() error = %v", err)
			}
			if len(ct) != len(tt.plaintext)+AESTagSize {
				t.Errorf("ciphertext length = %d, want %d", len(ct), len(tt.plaintext)+AESTagSize)
			}

			pt, err := openAESGCM(key, nonce, ct)
			if err != nil {
				t.Fatalf("openAESGCM() error = %v", err)
			}
			if !bytes.Equal(pt, tt.plaintext) {
				t.Errorf("opened = %v, want %v", pt, tt.plaintext)
			}
		})
	}
}

func TestSealAESGCM_InvalidSizes(t *testing.T) {
	tests := []struct {
		name    string
		key     int
		nonce   int
		wantErr error
	}{
		{"empty key", 0, AESNonceSize, ErrInvalidKeySize},
		{"aes-128 key", 16, AESNonceSize, ErrInvalidKeySize},
		{"long key", 64, AESNonceSize, ErrInvalidKeySize},
		{"short nonce", AESKeySize, 8, ErrInvalidNonceSize},
		{"long nonce", AESKeySize, 16, ErrInvalidNonceSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sealAESGCM(make([]byte, tt.key), make([]byte, tt.nonce), []byte("x"))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestOpenAESGCM_Failures(t *testing.T) {
	key := randomBytes(t, AESKeySize)
	nonce := randomBytes(t, AESNonceSize)
	ct, err := sealAESGCM(key, nonce, []byte("sensitive data"))
	if err != nil {
		t.Fatal(err)
	}

	t.Run("tampered", func(t *testing.T) {
		bad := append([]byte(nil), ct...)
		bad[len(bad)/2] ^= 0x01
		if _, err := openAESGCM(key, nonce, bad); !errors.Is(err, ErrDecryptionFailed) {
			t.Errorf("expected ErrDecryptionFailed, got %v", err)
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		other := randomBytes(t, AESKeySize)
		if _, err := openAESGCM(other, nonce, ct); !errors.Is(err, ErrDecryptionFailed) {
			t.Errorf("expected ErrDecryptionFailed, got %v", err)
		}
	})

	t.Run("wrong nonce", func(t *testing.T) {
		other := randomBytes(t, AESNonceSize)
		if _, err := openAESGCM(key, other, ct); !errors.Is(err, ErrDecryptionFailed) {
			t.Errorf("expected ErrDecryptionFailed, got %v", err)
		}
	})

	t.Run("too short", func(t *testing.T) {
		if _, err := openAESGCM(key, nonce, ct[:AESTagSize-1]); err == nil {
			t.Error("expected error for short ciphertext")
		}
	})
}

func BenchmarkSealAESGCM(b *testing.B) {
	key := randomBytes(b, AESKeySize)
	nonce := randomBytes(b, AESNonceSize)
	plaintext := randomBytes(b, 3300)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = sealAESGCM(key, nonce, plaintext)
	}
}
