package crypto

import (
	"crypto/sha512"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// WrappingKey is an AES-256 key derived from {secret, password, salt}. Its
// bytes never leave this package; it can only wrap and unwrap private keys.
type WrappingKey struct {
	key []byte
}

// DeriveWrappingKey derives the envelope key. secret and salt are standard
// base64 as distributed by the identity provider and the KMS; password is
// the user's plain text.
//
// The derivation input is TextEncode(atob(secret) + password) and the salt is
// TextEncode(atob(salt)), hashed with PBKDF2-HMAC-SHA-512 for
// PBKDF2Iterations rounds.
func DeriveWrappingKey(secret, password, salt string) (*WrappingKey, error) {
	return DeriveWrappingKeyWithIterations(secret, password, salt, PBKDF2Iterations)
}

// DeriveWrappingKeyWithIterations is DeriveWrappingKey with an explicit
// iteration count. Envelopes produced with a non-default count cannot be
// opened by other clients of the same KMS.
func DeriveWrappingKeyWithIterations(secret, password, salt string, iterations int) (*WrappingKey, error) {
	if iterations < 1 {
		return nil, fmt.Errorf("%w: iterations must be positive", ErrDerive)
	}

	secretBytes, err := FromTransportBase64(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: decode secret: %v", ErrDerive, err)
	}

	if salt == "" {
		return nil, fmt.Errorf("%w: empty salt", ErrDerive)
	}
	saltBytes, err := FromTransportBase64(salt)
	if err != nil {
		return nil, fmt.Errorf("%w: decode salt: %v", ErrDerive, err)
	}

	ikm := TextEncode(BytesToString(secretBytes) + password)
	key := pbkdf2.Key(ikm, binaryUTF8(saltBytes), iterations, WrappingKeySize, sha512.New)
	Zero(ikm)

	return &WrappingKey{key: key}, nil
}

// Equal reports whether two wrapping keys hold the same key material.
func (w *WrappingKey) Equal(other *WrappingKey) bool {
	if w == nil || other == nil {
		return w == other
	}
	return constantTimeEqual(w.key, other.key)
}

// Destroy zeroes the key material. The key is unusable afterwards.
func (w *WrappingKey) Destroy() {
	if w == nil {
		return
	}
	Zero(w.key)
	w.key = nil
}
