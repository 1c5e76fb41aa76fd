package crypto

import (
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

// MaxOAEPMessageSize returns the largest plaintext RSA-OAEP-SHA-256 can
// carry under pub: k - 2*hLen - 2 bytes.
func MaxOAEPMessageSize(pub *rsa.PublicKey) int {
	return pub.Size() - 2*OAEPHashSize - 2
}

// Encrypt encrypts a short blob with RSA-OAEP-SHA-256 and an empty label.
func Encrypt(pub *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	if pub == nil {
		return nil, fmt.Errorf("encrypt: nil public key")
	}
	if len(plaintext) > MaxOAEPMessageSize(pub) {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrMessageTooLong, len(plaintext), MaxOAEPMessageSize(pub))
	}
	ct, err := rsa.EncryptOAEP(sha256.New(), random(), pub, plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	return ct, nil
}

// Decrypt reverses Encrypt. Every failure, including a wrong key or a
// tampered ciphertext, is reported as ErrDecrypt without further detail.
func Decrypt(priv *rsa.PrivateKey, ciphertext []byte) ([]byte, error) {
	if priv == nil || len(ciphertext) != priv.Size() {
		return nil, ErrDecrypt
	}
	pt, err := rsa.DecryptOAEP(sha256.New(), nil, priv, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return pt, nil
}

// SolveChallenge decrypts a base64 challenge and returns the base64 proof.
func SolveChallenge(priv *rsa.PrivateKey, challenge string) (string, error) {
	ct, err := FromTransportBase64(challenge)
	if err != nil {
		return "", ErrDecrypt
	}
	pt, err := Decrypt(priv, ct)
	if err != nil {
		return "", err
	}
	return ToBase64(pt), nil
}
