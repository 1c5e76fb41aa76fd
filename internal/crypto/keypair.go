package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"

	jose "github.com/go-jose/go-jose/v4"
)

// randReader is the random source used for key generation and IVs.
// It defaults to nil (which uses crypto/rand) but can be overridden for testing.
var randReader io.Reader

func random() io.Reader {
	if randReader != nil {
		return randReader
	}
	return rand.Reader
}

// KeyPair is an RSA-OAEP key pair bound to SHA-256.
type KeyPair struct {
	// PublicKey is the encryption half handed to the KMS.
	PublicKey *rsa.PublicKey
	// PrivateKey is the decryption half placed under custody.
	PrivateKey *rsa.PrivateKey

	exported string
}

// GenerateKeyPair creates a new RSA-4096 key pair with public exponent 65537.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(random(), RSAModulusBits)
	if err != nil {
		return nil, fmt.Errorf("generate RSA key: %w", err)
	}
	return &KeyPair{PublicKey: &priv.PublicKey, PrivateKey: priv}, nil
}

// NewKeyPair wraps an existing private key, e.g. one recovered by Unwrap.
func NewKeyPair(priv *rsa.PrivateKey) (*KeyPair, error) {
	if err := checkPrivateKey(priv); err != nil {
		return nil, err
	}
	return &KeyPair{PublicKey: &priv.PublicKey, PrivateKey: priv}, nil
}

// ExportPublicKey returns base64(JSON(JWK)) of the public key. The result is
// cached so repeated calls within a session send identical bytes.
func ExportPublicKey(kp *KeyPair) (string, error) {
	if kp == nil || kp.PublicKey == nil {
		return "", fmt.Errorf("%w: no public key", ErrExport)
	}
	if kp.exported != "" {
		return kp.exported, nil
	}

	data, err := MarshalPublicJWK(kp.PublicKey)
	if err != nil {
		return "", err
	}
	kp.exported = ToBase64(data)
	return kp.exported, nil
}

// MarshalPublicJWK returns the JWK JSON of an RSA public key.
func MarshalPublicJWK(pub *rsa.PublicKey) ([]byte, error) {
	if pub == nil || pub.N == nil || pub.N.Sign() <= 0 {
		return nil, fmt.Errorf("%w: malformed public key", ErrExport)
	}
	jwk := jose.JSONWebKey{Key: pub, Algorithm: JWKAlgorithm}
	data, err := jwk.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExport, err)
	}
	return data, nil
}

// ImportPublicKey parses base64(JSON(JWK)) as sent by the KMS.
func ImportPublicKey(encoded string) (*rsa.PublicKey, error) {
	data, err := FromTransportBase64(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrImport, err)
	}
	return ParsePublicJWK(data)
}

// ParsePublicJWK parses the JWK JSON of an RSA public key.
func ParsePublicJWK(data []byte) (*rsa.PublicKey, error) {
	var jwk jose.JSONWebKey
	if err := json.Unmarshal(data, &jwk); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImport, err)
	}
	if !jwk.Valid() {
		return nil, fmt.Errorf("%w: invalid JWK", ErrImport)
	}
	if jwk.Algorithm != "" && jwk.Algorithm != JWKAlgorithm {
		return nil, fmt.Errorf("%w: unsupported alg %q", ErrImport, jwk.Algorithm)
	}

	pub, ok := jwk.Key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA public key", ErrImport)
	}
	if pub.N.BitLen() < RSAMinImportBits {
		return nil, fmt.Errorf("%w: modulus too small (%d bits)", ErrImport, pub.N.BitLen())
	}
	return pub, nil
}

// MarshalPrivateJWK returns the JWK JSON of an RSA private key. This is the
// plaintext protected by an envelope.
func MarshalPrivateJWK(priv *rsa.PrivateKey) ([]byte, error) {
	if err := checkPrivateKey(priv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExport, err)
	}
	jwk := jose.JSONWebKey{Key: priv, Algorithm: JWKAlgorithm}
	data, err := jwk.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExport, err)
	}
	return data, nil
}

// ParsePrivateJWK parses the JWK JSON of an RSA private key and checks that
// it carries the same algorithm parameters as a generated key pair.
func ParsePrivateJWK(data []byte) (*rsa.PrivateKey, error) {
	var jwk jose.JSONWebKey
	if err := json.Unmarshal(data, &jwk); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImport, err)
	}
	if jwk.Algorithm != "" && jwk.Algorithm != JWKAlgorithm {
		return nil, fmt.Errorf("%w: unsupported alg %q", ErrImport, jwk.Algorithm)
	}

	priv, ok := jwk.Key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA private key", ErrImport)
	}
	if err := checkPrivateKey(priv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImport, err)
	}
	return priv, nil
}

// PublicJWK renders a public key as JWK JSON for the message relay.
func PublicJWK(pub *rsa.PublicKey) (json.RawMessage, error) {
	data, err := MarshalPublicJWK(pub)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

func checkPrivateKey(priv *rsa.PrivateKey) error {
	if priv == nil {
		return fmt.Errorf("nil private key")
	}
	if priv.E != RSAPublicExponent {
		return fmt.Errorf("public exponent %d, want %d", priv.E, RSAPublicExponent)
	}
	if priv.N == nil || priv.N.BitLen() < RSAMinImportBits {
		return fmt.Errorf("modulus too small")
	}
	return priv.Validate()
}
