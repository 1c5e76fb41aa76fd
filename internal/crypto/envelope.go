package crypto

import (
	"crypto/rsa"
	"fmt"
	"io"
	"strings"
)

// Envelope is a private key wrapped under a WrappingKey.
type Envelope struct {
	// IV is the AES-GCM nonce, fresh for every wrap.
	IV []byte
	// Ciphertext is the sealed private JWK with the 16-byte tag appended.
	Ciphertext []byte
}

// String returns the transport form base64(IV) || "||" || base64(ciphertext).
func (e *Envelope) String() string {
	return ToBase64(e.IV) + EnvelopeSeparator + ToBase64(e.Ciphertext)
}

// ParseEnvelope parses the transport form. Spaces left behind by form
// decoding are turned back into '+' before base64 decoding.
func ParseEnvelope(s string) (*Envelope, error) {
	ivPart, ctPart, ok := strings.Cut(s, EnvelopeSeparator)
	if !ok {
		return nil, fmt.Errorf("%w: missing separator", ErrInvalidEnvelope)
	}

	iv, err := FromTransportBase64(ivPart)
	if err != nil {
		return nil, fmt.Errorf("%w: decode IV: %v", ErrInvalidEnvelope, err)
	}
	if len(iv) != AESNonceSize {
		return nil, fmt.Errorf("%w: IV is %d bytes", ErrInvalidEnvelope, len(iv))
	}

	ct, err := FromTransportBase64(ctPart)
	if err != nil {
		return nil, fmt.Errorf("%w: decode ciphertext: %v", ErrInvalidEnvelope, err)
	}
	if len(ct) <= AESTagSize {
		return nil, fmt.Errorf("%w: ciphertext is %d bytes", ErrInvalidEnvelope, len(ct))
	}

	return &Envelope{IV: iv, Ciphertext: ct}, nil
}

// Wrap seals priv under wk with a freshly drawn IV.
func Wrap(wk *WrappingKey, priv *rsa.PrivateKey) (*Envelope, error) {
	if wk == nil || wk.key == nil {
		return nil, fmt.Errorf("%w: no wrapping key", ErrWrap)
	}

	plaintext, err := MarshalPrivateJWK(priv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrap, err)
	}
	defer Zero(plaintext)

	iv := make([]byte, AESNonceSize)
	if _, err := io.ReadFull(random(), iv); err != nil {
		return nil, fmt.Errorf("%w: draw IV: %v", ErrWrap, err)
	}

	ct, err := sealAESGCM(wk.key, iv, plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrap, err)
	}

	return &Envelope{IV: iv, Ciphertext: ct}, nil
}

// Unwrap opens the transport form of an envelope and imports the private
// key it contains. It returns ErrUnwrap for every failure and never a
// partially usable key.
func Unwrap(wk *WrappingKey, transport string) (*rsa.PrivateKey, error) {
	if wk == nil || wk.key == nil {
		return nil, ErrUnwrap
	}

	env, err := ParseEnvelope(transport)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnwrap, err)
	}

	plaintext, err := openAESGCM(wk.key, env.IV, env.Ciphertext)
	if err != nil {
		return nil, ErrUnwrap
	}
	defer Zero(plaintext)

	priv, err := ParsePrivateJWK(plaintext)
	if err != nil {
		return nil, ErrUnwrap
	}
	return priv, nil
}
