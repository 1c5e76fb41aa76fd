package crypto

import "errors"

var (
	// ErrExport is returned when a key cannot be serialized.
	ErrExport = errors.New("key export failed")

	// ErrImport is returned when a serialized key cannot be parsed.
	ErrImport = errors.New("key import failed")

	// ErrDecrypt is returned when RSA-OAEP decryption fails. It carries no
	// detail about which check failed.
	ErrDecrypt = errors.New("decryption failed")

	// ErrMessageTooLong is returned when a plaintext exceeds the RSA-OAEP limit.
	ErrMessageTooLong = errors.New("message too long for RSA-OAEP")

	// ErrDerive is returned when the wrapping key cannot be derived.
	ErrDerive = errors.New("key derivation failed")

	// ErrWrap is returned when a private key cannot be wrapped.
	ErrWrap = errors.New("key wrap failed")

	// ErrUnwrap is returned when an envelope cannot be opened. Malformed
	// transport text, tag mismatch and algorithm mismatch all map here.
	ErrUnwrap = errors.New("key unwrap failed")

	// ErrDecryptionFailed is returned when AES-GCM authentication fails.
	ErrDecryptionFailed = errors.New("authenticated decryption failed")

	// ErrInvalidKeySize is returned when the AES key size is invalid.
	ErrInvalidKeySize = errors.New("invalid key size")

	// ErrInvalidNonceSize is returned when the nonce size is invalid.
	ErrInvalidNonceSize = errors.New("invalid nonce size")

	// ErrInvalidEnvelope is returned when the envelope transport form is malformed.
	ErrInvalidEnvelope = errors.New("invalid envelope")
)
