package crypto

const (
	// RSAModulusBits is the modulus size of every generated key pair.
	RSAModulusBits = 4096
	// RSAPublicExponent is the fixed public exponent (0x010001).
	RSAPublicExponent = 65537
	// RSAMinImportBits is the smallest modulus accepted from the KMS.
	RSAMinImportBits = 2048
	// OAEPHashSize is the output size of SHA-256, the hash bound to RSA-OAEP.
	OAEPHashSize = 32
	// JWKAlgorithm is the JWK "alg" value for RSA-OAEP with SHA-256.
	JWKAlgorithm = "RSA-OAEP-256"

	// PBKDF2Iterations is the iteration count of the wrapping-key derivation.
	// It is far below current guidance but must match the value used by the
	// KMS-side web client, otherwise stored envelopes become unreadable.
	PBKDF2Iterations = 1000
	// WrappingKeySize is the size of the derived AES-256 wrapping key in bytes.
	WrappingKeySize = 32

	// AESKeySize is the size of an AES-256 key in bytes.
	AESKeySize = 32
	// AESNonceSize is the size of an AES-GCM nonce in bytes.
	AESNonceSize = 12
	// AESTagSize is the size of an AES-GCM authentication tag in bytes.
	AESTagSize = 16

	// EnvelopeSeparator joins the IV and ciphertext in the transport form.
	// Neither base64 alphabet contains '|'.
	EnvelopeSeparator = "||"
)
