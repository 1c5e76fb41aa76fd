// Package crypto provides the cryptographic primitives of the key-custody
// protocol. Every function is stateless; the algorithm parameters are
// package constants and safe for concurrent use.
//
// # Algorithm Suite
//
//   - RSA-OAEP (RSA-4096, e=65537, SHA-256, empty label): proof of possession.
//     The KMS encrypts a short random challenge to the agent's public key.
//
//   - PBKDF2-HMAC-SHA-512 (1000 iterations): derives the 256-bit wrapping key
//     from a pre-shared secret, the user's password and a KMS-issued salt.
//
//   - AES-256-GCM (12-byte IV, 128-bit tag): wraps the private key. The
//     plaintext is the private key's JWK serialization.
//
// # Security Notes
//
// The iteration count matches the browser client that shares the KMS and
// cannot be raised without re-wrapping every stored envelope.
//
// Decryption and unwrap failures are reported as the generic [ErrDecrypt]
// and [ErrUnwrap]. Callers must not try to tell a tag mismatch from a wrong
// password.
//
// AES-GCM nonces MUST be unique for each encryption with the same key. [Wrap]
// draws a fresh IV on every call.
//
// # Encoding
//
//   - [ToBase64]/[FromBase64]: standard padded base64, used for every value
//     exchanged with the KMS.
//
//   - [RestorePlus]/[FromTransportBase64]: repair '+' signs that arrived as
//     spaces after form decoding.
//
//   - [BytesToString]/[StringToBytes]: byte <-> code point "binary strings",
//     needed to reproduce the derivation inputs of the web client.
package crypto
