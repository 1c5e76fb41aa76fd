// Package keycustody provides a Go client for a key management service
// (KMS) that holds users' private keys under password-protected custody.
//
// An agent enrolls by generating an RSA-OAEP key pair, proving possession of
// it through an encrypted challenge, and uploading the private key wrapped
// under a key derived from a pre-shared secret, the user's password and a
// salt chosen by the KMS. Later the agent retrieves the envelope and unwraps
// it locally. The KMS never sees the private key in the clear.
//
// Basic usage:
//
//	client, err := keycustody.New(secret,
//	    keycustody.WithBaseURL("https://kms.example.com"),
//	    keycustody.WithConfirmationForm(url.Values{"SAMLResponse": {assertion}}),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Unwraps the key held by the KMS, or enrolls a new one.
//	priv, err := client.GetPrivateKey(ctx, "alice", password)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Anyone may fetch the public half.
//	pub, err := client.GetPublicKey(ctx, keycustody.ByUsername("alice"))
package keycustody
