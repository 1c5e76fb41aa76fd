// Package kmstest provides an in-memory KMS for tests and local development.
//
// It serves the same endpoints and replies as a production KMS: the ACS
// confirmation, the three enrollment steps and the public key lookup. The
// identity provider is simulated; the ACS endpoint trusts the "username"
// form value. Accounts live in memory unless WithStore is given; a
// BadgerStore keeps them across restarts.
//
//	srv, baseURL := kmstest.Start(t, kmstest.WithSalt("s0m3salt"))
//	client, _ := keycustody.New(secret, keycustody.WithBaseURL(baseURL))
package kmstest
