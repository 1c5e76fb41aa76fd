// Package api is the transport to the KMS. Requests are urlencoded forms,
// replies are JSON objects discriminated by a "task" member or, on failure,
// carrying "error" and "todo".
//
// # Replies
//
// Every endpoint decodes into a typed success variant ([ConfirmResponse],
// [ChallengeResponse], [SaltResponse], [AckResponse], [PublicKeyResponse])
// that validates its own shape. A reply carrying "error" is always returned
// as [*ServerError]; a reply of the wrong shape wraps [ErrUnexpectedResponse].
//
// # Retry Behavior
//
// Only the public key lookup is idempotent and retried, with exponential
// backoff and jitter, on these statuses:
//
//   - 408 Request Timeout
//   - 429 Too Many Requests
//   - 500, 502, 503, 504
//
// The enroll steps consume single-use server state and are never retried.
//
// # Thread Safety
//
// The [Client] type is safe for concurrent use.
package api
