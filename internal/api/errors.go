package api

import (
	"errors"
	"fmt"
)

// Error codes the KMS places in the "error" member.
const (
	CodeNoTokenFound      = "no OAuth Token found."
	CodeNoPubKeyFound     = "noPubKeyFound"
	CodeChallengeRejected = "challengeNotSolvedCorrect"
	CodeNoPubKeySent      = "noPubKeySent"
	CodeNoSolutionSent    = "noSolvedChallengeSent"
	CodeNoWrappedKeySent  = "noWrappedKeySent"
	CodeInvalidIdentifier = "error no valid keyNameId and no valid username"
)

// Common errors that can be checked with errors.Is.
var (
	// ErrUnauthorized indicates the access token is missing, unknown or expired.
	ErrUnauthorized = errors.New("access token rejected")
	// ErrNotFound indicates the KMS holds no key for the identifier.
	ErrNotFound = errors.New("key not found")
	// ErrChallengeRejected indicates the proof did not match the challenge.
	ErrChallengeRejected = errors.New("challenge not solved")
	// ErrRateLimited indicates the rate limit has been exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrUnexpectedResponse indicates a reply whose shape does not match
	// the endpoint or the flow step.
	ErrUnexpectedResponse = errors.New("unexpected response")
)

// ServerError is the error variant of every KMS reply: {"error", "todo"}.
type ServerError struct {
	StatusCode int
	// Message is the raw "error" member.
	Message string
	// Todo is the remedial hint supplied by the KMS, if any.
	Todo string
}

func (e *ServerError) Error() string {
	if e.Todo != "" {
		return fmt.Sprintf("KMS error: %s (todo: %s)", e.Message, e.Todo)
	}
	return fmt.Sprintf("KMS error: %s", e.Message)
}

// Is implements errors.Is for sentinel error matching.
func (e *ServerError) Is(target error) bool {
	switch e.Message {
	case CodeNoTokenFound:
		return target == ErrUnauthorized
	case CodeNoPubKeyFound:
		return target == ErrNotFound
	case CodeChallengeRejected:
		return target == ErrChallengeRejected
	}
	return false
}

// KeyCustodyError implements the KeyCustodyError marker interface.
func (e *ServerError) KeyCustodyError() {}

// APIError is an HTTP error status without a KMS error payload.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error %d", e.StatusCode)
}

// Is implements errors.Is for sentinel error matching.
func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case 401, 403:
		return target == ErrUnauthorized
	case 404:
		return target == ErrNotFound
	case 429:
		return target == ErrRateLimited
	}
	return false
}

// KeyCustodyError implements the KeyCustodyError marker interface.
func (e *APIError) KeyCustodyError() {}

// NetworkError represents a network-level failure.
type NetworkError struct {
	Err     error
	URL     string
	Attempt int
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// KeyCustodyError implements the KeyCustodyError marker interface.
func (e *NetworkError) KeyCustodyError() {}
