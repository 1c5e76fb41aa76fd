package keycustody

import (
	"context"
	"errors"
	"fmt"

	"github.com/keycustody/client-go/internal/api"
	"github.com/keycustody/client-go/internal/confirm"
	"github.com/keycustody/client-go/internal/crypto"
)

// Kind classifies a flow failure. Its text is safe to show to the user; it
// never says which internal check failed.
type Kind string

// Failure kinds.
const (
	ImportFailure Kind = "ImportFailure"
	// ExportFailure covers producing the key to enroll, including key
	// generation and the key given to WithKeyPair.
	ExportFailure     Kind = "ExportFailure"
	DecryptFailure    Kind = "DecryptFailure"
	DeriveFailure     Kind = "DeriveFailure"
	WrapFailure       Kind = "WrapFailure"
	UnwrapFailure     Kind = "UnwrapFailure"
	ProtocolViolation Kind = "ProtocolViolation"
	NetworkFailure    Kind = "NetworkError"
	UntrustedSource   Kind = "UntrustedSource"
	InvalidRequest    Kind = "InvalidRequest"
	ServerFailure     Kind = "ServerError"
)

// Sentinel errors for errors.Is() checks. A *FlowError matches the sentinel
// of its Kind.
var (
	ErrImportFailure     = errors.New("key import failed")
	ErrExportFailure     = errors.New("key export failed")
	ErrDecryptFailure    = errors.New("challenge decryption failed")
	ErrDeriveFailure     = errors.New("wrapping key derivation failed")
	ErrWrapFailure       = errors.New("key wrap failed")
	ErrUnwrapFailure     = errors.New("key unwrap failed")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrNetwork           = errors.New("network error")
	ErrUntrustedSource   = errors.New("untrusted source")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrServer            = errors.New("KMS rejected the request")
)

// Sentinel errors for client-side conditions.
var (
	// ErrMissingSecret is returned by New when no pre-shared secret is given.
	ErrMissingSecret = errors.New("pre-shared secret is required")

	// ErrInvalidSecret is returned by New when the secret is not base64.
	ErrInvalidSecret = errors.New("pre-shared secret is not valid base64")

	// ErrMissingBaseURL is returned by New without WithBaseURL.
	ErrMissingBaseURL = errors.New("KMS base URL is required")

	// ErrClientClosed is returned when operations are attempted on a closed client.
	ErrClientClosed = errors.New("client has been closed")

	// ErrSessionClosed is returned by a session that already ran a flow.
	ErrSessionClosed = errors.New("session is closed")

	// ErrSessionInUse is returned when a second flow is started on a session
	// while the first is still running.
	ErrSessionInUse = errors.New("session already has a flow in progress")

	// ErrInvalidIdentifier is returned for a key id or account id that does
	// not match its grammar. It is detected before any network call.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrRelay is returned when a message cannot be delivered to the relay.
	ErrRelay = errors.New("relay failed")

	// ErrUnknownTask is returned for a relay task with an unknown discriminant.
	ErrUnknownTask = errors.New("unknown task")

	// ErrUnauthorized is returned when the KMS rejects the access token.
	ErrUnauthorized = errors.New("access token rejected")

	// ErrNotFound is returned when the KMS holds no key for an identifier.
	ErrNotFound = errors.New("key not found")

	// ErrChallengeRejected is returned when the KMS refuses the proof.
	ErrChallengeRejected = errors.New("challenge not solved")

	// ErrConfirmationTimeout is returned when the out-of-band confirmation
	// does not complete in time.
	ErrConfirmationTimeout = confirm.ErrTimeout

	// ErrWindowClosed is returned when the user closes the confirmation window.
	ErrWindowClosed = confirm.ErrWindowClosed

	// ErrAccessDenied is wrapped by window probes while the confirmation
	// window cannot be read. The poller keeps waiting on it.
	ErrAccessDenied = confirm.ErrAccessDenied
)

var kindSentinels = map[Kind]error{
	ImportFailure:     ErrImportFailure,
	ExportFailure:     ErrExportFailure,
	DecryptFailure:    ErrDecryptFailure,
	DeriveFailure:     ErrDeriveFailure,
	WrapFailure:       ErrWrapFailure,
	UnwrapFailure:     ErrUnwrapFailure,
	ProtocolViolation: ErrProtocolViolation,
	NetworkFailure:    ErrNetwork,
	UntrustedSource:   ErrUntrustedSource,
	InvalidRequest:    ErrInvalidRequest,
	ServerFailure:     ErrServer,
}

var kindHints = map[Kind]string{
	ImportFailure:     "the KMS sent a key this agent cannot read; contact the KMS administrator",
	ExportFailure:     "the generated key could not be serialized; restart the enrollment",
	DecryptFailure:    "the challenge does not match the local key; restart the enrollment",
	DeriveFailure:     "the salt or the pre-shared secret is malformed; contact the KMS administrator",
	WrapFailure:       "the private key could not be protected; restart the enrollment",
	UnwrapFailure:     "wrong password or damaged key envelope; check the password and retry",
	ProtocolViolation: "the KMS answered out of order; restart the flow",
	NetworkFailure:    "the KMS could not be reached or the login did not complete; retry",
	UntrustedSource:   "the request came from an origin that is not allowed",
	InvalidRequest:    "malformed request; check the task and its identifier",
	ServerFailure:     "the KMS rejected the request; restart the flow",
}

// Hint returns the remedial hint shown for k.
func (k Kind) Hint() string {
	return kindHints[k]
}

// KeyCustodyError is implemented by all SDK errors.
type KeyCustodyError interface {
	error
	KeyCustodyError() // marker method
}

// FlowError reports the failure of one step of a flow.
type FlowError struct {
	Kind Kind
	// Flow is the flow that failed: "enroll", "retrieve" or "pubkey".
	Flow string
	// Step names the failing step, e.g. "send_pub_key" or "unwrap_key".
	Step string
	// Hint is a remedial hint for the user.
	Hint string
	Err  error
}

func (e *FlowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Flow, e.Step, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Flow, e.Step, e.Kind)
}

// Unwrap returns the underlying error.
func (e *FlowError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *FlowError) Is(target error) bool {
	return target == kindSentinels[e.Kind]
}

// KeyCustodyError implements the KeyCustodyError interface.
func (e *FlowError) KeyCustodyError() {}

func newFlowError(kind Kind, flow, step string, err error) *FlowError {
	return &FlowError{Kind: kind, Flow: flow, Step: step, Hint: kind.Hint(), Err: wrapError(err)}
}

// ServerError is an error payload returned by the KMS.
type ServerError struct {
	StatusCode int
	Message    string
	Todo       string
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
	case api.CodeNoTokenFound:
		return target == ErrUnauthorized
	case api.CodeNoPubKeyFound:
		return target == ErrNotFound
	case api.CodeChallengeRejected:
		return target == ErrChallengeRejected
	}
	return false
}

// KeyCustodyError implements the KeyCustodyError interface.
func (e *ServerError) KeyCustodyError() {}

// APIError represents an HTTP error status without a KMS error payload.
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
	}
	return false
}

// KeyCustodyError implements the KeyCustodyError interface.
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

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// KeyCustodyError implements the KeyCustodyError interface.
func (e *NetworkError) KeyCustodyError() {}

// wrapError converts internal API errors to public errors.
// This ensures that errors.Is() checks work with public sentinel errors.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var serverErr *api.ServerError
	if errors.As(err, &serverErr) {
		return &ServerError{
			StatusCode: serverErr.StatusCode,
			Message:    serverErr.Message,
			Todo:       serverErr.Todo,
		}
	}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return &APIError{StatusCode: apiErr.StatusCode, Message: apiErr.Message}
	}

	var netErr *api.NetworkError
	if errors.As(err, &netErr) {
		return &NetworkError{Err: netErr.Err, URL: netErr.URL, Attempt: netErr.Attempt}
	}

	return err
}

// transportKind classifies an error returned by the transport or by the
// confirmation source.
func transportKind(err error) Kind {
	var (
		serverErr *api.ServerError
		apiErr    *api.APIError
	)
	switch {
	case errors.As(err, &serverErr), errors.As(err, &apiErr):
		return ServerFailure
	case errors.Is(err, api.ErrUnexpectedResponse):
		return ProtocolViolation
	default:
		return NetworkFailure
	}
}

// cryptoKind classifies an error returned by the crypto package.
func cryptoKind(err error) Kind {
	switch {
	case errors.Is(err, crypto.ErrImport):
		return ImportFailure
	case errors.Is(err, crypto.ErrExport):
		return ExportFailure
	case errors.Is(err, crypto.ErrDecrypt):
		return DecryptFailure
	case errors.Is(err, crypto.ErrDerive):
		return DeriveFailure
	case errors.Is(err, crypto.ErrWrap):
		return WrapFailure
	case errors.Is(err, crypto.ErrUnwrap):
		return UnwrapFailure
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return NetworkFailure
	}
	return ProtocolViolation
}
