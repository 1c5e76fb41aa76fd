package api

import "fmt"

// Task is the discriminant of a successful KMS reply.
type Task string

// Tasks sent by the KMS.
const (
	TaskSendPubKey     Task = "sendPubKey"
	TaskSolveChallenge Task = "solveChallenge"
	TaskUnwrap         Task = "unwrap"
	TaskSendWrappedKey Task = "sendWrappedKey"
	TaskReady          Task = "ready"
	TaskUsePubKey      Task = "usePubKey"
)

// ConfirmResponse is the reply of the confirmation endpoint (ACS). It tells
// the agent which flow to run next.
type ConfirmResponse struct {
	Task        Task   `json:"task"`
	AccessToken string `json:"accesstoken,omitempty"`
	// Challenge is set for TaskSolveChallenge.
	Challenge string `json:"challenge,omitempty"`
	// WrappedKey and Salt are set for TaskUnwrap.
	WrappedKey string `json:"wrappedKey,omitempty"`
	Salt       string `json:"salt,omitempty"`
}

// Validate implements Response.
func (r *ConfirmResponse) Validate() error {
	switch r.Task {
	case TaskSendPubKey:
		return requireField(r.Task, "accesstoken", r.AccessToken)
	case TaskSolveChallenge:
		if err := requireField(r.Task, "accesstoken", r.AccessToken); err != nil {
			return err
		}
		return requireField(r.Task, "challenge", r.Challenge)
	case TaskUnwrap:
		if err := requireField(r.Task, "wrappedKey", r.WrappedKey); err != nil {
			return err
		}
		return requireField(r.Task, "salt", r.Salt)
	}
	return unexpectedTask(r.Task)
}

// ChallengeResponse is the reply to a submitted public key.
type ChallengeResponse struct {
	Task      Task   `json:"task"`
	Challenge string `json:"challenge"`
}

// Validate implements Response.
func (r *ChallengeResponse) Validate() error {
	if err := expectTask(r.Task, TaskSolveChallenge); err != nil {
		return err
	}
	return requireField(TaskSolveChallenge, "challenge", r.Challenge)
}

// SaltResponse is the reply to a submitted proof.
type SaltResponse struct {
	Task Task   `json:"task"`
	Salt string `json:"salt"`
}

// Validate implements Response.
func (r *SaltResponse) Validate() error {
	if err := expectTask(r.Task, TaskSendWrappedKey); err != nil {
		return err
	}
	return requireField(TaskSendWrappedKey, "salt", r.Salt)
}

// AckResponse is the reply to a submitted envelope: "ready" or empty.
type AckResponse struct {
	Task Task `json:"task"`
}

// Validate implements Response.
func (r *AckResponse) Validate() error {
	return expectTask(r.Task, TaskReady)
}

// PublicKeyResponse is the reply of a public key lookup.
type PublicKeyResponse struct {
	Task      Task   `json:"task"`
	PubKey    string `json:"pubkey"`
	KeyNameID string `json:"keyNameId"`
}

// Validate implements Response.
func (r *PublicKeyResponse) Validate() error {
	if err := expectTask(r.Task, TaskUsePubKey); err != nil {
		return err
	}
	if err := requireField(TaskUsePubKey, "pubkey", r.PubKey); err != nil {
		return err
	}
	return requireField(TaskUsePubKey, "keyNameId", r.KeyNameID)
}

// expectTask accepts the expected discriminant or none at all.
func expectTask(got, want Task) error {
	if got == "" || got == want {
		return nil
	}
	return unexpectedTask(got)
}

func unexpectedTask(t Task) error {
	if t == "" {
		return fmt.Errorf("%w: missing task", ErrUnexpectedResponse)
	}
	return fmt.Errorf("%w: task %q", ErrUnexpectedResponse, t)
}

func requireField(t Task, field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s reply without %s", ErrUnexpectedResponse, t, field)
	}
	return nil
}
