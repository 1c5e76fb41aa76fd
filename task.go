package keycustody

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
)

// Task names accepted by HandleTask.
const (
	TaskGetPrivKey = "getPrivKey"
	TaskGetPubKey  = "getPubKey"
)

var (
	keyNameIDPattern = regexp.MustCompile(`^[a-zA-Z0-9]+={0,2}$`)
	usernamePattern  = regexp.MustCompile(`^\w+$`)
)

// Task is a request submitted by the host application.
type Task struct {
	Task     string `json:"task"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	// ID is the key name identifier of a getPubKey task.
	ID string `json:"id,omitempty"`
}

// ParseTask decodes one JSON task.
func ParseTask(data []byte) (Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return Task{}, fmt.Errorf("%w: %v", ErrUnknownTask, err)
	}
	return t, nil
}

// LogValue implements slog.LogValuer. The password is never logged.
func (t Task) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("task", t.Task),
		slog.String("username", t.Username),
		slog.String("id", t.ID),
		slog.Bool("password_set", t.Password != ""),
	)
}

// Identifier selects a public key: by key name identifier when it is well
// formed, else by account.
type Identifier struct {
	KeyNameID string
	Username  string
}

// ByKeyNameID returns an Identifier for a key name identifier.
func ByKeyNameID(id string) Identifier {
	return Identifier{KeyNameID: id}
}

// ByUsername returns an Identifier for an account.
func ByUsername(username string) Identifier {
	return Identifier{Username: username}
}

// resolve picks the identifier sent to the KMS. Exactly one of the results
// is non-empty on success.
func (id Identifier) resolve() (keyNameID, username string, err error) {
	switch {
	case keyNameIDPattern.MatchString(id.KeyNameID):
		return id.KeyNameID, "", nil
	case usernamePattern.MatchString(id.Username):
		return "", id.Username, nil
	}
	return "", "", ErrInvalidIdentifier
}

// Validate reports ErrInvalidIdentifier when neither member is well formed.
func (id Identifier) Validate() error {
	_, _, err := id.resolve()
	return err
}

func (id Identifier) String() string {
	if keyNameID, username, err := id.resolve(); err == nil {
		if keyNameID != "" {
			return "keynameid:" + keyNameID
		}
		return "username:" + username
	}
	return "invalid"
}
