package keycustody

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/keycustody/client-go/internal/crypto"
)

// Message kinds in Message.Data.
const (
	MessagePrivKey = "privKey"
	MessagePubKey  = "pubKey"
	MessageError   = "error"
)

// Message is delivered to the host application once a task completes.
type Message struct {
	Data string `json:"data"`
	// Key is the JWK of the recovered private key or the requested public key.
	Key       json.RawMessage `json:"key,omitempty"`
	KeyNameID string          `json:"keyNameId,omitempty"`
	// Info is an object, not the plain string older postMessage hosts
	// received; hosts read Info.Message where they used info.
	Info *ErrorInfo `json:"info,omitempty"`
}

// ErrorInfo describes a failed task. It carries the failure kind and a hint,
// never the raw text sent by the KMS.
type ErrorInfo struct {
	Kind    Kind   `json:"kind"`
	Step    string `json:"step,omitempty"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// Relay delivers messages to the host application.
type Relay interface {
	Send(ctx context.Context, msg Message) error
}

// RelayFunc adapts a function to Relay.
type RelayFunc func(ctx context.Context, msg Message) error

// Send implements Relay.
func (f RelayFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// ChannelRelay delivers messages on a channel.
type ChannelRelay chan Message

// Send implements Relay. It blocks until the message is received or ctx ends.
func (r ChannelRelay) Send(ctx context.Context, msg Message) error {
	select {
	case r <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WriterRelay writes every message as one JSON line.
type WriterRelay struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewWriterRelay returns a WriterRelay writing to w.
func NewWriterRelay(w io.Writer) *WriterRelay {
	return &WriterRelay{enc: json.NewEncoder(w)}
}

// Send implements Relay.
func (r *WriterRelay) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enc.Encode(msg)
}

// HandleTask runs task on behalf of origin and delivers the resulting
// message to the relay set with WithRelay. Failures are delivered as an
// error message and also returned. Tasks from an origin outside
// WithAllowedOrigins are dropped without a message.
func (c *Client) HandleTask(ctx context.Context, origin string, task Task) (Message, error) {
	if !c.allowed(origin) {
		c.logger.Warn("task from untrusted origin dropped", "origin", origin)
		return Message{}, newFlowError(UntrustedSource, "relay", "check_origin", fmt.Errorf("origin %q", origin))
	}

	c.logger.Debug("task received", "origin", origin, "task", task)

	msg, err := c.runTask(ctx, task)
	if err != nil {
		msg = errorMessage(err)
	}
	if c.cfg.relay != nil {
		if sendErr := c.cfg.relay.Send(ctx, msg); sendErr != nil {
			return msg, errors.Join(err, fmt.Errorf("%w: %w", ErrRelay, sendErr))
		}
	}
	return msg, err
}

func (c *Client) runTask(ctx context.Context, task Task) (Message, error) {
	switch task.Task {
	case TaskGetPrivKey:
		priv, err := c.GetPrivateKey(ctx, task.Username, task.Password)
		if err != nil {
			return Message{}, err
		}
		key, err := crypto.MarshalPrivateJWK(priv)
		if err != nil {
			return Message{}, newFlowError(ExportFailure, flowRetrieve, stepExportKey, err)
		}
		return Message{Data: MessagePrivKey, Key: key}, nil

	case TaskGetPubKey:
		pub, err := c.GetPublicKey(ctx, Identifier{KeyNameID: task.ID, Username: task.Username})
		if err != nil {
			return Message{}, err
		}
		key, err := crypto.PublicJWK(pub.Key)
		if err != nil {
			return Message{}, newFlowError(ExportFailure, flowPubKey, stepExportKey, err)
		}
		return Message{Data: MessagePubKey, Key: key, KeyNameID: pub.KeyNameID}, nil
	}
	return Message{}, newFlowError(InvalidRequest, "relay", "dispatch", fmt.Errorf("%w: %q", ErrUnknownTask, task.Task))
}

// errorMessage renders err for the host application.
func errorMessage(err error) Message {
	var flowErr *FlowError
	if errors.As(err, &flowErr) {
		return Message{Data: MessageError, Info: &ErrorInfo{
			Kind:    flowErr.Kind,
			Step:    flowErr.Step,
			Message: kindSentinels[flowErr.Kind].Error(),
			Hint:    flowErr.Hint,
		}}
	}
	return Message{Data: MessageError, Info: &ErrorInfo{
		Kind:    InvalidRequest,
		Message: err.Error(),
		Hint:    InvalidRequest.Hint(),
	}}
}

// ServeTasks reads JSON tasks, one per line, from r and handles each on
// behalf of origin until r is exhausted or ctx ends. Lines that are not
// valid tasks produce an error message.
func (c *Client) ServeTasks(ctx context.Context, r io.Reader, origin string) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		task, err := ParseTask(line)
		if err != nil {
			c.logger.Debug("malformed task", "error", err)
			task = Task{}
		}
		_, err = c.HandleTask(ctx, origin, task)
		if errors.Is(err, ErrRelay) || errors.Is(err, ErrClientClosed) {
			return err
		}
	}
	return scanner.Err()
}
