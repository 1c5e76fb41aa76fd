package keycustody

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/keycustody/client-go/internal/crypto"
)

// State is the phase of a Session.
type State int

// Session states. Enroll runs KeyGenerated through EnvelopeSent; retrieve
// runs RequestSent, then EnvelopeReceived and Unwrapped or PubKeyReceived.
const (
	StateStart State = iota
	StateRequestSent
	StateKeyGenerated
	StatePubKeySent
	StateChallengeReceived
	StateChallengeSolved
	StateEnvelopeWrapped
	StateEnvelopeSent
	StateEnvelopeReceived
	StateUnwrapped
	StatePubKeyReceived
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateStart:             "Start",
	StateRequestSent:       "RequestSent",
	StateKeyGenerated:      "KeyGenerated",
	StatePubKeySent:        "PubKeySent",
	StateChallengeReceived: "ChallengeReceived",
	StateChallengeSolved:   "ChallengeSolved",
	StateEnvelopeWrapped:   "EnvelopeWrapped",
	StateEnvelopeSent:      "EnvelopeSent",
	StateEnvelopeReceived:  "EnvelopeReceived",
	StateUnwrapped:         "Unwrapped",
	StatePubKeyReceived:    "PubKeyReceived",
	StateDone:              "Done",
	StateFailed:            "Failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// transitions lists the successors of every non-terminal state. Failed is
// reachable from all of them.
var transitions = map[State][]State{
	StateStart:             {StateRequestSent, StateKeyGenerated},
	StateRequestSent:       {StateKeyGenerated, StateEnvelopeReceived, StatePubKeyReceived},
	StateKeyGenerated:      {StatePubKeySent, StateChallengeReceived},
	StatePubKeySent:        {StateChallengeReceived},
	StateChallengeReceived: {StateChallengeSolved},
	StateChallengeSolved:   {StateEnvelopeWrapped},
	StateEnvelopeWrapped:   {StateEnvelopeSent},
	StateEnvelopeSent:      {StateDone},
	StateEnvelopeReceived:  {StateUnwrapped},
	StateUnwrapped:         {StateDone},
	StatePubKeyReceived:    {StateDone},
}

func canTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition records one state change of a Session.
type Transition struct {
	From State
	To   State
	At   time.Time
}

// Flow names used in FlowError and logs.
const (
	flowEnroll   = "enroll"
	flowRetrieve = "retrieve"
	flowPubKey   = "pubkey"
)

var errBadTransition = errors.New("invalid state transition")

// Session runs exactly one flow. It owns the key pair, access token and
// wrapping key of that flow and never shares them with other sessions.
type Session struct {
	client *Client
	id     string
	logger *slog.Logger
	busy   *atomic.Bool

	mu      sync.Mutex
	flow    string
	state   State
	history []Transition

	keyPair *crypto.KeyPair
	wk      *crypto.WrappingKey
}

func newSession(c *Client) *Session {
	id := uuid.NewString()
	return &Session{
		client: c,
		id:     id,
		logger: c.logger.With("session_id", id),
		busy:   atomic.NewBool(false),
		state:  StateStart,
	}
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transitions returns a copy of the state history.
func (s *Session) Transitions() []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Transition(nil), s.history...)
}

// begin claims the session for flow. Every call that succeeds must be paired
// with end.
func (s *Session) begin(flow string) error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrSessionInUse
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStart {
		s.busy.Store(false)
		return ErrSessionClosed
	}
	s.flow = flow
	return nil
}

func (s *Session) end() {
	s.destroyWrappingKey()
	s.busy.Store(false)
}

// advance moves the session to the next state.
func (s *Session) advance(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setState(to)
}

// setState must be called with mu held.
func (s *Session) setState(to State) error {
	from := s.state
	if !canTransition(from, to) {
		return errBadTransition
	}
	s.state = to
	s.history = append(s.history, Transition{From: from, To: to, At: time.Now()})
	s.logger.Debug("session transition", "flow", s.flow, "from", from.String(), "to", to.String())
	return nil
}

// fail moves the session to Failed and returns the error reported to the
// caller. Nothing mutates the session afterwards.
func (s *Session) fail(kind Kind, step string, err error) error {
	s.mu.Lock()
	flow := s.flow
	_ = s.setState(StateFailed)
	s.mu.Unlock()
	s.destroyWrappingKey()

	flowErr := newFlowError(kind, flow, step, err)

	var serverErr *ServerError
	if errors.As(flowErr.Err, &serverErr) {
		s.logger.Debug("KMS error", "flow", flow, "step", step, "error", serverErr.Message, "todo", serverErr.Todo)
	}
	s.logger.Warn("flow failed", "flow", flow, "step", step, "kind", string(kind))
	return flowErr
}

// step advances to the given state, failing the session with a
// ProtocolViolation when the transition is not allowed.
func (s *Session) step(to State, stepName string) error {
	if err := s.advance(to); err != nil {
		return s.fail(ProtocolViolation, stepName, err)
	}
	return nil
}

func (s *Session) destroyWrappingKey() {
	s.mu.Lock()
	wk := s.wk
	s.wk = nil
	s.mu.Unlock()
	wk.Destroy()
}

func (s *Session) setWrappingKey(wk *crypto.WrappingKey) {
	s.mu.Lock()
	s.wk = wk
	s.mu.Unlock()
}
