package kmstest

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/keycustody/client-go/internal/crypto"
)

// Defaults of a new Server.
const (
	BasePath        = "/KMS"
	DefaultTokenTTL = 5 * time.Minute
	ChallengeSize   = 64
	SaltSize        = 32
)

// State is the enrollment step a user is expected to perform next.
type State string

// User states, in enrollment order.
const (
	StateSendPubKey       State = "SENDPUBKEY"
	StateSolveChallenge   State = "SOLVECHALL"
	StateSendWrappedKey   State = "SENDWRAPPEDKEY"
	StateAccessWrappedKey State = "ACCESSWRAPPEDKEY"
)

const contactSysadmin = "contact system administrator"

var (
	keyNameIDPattern = regexp.MustCompile(`^[a-zA-Z0-9]+={0,2}$`)
	usernamePattern  = regexp.MustCompile(`^\w+$`)
)

// User is a snapshot of one account held by the Server.
type User struct {
	Username   string `json:"username"`
	PubKey     string `json:"pubKey,omitempty"`
	KeyNameID  string `json:"keyNameId,omitempty"`
	WrappedKey string `json:"wrappedKey,omitempty"`
	Salt       string `json:"salt"`
	State      State  `json:"state,omitempty"`
}

type user struct {
	User
	challenge     []byte
	challengeHash []byte
}

type token struct {
	username string
	expires  time.Time
}

// reply is the JSON body of every endpoint.
type reply struct {
	Task        string `json:"task,omitempty"`
	AccessToken string `json:"accesstoken,omitempty"`
	Challenge   string `json:"challenge,omitempty"`
	WrappedKey  string `json:"wrappedKey,omitempty"`
	Salt        string `json:"salt,omitempty"`
	PubKey      string `json:"pubkey,omitempty"`
	KeyNameID   string `json:"keyNameId,omitempty"`
	Error       string `json:"error,omitempty"`
	Todo        string `json:"todo,omitempty"`
}

// Server is an in-memory KMS. It is safe for concurrent use.
type Server struct {
	log       *slog.Logger
	ttl       time.Duration
	now       func() time.Time
	challenge []byte
	salt      string
	store     Store

	mu        sync.Mutex
	users     map[string]*user
	keyNames  map[string]*user
	tokens    map[string]token
	requests  *atomic.Int64
	enrolled  *atomic.Int64
	retrieved *atomic.Int64
}

// Option configures a Server.
type Option func(*Server)

// WithChallenge makes every challenge encrypt plain instead of 64 random
// bytes. The expected proof is then the standard base64 of plain.
func WithChallenge(plain []byte) Option {
	return func(s *Server) {
		s.challenge = append([]byte(nil), plain...)
	}
}

// WithSalt makes every new user receive salt instead of 32 random bytes.
func WithSalt(salt string) Option {
	return func(s *Server) {
		s.salt = salt
	}
}

// WithTokenTTL sets how long an access token stays valid.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Server) {
		s.ttl = ttl
	}
}

// WithClock replaces time.Now for token expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// WithStore persists every account change to st. Call Restore to load the
// accounts already held by st.
func WithStore(st Store) Option {
	return func(s *Server) {
		s.store = st
	}
}

// WithLogger sets the request logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// New creates an empty Server.
func New(opts ...Option) *Server {
	s := &Server{
		log:       slog.New(slog.DiscardHandler),
		ttl:       DefaultTokenTTL,
		now:       time.Now,
		users:     make(map[string]*user),
		keyNames:  make(map[string]*user),
		tokens:    make(map[string]token),
		requests:  atomic.NewInt64(0),
		enrolled:  atomic.NewInt64(0),
		retrieved: atomic.NewInt64(0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler serving the KMS under BasePath.
func (s *Server) Handler() http.Handler {
	mux := chi.NewRouter()
	mux.Use(s.httpLogger, s.count)
	mux.Route(BasePath, func(r chi.Router) {
		r.Post("/ACS", s.handleACS)
		r.Post("/send_pub_key", s.handleSendPubKey)
		r.Post("/solve_challenge", s.handleSolveChallenge)
		r.Post("/send_wrapped_key", s.handleSendWrappedKey)
		r.Get("/get_public_key", s.handleGetPublicKey)
	})
	return mux
}

func (s *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(s.log, next)
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Inc()
		next.ServeHTTP(w, r)
	})
}

// Requests returns the number of requests served.
func (s *Server) Requests() int64 { return s.requests.Load() }

// Enrolled returns the number of envelopes accepted.
func (s *Server) Enrolled() int64 { return s.enrolled.Load() }

// Retrieved returns the number of envelopes handed out.
func (s *Server) Retrieved() int64 { return s.retrieved.Load() }

// User returns a snapshot of username's account.
func (s *Server) User(username string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return User{}, false
	}
	return u.User, true
}

// SetEnvelope replaces the envelope and salt stored for username, creating
// the account if needed.
func (s *Server) SetEnvelope(username, wrappedKey, salt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(s.userLocked(username), func(next *User) {
		next.WrappedKey = wrappedKey
		next.Salt = salt
	})
}

// Restore loads the accounts held by the store set with WithStore. It is a
// no-op without a store.
func (s *Server) Restore() error {
	if s.store == nil {
		return nil
	}
	users, err := s.store.Load()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snap := range users {
		u := &user{User: snap}
		s.users[u.Username] = u
		if u.KeyNameID != "" {
			s.keyNames[u.KeyNameID] = u
		}
	}
	s.log.Info("accounts restored", "count", len(users))
	return nil
}

// ExpireTokens invalidates every issued access token.
func (s *Server) ExpireTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.tokens)
}

func (s *Server) handleACS(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	if !usernamePattern.MatchString(username) {
		s.writeReply(w, reply{
			Error: "got no username out of the Assertion",
			Todo:  "provide valid Assertion, contact System Administrator",
		})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.userLocked(username)
	tok := s.issueTokenLocked(username)

	var (
		rep  reply
		next State
	)
	switch {
	case u.PubKey == "" || u.KeyNameID == "":
		next = StateSendPubKey
		rep = reply{Task: "sendPubKey", AccessToken: tok}

	case u.WrappedKey == "":
		challenge, err := s.encryptChallengeLocked(u, u.PubKey)
		if err != nil {
			s.writeReply(w, reply{Error: "cantEncryptChall", Todo: contactSysadmin, AccessToken: tok})
			return
		}
		next = StateSolveChallenge
		rep = reply{Task: "solveChallenge", Challenge: challenge, AccessToken: tok}

	default:
		next = StateAccessWrappedKey
		rep = reply{Task: "unwrap", WrappedKey: u.WrappedKey, Salt: u.Salt, AccessToken: tok}
	}

	if err := s.commitLocked(u, func(n *User) { n.State = next }); err != nil {
		s.writeReply(w, reply{Error: "user can not be saved.", Todo: contactSysadmin})
		return
	}
	if next == StateAccessWrappedKey {
		s.retrieved.Inc()
	}
	s.writeReply(w, rep)
}

func (s *Server) handleSendPubKey(w http.ResponseWriter, r *http.Request) {
	pubKey := r.FormValue("pubKey")
	if pubKey == "" {
		s.writeReply(w, reply{Error: "noPubKeySent"})
		return
	}
	pubKey = crypto.RestorePlus(pubKey)

	s.mu.Lock()
	defer s.mu.Unlock()

	u, errReply := s.authorizeLocked(r, StateSendPubKey)
	if errReply != nil {
		s.writeReply(w, *errReply)
		return
	}

	if _, err := crypto.ImportPublicKey(pubKey); err != nil {
		s.log.Debug("rejecting public key", "username", u.Username, "err", err)
		s.writeReply(w, reply{Error: "public key can not be saved.", Todo: contactSysadmin})
		return
	}
	keyNameID := u.KeyNameID
	if keyNameID == "" {
		keyNameID = newKeyNameID()
	}

	u.challenge, u.challengeHash = nil, nil
	challenge, err := s.encryptChallengeLocked(u, pubKey)
	if err != nil {
		s.writeReply(w, reply{Error: "cantEncryptChall", Todo: contactSysadmin})
		return
	}
	err = s.commitLocked(u, func(n *User) {
		n.PubKey = pubKey
		n.KeyNameID = keyNameID
		n.State = StateSolveChallenge
	})
	if err != nil {
		u.challenge, u.challengeHash = nil, nil
		s.writeReply(w, reply{Error: "public key can not be saved.", Todo: contactSysadmin})
		return
	}
	s.keyNames[keyNameID] = u
	s.writeReply(w, reply{Task: "solveChallenge", Challenge: challenge})
}

func (s *Server) handleSolveChallenge(w http.ResponseWriter, r *http.Request) {
	proof := r.FormValue("solvedChallenge")
	if proof == "" {
		s.writeReply(w, reply{Error: "noSolvedChallengeSent"})
		return
	}
	proof = crypto.RestorePlus(proof)

	s.mu.Lock()
	defer s.mu.Unlock()

	u, errReply := s.authorizeLocked(r, StateSolveChallenge)
	if errReply != nil {
		s.writeReply(w, *errReply)
		return
	}

	sum := sha512.Sum512([]byte(proof))
	if u.challengeHash == nil || subtle.ConstantTimeCompare(sum[:], u.challengeHash) != 1 {
		s.writeReply(w, reply{Error: "challengeNotSolvedCorrect"})
		return
	}
	if err := s.commitLocked(u, func(n *User) { n.State = StateSendWrappedKey }); err != nil {
		s.writeReply(w, reply{Error: "user can not be saved.", Todo: contactSysadmin})
		return
	}
	u.challenge, u.challengeHash = nil, nil
	s.writeReply(w, reply{Task: "sendWrappedKey", Salt: u.Salt})
}

func (s *Server) handleSendWrappedKey(w http.ResponseWriter, r *http.Request) {
	wrappedKey := r.FormValue("wrappedKey")
	if wrappedKey == "" {
		s.writeReply(w, reply{Error: "noWrappedKeySent"})
		return
	}
	wrappedKey = crypto.RestorePlus(wrappedKey)

	s.mu.Lock()
	defer s.mu.Unlock()

	u, errReply := s.authorizeLocked(r, StateSendWrappedKey)
	if errReply != nil {
		s.writeReply(w, *errReply)
		return
	}
	err := s.commitLocked(u, func(n *User) {
		n.WrappedKey = wrappedKey
		n.State = StateAccessWrappedKey
	})
	if err != nil {
		s.writeReply(w, reply{Error: "wrapped key can not be saved.", Todo: contactSysadmin})
		return
	}
	s.enrolled.Inc()
	s.writeReply(w, reply{Task: "ready"})
}

func (s *Server) handleGetPublicKey(w http.ResponseWriter, r *http.Request) {
	keyNameID := r.URL.Query().Get("keynameid")
	username := r.URL.Query().Get("username")

	s.mu.Lock()
	defer s.mu.Unlock()

	var u *user
	switch {
	case keyNameIDPattern.MatchString(keyNameID):
		u = s.keyNames[keyNameID]
	case usernamePattern.MatchString(username):
		u = s.users[username]
	default:
		s.writeReply(w, reply{
			Error: "error no valid keyNameId and no valid username",
			Todo:  `keyNameId must match '^[a-zA-Z0-9]+={0,2}$', or username must match '^\w+$'`,
		})
		return
	}

	if u == nil || u.PubKey == "" {
		s.writeReply(w, reply{Error: "noPubKeyFound", Todo: contactSysadmin})
		return
	}
	s.writeReply(w, reply{Task: "usePubKey", PubKey: u.PubKey, KeyNameID: u.KeyNameID})
}

// authorizeLocked resolves the bearer token of r and checks that the user is
// at the expected step.
func (s *Server) authorizeLocked(r *http.Request, expected State) (*user, *reply) {
	noToken := &reply{Error: "no OAuth Token found.", Todo: "send request with correct OAuthToken"}

	fields := strings.Fields(r.Header.Get("Authorization"))
	if len(fields) < 2 || !strings.EqualFold(fields[0], "bearer") {
		return nil, noToken
	}
	tok, ok := s.tokens[fields[1]]
	if !ok || !s.now().Before(tok.expires) {
		delete(s.tokens, fields[1])
		return nil, noToken
	}

	u := s.users[tok.username]
	if u.State != expected {
		return nil, &reply{Error: string(expected) + " is not next step", Todo: string(u.State)}
	}
	return u, nil
}

func (s *Server) userLocked(username string) *user {
	u, ok := s.users[username]
	if !ok {
		u = &user{User: User{Username: username, Salt: s.newSalt()}}
		s.users[username] = u
	}
	return u
}

// commitLocked applies change to a copy of u, saves the copy to the store,
// if any, and only then updates u. On failure u is left as it was.
func (s *Server) commitLocked(u *user, change func(next *User)) error {
	next := u.User
	change(&next)
	if s.store != nil {
		if err := s.store.Save(next); err != nil {
			s.log.Error("save account", "username", u.Username, "err", err)
			return err
		}
	}
	u.User = next
	return nil
}

func (s *Server) issueTokenLocked(username string) string {
	id := uuid.NewString()
	s.tokens[id] = token{username: username, expires: s.now().Add(s.ttl)}
	return id
}

// encryptChallengeLocked encrypts the pending challenge of u under pubKey,
// creating the challenge first if needed.
func (s *Server) encryptChallengeLocked(u *user, pubKey string) (string, error) {
	pub, err := crypto.ImportPublicKey(pubKey)
	if err != nil {
		return "", err
	}
	if u.challenge == nil {
		plain := s.challenge
		if plain == nil {
			plain = make([]byte, ChallengeSize)
			if _, err := rand.Read(plain); err != nil {
				return "", err
			}
		}
		sum := sha512.Sum512([]byte(crypto.ToBase64(plain)))
		u.challenge, u.challengeHash = plain, sum[:]
	}
	ct, err := crypto.Encrypt(pub, u.challenge)
	if err != nil {
		return "", err
	}
	return crypto.ToBase64(ct), nil
}

func (s *Server) newSalt() string {
	if s.salt != "" {
		return s.salt
	}
	b := make([]byte, SaltSize)
	_, _ = rand.Read(b)
	return crypto.ToBase64(b)
}

func newKeyNameID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (s *Server) writeReply(w http.ResponseWriter, rep reply) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		s.log.Error("write reply", "err", err)
	}
}
