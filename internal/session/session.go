// Package session holds the identity and token of the signed-in console user.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/revelly2/smart-store-front/domain"
	"github.com/revelly2/smart-store-front/internal/storage"
)

// Keys under which the session is persisted.
const (
	UserKey  = "user"
	TokenKey = "token"
)

var (
	ErrMissingCredentials = errors.New("please enter both username and password")
	ErrLoginFailed        = errors.New("login failed")
)

// Authenticator exchanges credentials for an identity and token.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*domain.LoginResult, error)
}

// State is what views and gates observe. Identity is nil when signed out.
type State struct {
	Loading  bool
	Identity *domain.Identity
}

// Authenticated reports whether a user is signed in.
func (s State) Authenticated() bool {
	return s.Identity != nil
}

type Listener func(State)

type Store struct {
	auth    Authenticator
	storage storage.Storage
	logger  *zap.Logger
	timeout time.Duration

	mu        sync.Mutex
	loading   bool
	identity  *domain.Identity
	token     string
	listeners map[int]Listener
	nextID    int
	onLogout  []func()
}

type Option func(*Store)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithTimeout bounds each call to the Authenticator.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// New returns a store in the loading state; call Init before use.
func New(auth Authenticator, st storage.Storage, opts ...Option) *Store {
	s := &Store{
		auth:      auth,
		storage:   st,
		logger:    zap.NewNop(),
		timeout:   5 * time.Second,
		loading:   true,
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init restores a previously persisted session. Malformed state is deleted
// and the store comes up signed out.
func (s *Store) Init(ctx context.Context) error {
	identity, token, err := s.restore(ctx)
	if err != nil {
		s.logger.Warn("discarding persisted session", zap.Error(err))
		if delErr := s.storage.Delete(ctx, UserKey, TokenKey); delErr != nil {
			s.logger.Warn("unable to clear persisted session", zap.Error(delErr))
		}
		identity, token = nil, ""
	}

	s.mu.Lock()
	s.identity = identity
	s.token = token
	s.loading = false
	s.mu.Unlock()
	s.publish()
	return nil
}

func (s *Store) restore(ctx context.Context) (*domain.Identity, string, error) {
	rawUser, userErr := s.storage.Get(ctx, UserKey)
	token, tokenErr := s.storage.Get(ctx, TokenKey)
	if errors.Is(userErr, storage.ErrNotFound) && errors.Is(tokenErr, storage.ErrNotFound) {
		return nil, "", nil
	}
	if userErr != nil {
		return nil, "", fmt.Errorf("read user: %w", userErr)
	}
	if tokenErr != nil {
		return nil, "", fmt.Errorf("read token: %w", tokenErr)
	}
	if strings.TrimSpace(token) == "" {
		return nil, "", errors.New("empty token")
	}
	var identity domain.Identity
	if err := json.Unmarshal([]byte(rawUser), &identity); err != nil {
		return nil, "", fmt.Errorf("decode user: %w", err)
	}
	if !identity.Valid() {
		return nil, "", errors.New("incomplete user")
	}
	return &identity, token, nil
}

// Login authenticates and persists the session. On any failure the stored
// state is left as it was.
func (s *Store) Login(ctx context.Context, username, password string) (domain.Identity, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return domain.Identity{}, ErrMissingCredentials
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	res, err := s.auth.Login(callCtx, username, password)
	if err != nil {
		s.logger.Info("login rejected", zap.String("username", username), zap.Error(err))
		return domain.Identity{}, fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}
	if res == nil || !res.User.Valid() || res.Token == "" {
		return domain.Identity{}, fmt.Errorf("%w: incomplete response", ErrLoginFailed)
	}

	raw, err := json.Marshal(res.User)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("encode user: %w", err)
	}
	prevUser, prevErr := s.storage.Get(ctx, UserKey)
	if prevErr != nil && !errors.Is(prevErr, storage.ErrNotFound) {
		return domain.Identity{}, fmt.Errorf("%w: read user: %w", ErrLoginFailed, prevErr)
	}
	if err := s.storage.Set(ctx, UserKey, string(raw)); err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}
	if err := s.storage.Set(ctx, TokenKey, res.Token); err != nil {
		s.restoreUser(ctx, prevUser, prevErr == nil)
		return domain.Identity{}, fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}

	identity := res.User
	s.mu.Lock()
	s.identity = &identity
	s.token = res.Token
	s.loading = false
	s.mu.Unlock()

	s.logger.Info("login successful", zap.String("username", identity.Username), zap.String("role", string(identity.Role)))
	s.publish()
	return identity, nil
}

// restoreUser puts back the user value a failed login overwrote.
func (s *Store) restoreUser(ctx context.Context, prev string, existed bool) {
	var err error
	if existed {
		err = s.storage.Set(ctx, UserKey, prev)
	} else {
		err = s.storage.Delete(ctx, UserKey)
	}
	if err != nil {
		s.logger.Warn("unable to restore persisted user", zap.Error(err))
	}
}

// Logout clears the identity, the token, the persisted keys and runs the
// registered logout hooks.
func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	s.identity = nil
	s.token = ""
	hooks := append([]func(){}, s.onLogout...)
	s.mu.Unlock()

	if err := s.storage.Delete(ctx, UserKey, TokenKey); err != nil {
		s.logger.Warn("unable to clear persisted session", zap.Error(err))
	}
	for _, hook := range hooks {
		hook()
	}
	s.publish()
}

// OnLogout registers fn to run on every logout (e.g. clearing the cart).
func (s *Store) OnLogout(fn func()) {
	s.mu.Lock()
	s.onLogout = append(s.onLogout, fn)
	s.mu.Unlock()
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Identity returns a copy of the signed-in identity.
func (s *Store) Identity() (domain.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return domain.Identity{}, false
	}
	return *s.identity, true
}

// Token returns the bearer token, or "" when signed out.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) stateLocked() State {
	st := State{Loading: s.loading}
	if s.identity != nil {
		id := *s.identity
		st.Identity = &id
	}
	return st
}

func (s *Store) publish() {
	s.mu.Lock()
	st := s.stateLocked()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()
	for _, l := range listeners {
		l(st)
	}
}
