package sessions

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	storeerrors "github.com/jrsteele09/go-storefront/internal/errors"
	"github.com/jrsteele09/go-storefront/storage"
	"github.com/jrsteele09/go-storefront/token"
	"github.com/jrsteele09/go-storefront/transport"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	DefaultStorageKey = "store-auth-state"

	loginPath    = "/api/auth/login"
	registerPath = "/api/auth/register"
)

// Listener is notified synchronously after every state change.
type Listener func(State)

// Store holds the current identity and credential, persists them under one
// key and notifies subscribers on change.
type Store struct {
	mu         sync.RWMutex
	repo       storage.Repo
	client     *transport.Client
	storageKey string
	state      State
	listeners  map[int]Listener
	nextID     int
	log        zerolog.Logger
	nowTime    func() time.Time
}

// StoreOption defines a function type to modify the Store instance.
type StoreOption func(*Store)

func WithLogger(log zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.log = log
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

func WithStorageKey(key string) StoreOption {
	return func(s *Store) {
		s.storageKey = key
	}
}

// NewStore creates a Store and restores any persisted session from repo.
// A missing, corrupt or expired record restores as signed out.
func NewStore(ctx context.Context, repo storage.Repo, client *transport.Client, options ...StoreOption) (*Store, error) {
	if repo == nil {
		return nil, errors.New("[sessions.NewStore] storage repo is required")
	}
	if client == nil {
		return nil, errors.New("[sessions.NewStore] transport client is required")
	}

	s := &Store{
		repo:       repo,
		client:     client,
		storageKey: DefaultStorageKey,
		listeners:  make(map[int]Listener),
		log:        zerolog.Nop(),
		nowTime:    time.Now,
	}
	for _, opt := range options {
		opt(s)
	}

	s.state = s.restore(ctx)
	return s, nil
}

func (s *Store) restore(ctx context.Context) State {
	raw, err := s.repo.Get(ctx, s.storageKey)
	if err != nil {
		if !storeerrors.Is(err, storeerrors.ErrNotFound) {
			s.log.Warn().Err(err).Msg("session restore failed, starting signed out")
		}
		return State{}
	}

	var stored State
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		s.log.Warn().Err(err).Msg("corrupt session record, starting signed out")
		return State{}
	}
	if !stored.Authenticated() {
		return State{}
	}

	if claims, err := token.Inspect(stored.Token); err == nil && claims.Expired(s.nowTime()) {
		s.log.Info().Str("username", stored.User.Username).Time("expiredAt", claims.ExpiresAt).Msg("stored credential expired")
		return State{}
	}
	return stored
}

// Current returns a copy of the current state.
func (s *Store) Current() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyState(s.state)
}

// Client returns the transport adapter authorized for the current credential,
// or the anonymous client when signed out.
func (s *Store) Client() *transport.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client.Authorized(s.state.Token)
}

// Login authenticates against the order service and replaces the current
// session. Any non-2xx response fails with ErrAuthentication.
func (s *Store) Login(ctx context.Context, username, password string) (Identity, error) {
	req := LoginRequest{Username: username, Password: password}
	if err := req.Validate(); err != nil {
		return Identity{}, err
	}

	var resp LoginResponse
	if err := s.client.Post(ctx, loginPath, req, &resp); err != nil {
		s.log.Info().Err(err).Str("username", username).Msg("login failed")
		if storeerrors.As(err, new(*transport.APIError)) {
			return Identity{}, storeerrors.Display(
				errors.Wrap(storeerrors.ErrAuthentication, err.Error()),
				transport.Message(err, "Login failed. Check your credentials."),
			)
		}
		return Identity{}, transport.Display(errors.Wrap(err, "[Store.Login]"), "Login failed. Check your credentials.")
	}
	if resp.AccessToken == "" {
		return Identity{}, storeerrors.Display(storeerrors.ErrAuthentication, "Login failed. Check your credentials.")
	}

	identity := Identity{
		UserID:   resp.UserID,
		Username: resp.Username,
		Email:    resp.Email,
	}
	s.setState(ctx, State{User: &identity, Token: resp.AccessToken})
	s.log.Info().Str("username", identity.Username).Int64("userId", identity.UserID).Msg("logged in")
	return identity, nil
}

// Logout clears the session. It never fails.
func (s *Store) Logout() {
	s.setState(context.Background(), State{})
	s.log.Info().Msg("logged out")
}

// Register creates an account. It does not sign the new user in.
func (s *Store) Register(ctx context.Context, req RegisterRequest) (RegisterResponse, error) {
	if err := req.Validate(); err != nil {
		return RegisterResponse{}, err
	}

	var resp RegisterResponse
	if err := s.client.Post(ctx, registerPath, req, &resp); err != nil {
		s.log.Info().Err(err).Str("username", req.Username).Msg("registration failed")
		return RegisterResponse{}, transport.Display(errors.Wrap(err, "[Store.Register]"), "Registration failed.")
	}
	return resp, nil
}

// Subscribe registers l for state changes and returns its unsubscribe func.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = l

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) setState(ctx context.Context, next State) {
	s.mu.Lock()
	s.state = copyState(next)
	listeners := make([]Listener, 0, len(s.listeners))
	for i := 0; i < s.nextID; i++ {
		if l, ok := s.listeners[i]; ok {
			listeners = append(listeners, l)
		}
	}
	s.mu.Unlock()

	s.persist(ctx, next)
	for _, l := range listeners {
		l(copyState(next))
	}
}

// persist is best-effort; the server remains the source of truth.
func (s *Store) persist(ctx context.Context, state State) {
	payload, err := json.Marshal(state)
	if err != nil {
		s.log.Warn().Err(err).Msg("encode session record")
		return
	}
	if err := s.repo.Set(ctx, s.storageKey, string(payload)); err != nil {
		s.log.Warn().Err(err).Msg("persist session record")
	}
}

func copyState(s State) State {
	if s.User == nil {
		return State{Token: s.Token}
	}
	user := *s.User
	return State{User: &user, Token: s.Token}
}
