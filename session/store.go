package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"golang.org/x/text/unicode/norm"

	"github.com/jmcleod/oaclient/api"
	"github.com/jmcleod/oaclient/storage"
)

// Keys used in the persisted mirror.
const (
	TokenKey    = "token"
	UserInfoKey = "userInfo"
)

// DefaultGuestName is the display name used when no profile is loaded.
const DefaultGuestName = "访客"

// ErrProfileUnavailable wraps the failure that forced a logout while
// fetching the profile.
var ErrProfileUnavailable = errors.New("profile unavailable")

// Route is a navigation intent returned by actions.
type Route string

const (
	// RouteNone means the caller should stay where it is.
	RouteNone Route = ""
	// RouteHome is the landing page after a successful login.
	RouteHome Route = "/"
	// RouteLogin is the login page.
	RouteLogin Route = "/login"
)

// Gateway is the subset of the request gateway the store calls.
type Gateway interface {
	Login(ctx context.Context, creds api.Credentials) (*api.TokenPair, error)
	GetUserInfo(ctx context.Context) (*api.User, error)
}

var _ Gateway = (*api.Client)(nil)

// State is a point-in-time copy of the session.
type State struct {
	Token    *string
	UserInfo *api.User
}

// Store is the session store. It implements api.TokenSource.
type Store struct {
	gateway   Gateway
	mirror    storage.Store
	logger    *slog.Logger
	clock     clockwork.Clock
	guestName string

	mu       sync.RWMutex
	token    string
	userInfo *api.User
}

var _ api.TokenSource = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the structured logger.
// If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock sets the clock used for token expiry checks.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// WithGuestName overrides DefaultGuestName.
func WithGuestName(name string) Option {
	return func(s *Store) {
		s.guestName = name
	}
}

// Open creates a Store seeded from the persisted mirror. A missing token or
// profile leaves the corresponding field empty; an undecodable profile is
// treated as missing.
func Open(ctx context.Context, mirror storage.Store, gateway Gateway, opts ...Option) (*Store, error) {
	s := &Store{
		gateway:   gateway,
		mirror:    mirror,
		guestName: DefaultGuestName,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}

	tok, err := mirror.Get(ctx, TokenKey)
	switch {
	case err == nil:
		s.token = string(tok)
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("loading persisted token: %w", err)
	}

	raw, err := mirror.Get(ctx, UserInfoKey)
	switch {
	case err == nil:
		var u api.User
		if err := json.Unmarshal(raw, &u); err != nil {
			s.logger.Warn("ignoring unreadable persisted profile", "error", err)
		} else {
			s.userInfo = &u
		}
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("loading persisted profile: %w", err)
	}
	return s, nil
}

// Token returns the current bearer token.
func (s *Store) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// IsLoggedIn reports whether a token is held.
func (s *Store) IsLoggedIn() bool {
	_, ok := s.Token()
	return ok
}

// Username returns the profile's real name, or the guest name when no
// profile is loaded.
func (s *Store) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.userInfo != nil && s.userInfo.Realname != "" {
		return s.userInfo.Realname
	}
	return s.guestName
}

// UserInfo returns a copy of the cached profile, or nil.
func (s *Store) UserInfo() *api.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.userInfo == nil {
		return nil
	}
	u := *s.userInfo
	return &u
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st State
	if s.token != "" {
		tok := s.token
		st.Token = &tok
	}
	if s.userInfo != nil {
		u := *s.userInfo
		st.UserInfo = &u
	}
	return st
}

// Login exchanges creds for a token, persists it and fetches the profile.
// A login failure is returned unchanged and leaves the session untouched, as
// does a failure to persist the new token (no profile is fetched then). A
// profile failure does not fail Login: the store is already anonymous again
// by the time Login returns, and the caller is still sent home.
func (s *Store) Login(ctx context.Context, creds api.Credentials) (Route, error) {
	creds.Email = norm.NFC.String(strings.TrimSpace(creds.Email))

	tp, err := s.gateway.Login(ctx, creds)
	if err != nil {
		return RouteNone, err
	}

	if err := s.setToken(ctx, tp.Access); err != nil {
		return RouteNone, err
	}
	s.logger.Info("login succeeded", slog.String("email", creds.Email))

	if err := s.FetchProfile(ctx); err != nil {
		s.logger.Warn("profile fetch after login failed", "error", err)
	}
	return RouteHome, nil
}

// FetchProfile loads the current user's profile and persists it. Any
// failure, whether from the service or while persisting the profile, clears
// the session in memory and in the mirror and is returned wrapped in
// ErrProfileUnavailable. It never produces a navigation intent.
func (s *Store) FetchProfile(ctx context.Context) error {
	u, err := s.gateway.GetUserInfo(ctx)
	if err != nil {
		s.logger.Warn("failed to fetch profile, token may have expired", "error", err)
		return s.dropProfile(ctx, err)
	}

	raw, err := json.Marshal(u)
	if err != nil {
		return s.dropProfile(ctx, fmt.Errorf("encoding profile: %w", err))
	}
	if err := s.mirror.Set(ctx, UserInfoKey, raw); err != nil {
		s.logger.Warn("failed to persist profile", "error", err)
		return s.dropProfile(ctx, fmt.Errorf("persisting profile: %w", err))
	}

	s.mu.Lock()
	s.userInfo = u
	s.mu.Unlock()
	return nil
}

// dropProfile clears the session after a failed profile load.
func (s *Store) dropProfile(ctx context.Context, cause error) error {
	err := fmt.Errorf("%w: %w", ErrProfileUnavailable, cause)
	if clearErr := s.clear(ctx); clearErr != nil {
		return errors.Join(err, clearErr)
	}
	return err
}

// Logout clears the session in memory and in the mirror and returns
// RouteLogin. The in-memory state is cleared even if the mirror fails.
func (s *Store) Logout(ctx context.Context) (Route, error) {
	if err := s.clear(ctx); err != nil {
		return RouteLogin, err
	}
	s.logger.Info("logged out")
	return RouteLogin, nil
}

// setToken stores token in memory and in the mirror. If the mirror rejects
// it, the previous in-memory token is restored.
func (s *Store) setToken(ctx context.Context, token string) error {
	s.mu.Lock()
	prev := s.token
	s.token = token
	s.mu.Unlock()

	if err := s.mirror.Set(ctx, TokenKey, []byte(token)); err != nil {
		s.mu.Lock()
		s.token = prev
		s.mu.Unlock()
		return fmt.Errorf("persisting token: %w", err)
	}
	return nil
}

func (s *Store) clear(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.userInfo = nil
	s.mu.Unlock()

	return errors.Join(
		s.mirror.Delete(ctx, TokenKey),
		s.mirror.Delete(ctx, UserInfoKey),
	)
}
