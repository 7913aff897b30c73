package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/oaclient/api"
	"github.com/jmcleod/oaclient/storage"
	"github.com/jmcleod/oaclient/storage/memory"
)

// fakeGateway answers Login and GetUserInfo from canned values and counts
// calls.
type fakeGateway struct {
	tokens     *api.TokenPair
	loginErr   error
	profile    *api.User
	profileErr error

	logins       []api.Credentials
	profileCalls int
	// tokenAtProfile is the token the store exposed when the profile was
	// requested.
	tokenAtProfile string
	source         api.TokenSource
}

func (g *fakeGateway) Login(_ context.Context, creds api.Credentials) (*api.TokenPair, error) {
	g.logins = append(g.logins, creds)
	if g.loginErr != nil {
		return nil, g.loginErr
	}
	return g.tokens, nil
}

func (g *fakeGateway) GetUserInfo(context.Context) (*api.User, error) {
	g.profileCalls++
	if g.source != nil {
		g.tokenAtProfile, _ = g.source.Token()
	}
	if g.profileErr != nil {
		return nil, g.profileErr
	}
	u := *g.profile
	return &u, nil
}

func strptr(s string) *string { return &s }

func openStore(t *testing.T, mirror storage.Store, gw *fakeGateway, opts ...Option) *Store {
	t.Helper()
	s, err := Open(t.Context(), mirror, gw, opts...)
	require.NoError(t, err)
	gw.source = s
	return s
}

func persisted(t *testing.T, mirror storage.Store) State {
	t.Helper()
	var st State
	if tok, err := mirror.Get(t.Context(), TokenKey); err == nil {
		st.Token = strptr(string(tok))
	} else {
		require.ErrorIs(t, err, storage.ErrNotFound)
	}
	if raw, err := mirror.Get(t.Context(), UserInfoKey); err == nil {
		var u api.User
		require.NoError(t, json.Unmarshal(raw, &u))
		st.UserInfo = &u
	} else {
		require.ErrorIs(t, err, storage.ErrNotFound)
	}
	return st
}

func TestLoginThenProfile(t *testing.T) {
	mirror := memory.NewStore()
	gw := &fakeGateway{
		tokens:  &api.TokenPair{Access: "T1"},
		profile: &api.User{Realname: "Alice"},
	}
	s := openStore(t, mirror, gw)
	require.False(t, s.IsLoggedIn())

	route, err := s.Login(t.Context(), api.Credentials{Email: "a", Password: "b"})
	require.NoError(t, err)
	assert.Equal(t, RouteHome, route)

	want := State{Token: strptr("T1"), UserInfo: &api.User{Realname: "Alice"}}
	if diff := cmp.Diff(want, s.Snapshot()); diff != "" {
		t.Errorf("in-memory state mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, persisted(t, mirror)); diff != "" {
		t.Errorf("persisted state mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, 1, gw.profileCalls)
	assert.Equal(t, "T1", gw.tokenAtProfile, "profile must be requested with the new token")
	assert.True(t, s.IsLoggedIn())
	assert.Equal(t, "Alice", s.Username())
}

func TestLoginProfileFailure(t *testing.T) {
	mirror := memory.NewStore()
	gw := &fakeGateway{
		tokens:     &api.TokenPair{Access: "T1"},
		profileErr: errors.New("401 from service"),
	}
	s := openStore(t, mirror, gw)

	route, err := s.Login(t.Context(), api.Credentials{Email: "a", Password: "b"})
	require.NoError(t, err)
	assert.Equal(t, RouteHome, route)

	assert.Equal(t, State{}, s.Snapshot())
	assert.Equal(t, State{}, persisted(t, mirror))
	assert.Empty(t, mirror.Keys())
	assert.Equal(t, 1, gw.profileCalls)
	assert.False(t, s.IsLoggedIn())
	assert.Equal(t, DefaultGuestName, s.Username())
}

func TestLoginFailurePropagates(t *testing.T) {
	mirror := memory.NewStore()
	loginErr := errors.New("bad credentials")
	gw := &fakeGateway{loginErr: loginErr}
	s := openStore(t, mirror, gw)

	route, err := s.Login(t.Context(), api.Credentials{Email: "a", Password: "b"})
	assert.ErrorIs(t, err, loginErr)
	assert.Equal(t, RouteNone, route)
	assert.Zero(t, gw.profileCalls)
	assert.Equal(t, State{}, s.Snapshot())
	assert.Empty(t, mirror.Keys())
}

func TestLoginFailureKeepsExistingSession(t *testing.T) {
	mirror := memory.NewStore()
	require.NoError(t, mirror.Set(t.Context(), TokenKey, []byte("OLD")))
	gw := &fakeGateway{loginErr: errors.New("bad credentials")}
	s := openStore(t, mirror, gw)

	_, err := s.Login(t.Context(), api.Credentials{Email: "a", Password: "b"})
	require.Error(t, err)
	tok, ok := s.Token()
	assert.True(t, ok)
	assert.Equal(t, "OLD", tok)
}

func TestLoginNormalizesEmail(t *testing.T) {
	gw := &fakeGateway{tokens: &api.TokenPair{Access: "T1"}, profile: &api.User{}}
	s := openStore(t, memory.NewStore(), gw)

	// "e" followed by a combining acute accent composes to U+00E9.
	_, err := s.Login(t.Context(), api.Credentials{Email: "  jose\u0301@example.com\n", Password: " pw "})
	require.NoError(t, err)
	require.Len(t, gw.logins, 1)
	assert.Equal(t, "jos\u00e9@example.com", gw.logins[0].Email)
	assert.Equal(t, " pw ", gw.logins[0].Password, "passwords are sent verbatim")
}

func TestFetchProfileFailureClearsSession(t *testing.T) {
	mirror := memory.NewStore()
	require.NoError(t, mirror.Set(t.Context(), TokenKey, []byte("STALE")))
	require.NoError(t, mirror.Set(t.Context(), UserInfoKey, []byte(`{"uid":"a","realname":"Alice"}`)))
	cause := errors.New("token expired")
	gw := &fakeGateway{profileErr: cause}
	s := openStore(t, mirror, gw)
	require.True(t, s.IsLoggedIn())
	require.Equal(t, "Alice", s.Username())

	err := s.FetchProfile(t.Context())
	assert.ErrorIs(t, err, ErrProfileUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, State{}, s.Snapshot())
	assert.Empty(t, mirror.Keys())
}

func TestFetchProfileRefreshesCachedProfile(t *testing.T) {
	mirror := memory.NewStore()
	require.NoError(t, mirror.Set(t.Context(), TokenKey, []byte("T1")))
	require.NoError(t, mirror.Set(t.Context(), UserInfoKey, []byte(`{"uid":"a","realname":"Old Name"}`)))
	gw := &fakeGateway{profile: &api.User{UID: "a", Realname: "New Name"}}
	s := openStore(t, mirror, gw)

	require.NoError(t, s.FetchProfile(t.Context()))
	assert.Equal(t, "New Name", s.Username())
	assert.Equal(t, "New Name", persisted(t, mirror).UserInfo.Realname)
}

func TestLogout(t *testing.T) {
	mirror := memory.NewStore()
	gw := &fakeGateway{tokens: &api.TokenPair{Access: "T1"}, profile: &api.User{Realname: "Alice"}}
	s := openStore(t, mirror, gw)
	_, err := s.Login(t.Context(), api.Credentials{Email: "a", Password: "b"})
	require.NoError(t, err)

	route, err := s.Logout(t.Context())
	require.NoError(t, err)
	assert.Equal(t, RouteLogin, route)
	assert.Equal(t, State{}, s.Snapshot())
	assert.Equal(t, State{}, persisted(t, mirror))

	// Logging out twice is harmless.
	route, err = s.Logout(t.Context())
	require.NoError(t, err)
	assert.Equal(t, RouteLogin, route)
}

func TestOpenRestoresPersistedSession(t *testing.T) {
	mirror := memory.NewStore()
	gw := &fakeGateway{tokens: &api.TokenPair{Access: "T1"}, profile: &api.User{UID: "a", Realname: "Alice", Email: "a@example.com"}}
	first := openStore(t, mirror, gw)
	_, err := first.Login(t.Context(), api.Credentials{Email: "a", Password: "b"})
	require.NoError(t, err)

	second := openStore(t, mirror, &fakeGateway{})
	if diff := cmp.Diff(first.Snapshot(), second.Snapshot()); diff != "" {
		t.Errorf("reopened state mismatch (-first +second):\n%s", diff)
	}
}

func TestOpenIgnoresCorruptProfile(t *testing.T) {
	mirror := memory.NewStore()
	require.NoError(t, mirror.Set(t.Context(), TokenKey, []byte("T1")))
	require.NoError(t, mirror.Set(t.Context(), UserInfoKey, []byte("{not json")))

	s := openStore(t, mirror, &fakeGateway{})
	assert.True(t, s.IsLoggedIn())
	assert.Nil(t, s.UserInfo())
	assert.Equal(t, DefaultGuestName, s.Username())
}

func TestOpenStorageError(t *testing.T) {
	boom := errors.New("disk on fire")
	_, err := Open(t.Context(), &failingStore{getErr: boom}, &fakeGateway{})
	assert.ErrorIs(t, err, boom)
}

func TestGuestName(t *testing.T) {
	s := openStore(t, memory.NewStore(), &fakeGateway{}, WithGuestName("Guest"))
	assert.Equal(t, "Guest", s.Username())
}

func TestLogoutClearsMemoryEvenIfMirrorFails(t *testing.T) {
	boom := errors.New("read-only")
	mirror := &failingStore{Store: memory.NewStore(), deleteErr: boom}
	require.NoError(t, mirror.Set(t.Context(), TokenKey, []byte("T1")))
	s := openStore(t, mirror, &fakeGateway{})

	route, err := s.Logout(t.Context())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, RouteLogin, route)
	assert.False(t, s.IsLoggedIn())
}

func TestLoginProfilePersistFailureClearsSession(t *testing.T) {
	boom := errors.New("quota exceeded")
	mirror := &failingStore{Store: memory.NewStore(), setErrs: map[string]error{UserInfoKey: boom}}
	gw := &fakeGateway{
		tokens:  &api.TokenPair{Access: "T1"},
		profile: &api.User{Realname: "Alice"},
	}
	s := openStore(t, mirror, gw)

	route, err := s.Login(t.Context(), api.Credentials{Email: "a", Password: "b"})
	require.NoError(t, err)
	assert.Equal(t, RouteHome, route)

	assert.Equal(t, State{}, s.Snapshot())
	assert.Equal(t, State{}, persisted(t, mirror))
	assert.False(t, s.IsLoggedIn())
	assert.Equal(t, DefaultGuestName, s.Username())

	err = s.FetchProfile(t.Context())
	assert.ErrorIs(t, err, ErrProfileUnavailable)
	assert.ErrorIs(t, err, boom)
}

func TestLoginTokenPersistFailureKeepsPreviousToken(t *testing.T) {
	boom := errors.New("disk full")
	mirror := &failingStore{Store: memory.NewStore()}
	require.NoError(t, mirror.Set(t.Context(), TokenKey, []byte("OLD")))
	mirror.setErrs = map[string]error{TokenKey: boom}
	gw := &fakeGateway{tokens: &api.TokenPair{Access: "T1"}, profile: &api.User{Realname: "Alice"}}
	s := openStore(t, mirror, gw)

	route, err := s.Login(t.Context(), api.Credentials{Email: "a", Password: "b"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, RouteNone, route)
	assert.Equal(t, 0, gw.profileCalls)

	tok, ok := s.Token()
	assert.True(t, ok)
	assert.Equal(t, "OLD", tok)
}

func TestUserInfoReturnsCopy(t *testing.T) {
	gw := &fakeGateway{tokens: &api.TokenPair{Access: "T1"}, profile: &api.User{Realname: "Alice"}}
	s := openStore(t, memory.NewStore(), gw)
	_, err := s.Login(t.Context(), api.Credentials{})
	require.NoError(t, err)

	u := s.UserInfo()
	u.Realname = "Mallory"
	assert.Equal(t, "Alice", s.Username())
}

type failingStore struct {
	*memory.Store
	getErr    error
	deleteErr error
	// setErrs fails Set for the listed keys.
	setErrs map[string]error
}

func (f *failingStore) Set(ctx context.Context, key string, value []byte) error {
	if err := f.setErrs[key]; err != nil {
		return err
	}
	return f.Store.Set(ctx, key, value)
}

func (f *failingStore) Get(ctx context.Context, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.Store.Get(ctx, key)
}

func (f *failingStore) Delete(ctx context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Store.Delete(ctx, key)
}
