package cmd

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/oaclient/api"
	"github.com/jmcleod/oaclient/internal/oatest"
	"github.com/jmcleod/oaclient/session"
	boltstore "github.com/jmcleod/oaclient/storage/bbolt"
)

type cli struct {
	t       *testing.T
	srv     *oatest.Server
	dataDir string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	srv := oatest.New(t)
	srv.AddAccount(oatest.Account{
		User:     api.User{UID: "alice", Realname: "Alice", Email: "alice@example.com", IsStaff: true, IsActive: true},
		Password: "s3cret",
		Token:    "T1",
	})
	return &cli{t: t, srv: srv, dataDir: t.TempDir()}
}

func (c *cli) run(stdin string, args ...string) (stdout, stderr string, err error) {
	c.t.Helper()
	a := &app{stdin: strings.NewReader(stdin)}
	root := newRootCmd(a)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{
		"--config=",
		"--server", c.srv.URL,
		"--store", "bbolt",
		"--data-dir", c.dataDir,
		"--no-color",
	}, args...))
	err = root.ExecuteContext(c.t.Context())
	a.close()
	return out.String(), errOut.String(), err
}

func (c *cli) login() {
	c.t.Helper()
	_, _, err := c.run("s3cret\n", "login", "alice@example.com", "--password-stdin")
	require.NoError(c.t, err)
}

// stored reads a key straight from the session database. The file is
// closed again so later commands can take the lock.
func (c *cli) stored(key string) ([]byte, error) {
	c.t.Helper()
	s, err := boltstore.NewStoreFromFile(filepath.Join(c.dataDir, sessionDBName), "default", nil)
	require.NoError(c.t, err)
	defer s.Close()
	return s.Get(c.t.Context(), key)
}

func TestLoginPersistsSession(t *testing.T) {
	c := newCLI(t)

	_, stderr, err := c.run("s3cret\n", "login", "alice@example.com", "--password-stdin")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Signed in as Alice")
	assert.Contains(t, stderr, "→ /")

	tok, err := c.stored(session.TokenKey)
	require.NoError(t, err)
	assert.Equal(t, "T1", string(tok))

	stdout, _, err := c.run("", "whoami", "--json")
	require.NoError(t, err)
	var got whoami
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.True(t, got.LoggedIn)
	assert.Equal(t, "Alice", got.Username)
	require.NotNil(t, got.User)
	assert.Equal(t, "alice", got.User.UID)
}

func TestLoginWrongPassword(t *testing.T) {
	c := newCLI(t)

	_, _, err := c.run("nope\n", "login", "alice@example.com", "--password-stdin")
	require.Error(t, err)
	assert.True(t, api.IsUnauthorized(err))

	stdout, _, err := c.run("", "whoami")
	require.NoError(t, err)
	assert.Contains(t, stdout, "访客 (not signed in)")
}

func TestLoginWithoutTerminalNeedsPassword(t *testing.T) {
	c := newCLI(t)

	_, _, err := c.run("", "login", "alice@example.com")
	assert.ErrorIs(t, err, errNoTerminal)
}

func TestProtectedCommandsRequireLogin(t *testing.T) {
	c := newCLI(t)

	_, stderr, err := c.run("", "departments", "list")
	assert.ErrorIs(t, err, errNotLoggedIn)
	assert.Contains(t, stderr, "→ /login")
	assert.Empty(t, c.srv.RequestsTo("/api/departments/"))
}

func TestLogoutClearsSession(t *testing.T) {
	c := newCLI(t)
	c.login()

	_, stderr, err := c.run("", "logout")
	require.NoError(t, err)
	assert.Contains(t, stderr, "→ /login")

	_, err = c.stored(session.TokenKey)
	assert.Error(t, err)

	_, _, err = c.run("", "dashboard")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestProfileFailureOnLoginClearsSession(t *testing.T) {
	c := newCLI(t)
	c.srv.FailProfile(401)

	_, stderr, err := c.run("s3cret\n", "login", "alice@example.com", "--password-stdin")
	require.NoError(t, err)
	assert.Contains(t, stderr, "profile could not be loaded")

	_, _, err = c.run("", "managers")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestExpiredTokenIsCleared(t *testing.T) {
	c := newCLI(t)
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)
	c.srv.AddAccount(oatest.Account{
		User:     api.User{UID: "bob", Realname: "Bob", Email: "bob@example.com"},
		Password: "pw",
		Token:    expired,
	})

	_, _, err = c.run("pw\n", "login", "bob@example.com", "--password-stdin")
	require.NoError(t, err)

	stdout, _, err := c.run("", "whoami")
	require.NoError(t, err)
	assert.Contains(t, stdout, "token expired")

	_, stderr, err := c.run("", "dashboard")
	assert.ErrorIs(t, err, errSessionExpired)
	assert.Contains(t, stderr, "→ /login")
	assert.Empty(t, c.srv.RequestsTo("/api/dashboard/data/"))

	_, err = c.stored(session.TokenKey)
	assert.Error(t, err)
}

func TestDepartmentsLifecycle(t *testing.T) {
	c := newCLI(t)
	c.login()

	stdout, _, err := c.run("", "--json", "departments", "create",
		"--name", "Engineering", "--intro", "Builds things", "--manager", "alice")
	require.NoError(t, err)
	var created api.Department
	require.NoError(t, json.Unmarshal([]byte(stdout), &created))
	assert.Equal(t, "Engineering", created.Name)
	require.NotNil(t, created.Manager)
	assert.Equal(t, "Alice", created.Manager.Realname)

	reqs := c.srv.RequestsTo("/api/departments/")
	require.NotEmpty(t, reqs)
	assert.Equal(t, "Bearer T1", reqs[len(reqs)-1].Authorization)

	id := jsonID(created.ID)
	_, _, err = c.run("", "departments", "update", id, "--name", "R&D")
	require.NoError(t, err)
	d, ok := c.srv.Department(created.ID)
	require.True(t, ok)
	assert.Equal(t, "R&D", d.Name)
	assert.Empty(t, d.Intro)

	stdout, _, err = c.run("", "departments", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "R&D")

	_, _, err = c.run("", "departments", "delete", id)
	assert.ErrorIs(t, err, errNoTerminal)

	_, _, err = c.run("", "departments", "delete", id, "--yes")
	require.NoError(t, err)
	_, ok = c.srv.Department(created.ID)
	assert.False(t, ok)

	_, _, err = c.run("", "departments", "delete", "abc", "--yes")
	assert.ErrorContains(t, err, "positive integer")
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func TestUsersLifecycle(t *testing.T) {
	c := newCLI(t)
	c.login()
	dept := c.srv.AddDepartment(api.Department{Name: "Sales"})

	stdout, _, err := c.run("", "--json", "users", "create",
		"--realname", "Carol", "--email", "carol@example.com", "--password", "pw",
		"--department", jsonID(dept.ID))
	require.NoError(t, err)
	var carol api.User
	require.NoError(t, json.Unmarshal([]byte(stdout), &carol))
	require.NotNil(t, carol.Department)
	assert.Equal(t, "Sales", carol.Department.Name)

	_, _, err = c.run("", "users", "update", carol.UID, "--telephone", "555-0100", "--no-department")
	require.NoError(t, err)
	u, ok := c.srv.User(carol.UID)
	require.True(t, ok)
	assert.Equal(t, "555-0100", u.Telephone)
	assert.Nil(t, u.Department)
	assert.Equal(t, "Carol", u.Realname)

	_, _, err = c.run("", "users", "update", carol.UID)
	assert.ErrorContains(t, err, "nothing to update")

	stdout, _, err = c.run("", "users", "list", "--filter", "realname=Carol")
	require.NoError(t, err)
	assert.Contains(t, stdout, "carol@example.com")
	assert.NotContains(t, stdout, "alice@example.com")

	_, _, err = c.run("", "users", "delete", carol.UID, "-y")
	require.NoError(t, err)
	_, ok = c.srv.User(carol.UID)
	assert.False(t, ok)
}

func TestUsersListAllPages(t *testing.T) {
	c := newCLI(t)
	c.login()
	for _, name := range []string{"Dan", "Eve", "Fay"} {
		c.srv.AddAccount(oatest.Account{User: api.User{UID: strings.ToLower(name), Realname: name, Email: strings.ToLower(name) + "@example.com"}})
	}
	c.srv.PaginateUsers(2)

	stdout, _, err := c.run("", "--json", "users", "list", "--all")
	require.NoError(t, err)
	var users []api.User
	require.NoError(t, json.Unmarshal([]byte(stdout), &users))
	assert.Len(t, users, 4)

	stdout, _, err = c.run("", "users", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "showing 2 of 4")
}

func TestDashboardAndManagers(t *testing.T) {
	c := newCLI(t)
	c.login()
	c.srv.SetDashboard(api.DashboardData{"users": 3, "departments": 1})

	stdout, _, err := c.run("", "dashboard")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Welcome, Alice")
	assert.Contains(t, stdout, "departments:")

	stdout, _, err = c.run("", "managers")
	require.NoError(t, err)
	assert.Contains(t, stdout, "alice")
}

func TestVersionAndConfigNeedNoSession(t *testing.T) {
	c := newCLI(t)

	stdout, _, err := c.run("", "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Version dev")

	stdout, _, err = c.run("", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, c.srv.URL)
	assert.Contains(t, stdout, "bbolt")

	assert.Empty(t, c.srv.Requests())
}

func TestInvalidStore(t *testing.T) {
	c := newCLI(t)

	_, _, err := c.run("", "--store", "floppy", "whoami")
	assert.ErrorContains(t, err, `unknown store "floppy"`)
}
