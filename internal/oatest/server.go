// Package oatest provides an in-process fake of the OA REST service for
// tests. It serves the same routes under /api and records every request it
// receives.
package oatest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/oaclient/api"
)

// Request is a recorded inbound request.
type Request struct {
	Method        string
	Path          string
	Query         url.Values
	Authorization string
	RequestID     string
	Body          []byte
}

// Account is a user that can log in.
type Account struct {
	User     api.User
	Password string
	// Token is the access token issued on login. Defaults to "tok-<uid>".
	Token string
}

// Server is a fake OA service.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	requests    []Request
	accounts    map[string]*Account // by email
	tokens      map[string]string   // access token -> uid
	users       map[string]api.User
	departments map[int64]api.Department
	nextDeptID  int64
	nextUID     int
	profileErr  int
	dashboard   api.DashboardData
	pageSize    int
}

// New starts a fake server and stops it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		accounts:    make(map[string]*Account),
		tokens:      make(map[string]string),
		users:       make(map[string]api.User),
		departments: make(map[int64]api.Department),
		nextDeptID:  1,
		dashboard: api.DashboardData{
			"user_count":       float64(0),
			"department_count": float64(0),
		},
	}
	r := chi.NewRouter()
	r.Mount("/api", s.routes())
	s.Server = httptest.NewServer(s.record(r))
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/token/", s.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/user/info/", s.handleUserInfo)
		r.Get("/departments/", s.handleListDepartments)
		r.Post("/departments/", s.handleCreateDepartment)
		r.Put("/departments/{id}/", s.handleUpdateDepartment)
		r.Delete("/departments/{id}/", s.handleDeleteDepartment)
		r.Get("/users/", s.handleListUsers)
		r.Post("/users/", s.handleCreateUser)
		r.Patch("/users/{uid}/", s.handleUpdateUser)
		r.Delete("/users/{uid}/", s.handleDeleteUser)
		r.Get("/dashboard/data/", s.handleDashboard)
		r.Get("/managers/", s.handleManagers)
	})
	return r
}

// AddAccount registers a user that can log in and returns it.
func (s *Server) AddAccount(a Account) *Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.User.UID == "" {
		s.nextUID++
		a.User.UID = fmt.Sprintf("u%d", s.nextUID)
	}
	if a.Token == "" {
		a.Token = "tok-" + a.User.UID
	}
	if a.User.DateJoined.IsZero() {
		a.User.DateJoined = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	}
	acct := a
	s.accounts[a.User.Email] = &acct
	s.tokens[a.Token] = a.User.UID
	s.users[a.User.UID] = a.User
	return &acct
}

// AddDepartment stores a department and returns it with its assigned id.
func (s *Server) AddDepartment(d api.Department) api.Department {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.ID = s.nextDeptID
	s.nextDeptID++
	s.departments[d.ID] = d
	return d
}

// FailProfile makes GET /user/info/ answer with status. Zero restores normal
// behavior.
func (s *Server) FailProfile(status int) {
	s.mu.Lock()
	s.profileErr = status
	s.mu.Unlock()
}

// PaginateUsers makes GET /users/ answer with a paginated envelope.
func (s *Server) PaginateUsers(pageSize int) {
	s.mu.Lock()
	s.pageSize = pageSize
	s.mu.Unlock()
}

// SetDashboard replaces the dashboard payload.
func (s *Server) SetDashboard(d api.DashboardData) {
	s.mu.Lock()
	s.dashboard = d
	s.mu.Unlock()
}

// Requests returns a copy of the recorded requests.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// RequestsTo returns the recorded requests whose path equals path.
func (s *Server) RequestsTo(path string) []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// User returns the stored user with the given uid.
func (s *Server) User(uid string) (api.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[uid]
	return u, ok
}

// Department returns the stored department with the given id.
func (s *Server) Department(id int64) (api.Department, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.departments[id]
	return d, ok
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(body))
		}
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.Query(),
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get(api.RequestIDHeader),
			Body:          body,
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}
		s.mu.Lock()
		uid, ok := s.tokens[tok]
		s.mu.Unlock()
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "Given token not valid for any token type")
			return
		}
		r.Header.Set("X-Test-UID", uid)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds api.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeDetail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	s.mu.Lock()
	acct, ok := s.accounts[creds.Email]
	s.mu.Unlock()
	if !ok || acct.Password != creds.Password {
		writeDetail(w, http.StatusUnauthorized, "No active account found with the given credentials")
		return
	}
	writeJSON(w, http.StatusOK, api.TokenPair{
		Access:   acct.Token,
		Refresh:  "refresh-" + acct.User.UID,
		Realname: acct.User.Realname,
		Email:    acct.User.Email,
	})
}

func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status := s.profileErr
	u, ok := s.users[r.Header.Get("X-Test-UID")]
	s.mu.Unlock()
	if status != 0 {
		writeDetail(w, status, "profile unavailable")
		return
	}
	if !ok {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleListDepartments(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]api.Department, 0, len(s.departments))
	for _, d := range s.departments {
		out = append(out, d)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) decodeDepartment(w http.ResponseWriter, r *http.Request) (api.Department, bool) {
	var in api.DepartmentInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusBadRequest, "malformed request body")
		return api.Department{}, false
	}
	if in.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"name": {"This field may not be blank."}})
		return api.Department{}, false
	}
	d := api.Department{Name: in.Name, Intro: in.Intro, Leader: in.Leader}
	if in.Manager != nil {
		s.mu.Lock()
		u, ok := s.users[*in.Manager]
		s.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string][]string{"manager": {"Invalid pk - object does not exist."}})
			return api.Department{}, false
		}
		d.Manager = &api.SimpleUser{UID: u.UID, Realname: u.Realname}
	}
	return d, true
}

func (s *Server) handleCreateDepartment(w http.ResponseWriter, r *http.Request) {
	d, ok := s.decodeDepartment(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusCreated, s.AddDepartment(d))
}

func (s *Server) departmentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return 0, false
	}
	s.mu.Lock()
	_, ok := s.departments[id]
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return 0, false
	}
	return id, true
}

func (s *Server) handleUpdateDepartment(w http.ResponseWriter, r *http.Request) {
	id, ok := s.departmentID(w, r)
	if !ok {
		return
	}
	d, ok := s.decodeDepartment(w, r)
	if !ok {
		return
	}
	d.ID = id
	s.mu.Lock()
	s.departments[id] = d
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDeleteDepartment(w http.ResponseWriter, r *http.Request) {
	id, ok := s.departmentID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	delete(s.departments, id)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) sortedUsers() []api.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users := s.sortedUsers()
	if name := r.URL.Query().Get("realname"); name != "" {
		filtered := users[:0]
		for _, u := range users {
			if strings.Contains(u.Realname, name) {
				filtered = append(filtered, u)
			}
		}
		users = filtered
	}

	s.mu.Lock()
	pageSize := s.pageSize
	s.mu.Unlock()
	if n, err := strconv.Atoi(r.URL.Query().Get("page_size")); err == nil && n > 0 {
		pageSize = n
	}
	if pageSize == 0 {
		writeJSON(w, http.StatusOK, users)
		return
	}

	page := 1
	if n, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && n > 0 {
		page = n
	}
	start := min((page-1)*pageSize, len(users))
	end := min(start+pageSize, len(users))
	env := map[string]any{
		"count":    len(users),
		"next":     nil,
		"previous": nil,
		"results":  users[start:end],
	}
	if end < len(users) {
		env["next"] = fmt.Sprintf("http://%s/api/users/?page=%d", r.Host, page+1)
	}
	if page > 1 {
		env["previous"] = fmt.Sprintf("http://%s/api/users/?page=%d", r.Host, page-1)
	}
	writeJSON(w, http.StatusOK, env)
}

// userPatch mirrors the write-side user fields.
type userPatch struct {
	Realname     *string         `json:"realname"`
	Email        *string         `json:"email"`
	Password     *string         `json:"password"`
	Telephone    *string         `json:"telephone"`
	DepartmentID json.RawMessage `json:"department_id"`
	IsStaff      *bool           `json:"is_staff"`
	IsActive     *bool           `json:"is_active"`
	Status       *int            `json:"status"`
}

func (s *Server) applyPatch(w http.ResponseWriter, u *api.User, p userPatch) bool {
	if p.Realname != nil {
		u.Realname = *p.Realname
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Telephone != nil {
		u.Telephone = *p.Telephone
	}
	if p.IsStaff != nil {
		u.IsStaff = *p.IsStaff
	}
	if p.IsActive != nil {
		u.IsActive = *p.IsActive
	}
	if p.Status != nil {
		u.Status = *p.Status
	}
	if len(p.DepartmentID) > 0 {
		if string(p.DepartmentID) == "null" {
			u.Department = nil
			return true
		}
		var id int64
		if err := json.Unmarshal(p.DepartmentID, &id); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string][]string{"department_id": {"Incorrect type."}})
			return false
		}
		d, ok := s.Department(id)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string][]string{"department_id": {"Invalid pk - object does not exist."}})
			return false
		}
		u.Department = &d
	}
	return true
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var p userPatch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeDetail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if p.Email == nil || *p.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"email": {"This field is required."}})
		return
	}
	u := api.User{IsActive: true}
	if !s.applyPatch(w, &u, p) {
		return
	}
	password := ""
	if p.Password != nil {
		password = *p.Password
	}
	acct := s.AddAccount(Account{User: u, Password: password})
	writeJSON(w, http.StatusCreated, acct.User)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	u, ok := s.User(uid)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	var p userPatch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeDetail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if !s.applyPatch(w, &u, p) {
		return
	}
	s.mu.Lock()
	s.users[uid] = u
	if acct, ok := s.accounts[u.Email]; ok && p.Password != nil {
		acct.Password = *p.Password
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[uid]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	delete(s.users, uid)
	delete(s.accounts, u.Email)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	d := s.dashboard
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleManagers(w http.ResponseWriter, r *http.Request) {
	var out []api.SimpleUser
	for _, u := range s.sortedUsers() {
		if u.IsStaff {
			out = append(out, api.SimpleUser{UID: u.UID, Realname: u.Realname})
		}
	}
	if out == nil {
		out = []api.SimpleUser{}
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}
