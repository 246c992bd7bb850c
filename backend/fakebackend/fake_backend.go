// Package fakebackend is an in-memory stand-in for the ConstructOS REST
// backend's auth endpoints, for tests.
package fakebackend

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/constructos-gateway/users"
)

const SessionCookieName = "sessionid"

type account struct {
	password    string
	user        users.User
	permissions map[string]bool
}

// FakeBackend implements the backend auth API over http.Handler.
type FakeBackend struct {
	lock     sync.Mutex
	accounts map[string]account        // username -> account
	quick    map[string]string         // role -> username
	sessions map[string]string         // session token -> username
	bearers  map[string]map[string]any // bearer token -> raw "me" body

	// MeStatus forces the status of the "me" endpoint when non-zero.
	MeStatus    int
	LogoutFails bool
	Calls       map[string]int
	LastCSRF    string
}

func New() *FakeBackend {
	return &FakeBackend{
		accounts: make(map[string]account),
		quick:    make(map[string]string),
		sessions: make(map[string]string),
		bearers:  make(map[string]map[string]any),
		Calls:    make(map[string]int),
	}
}

// AddUser registers a user that can log in with password and, through
// quick login, with its role.
func (f *FakeBackend) AddUser(password string, u users.User, permissions map[string]bool) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.accounts[u.Username] = account{password: password, user: u, permissions: permissions}
	if _, ok := f.quick[u.Role]; !ok {
		f.quick[u.Role] = u.Username
	}
}

// AddBearer registers the raw "me" body returned for a bearer token.
func (f *FakeBackend) AddBearer(token string, body map[string]any) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.bearers[token] = body
}

// SessionCount is the number of live server sessions.
func (f *FakeBackend) SessionCount() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.sessions)
}

func (f *FakeBackend) CallCount(path string) int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.Calls[path]
}

func (f *FakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.Calls[r.URL.Path]++
	if h := r.Header.Get("X-CSRFToken"); h != "" {
		f.LastCSRF = h
	}

	switch {
	case r.URL.Path == "/api/v1/auth/me/" && r.Method == http.MethodGet:
		f.me(w, r)
	case r.URL.Path == "/api/v1/auth/login/" && r.Method == http.MethodPost:
		f.login(w, r)
	case r.URL.Path == "/api/v1/auth/quick-login/" && r.Method == http.MethodPost:
		f.quickLogin(w, r)
	case r.URL.Path == "/api/v1/auth/logout/" && r.Method == http.MethodPost:
		f.logout(w, r)
	case r.URL.Path == "/api/v1/auth/demo-users/" && r.Method == http.MethodGet:
		f.demoUsers(w)
	case strings.HasPrefix(r.URL.Path, "/api/v1/"):
		f.echo(w, r)
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Not found."})
	}
}

func (f *FakeBackend) sessionUser(r *http.Request) (account, bool) {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return account{}, false
	}
	username, ok := f.sessions[c.Value]
	if !ok {
		return account{}, false
	}
	a, ok := f.accounts[username]
	return a, ok
}

func (f *FakeBackend) me(w http.ResponseWriter, r *http.Request) {
	if f.MeStatus != 0 {
		writeJSON(w, f.MeStatus, map[string]any{"detail": "forced failure"})
		return
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		if body, ok := f.bearers[strings.TrimPrefix(auth, "Bearer ")]; ok {
			writeJSON(w, http.StatusOK, body)
			return
		}
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Invalid token."})
		return
	}
	a, ok := f.sessionUser(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Authentication credentials were not provided."})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": a.user, "permissions": a.permissions})
}

func (f *FakeBackend) startSession(w http.ResponseWriter, a account) {
	sessionToken := uuid.NewString()
	f.sessions[sessionToken] = a.user.Username
	http.SetCookie(w, &http.Cookie{Name: SessionCookieName, Value: sessionToken, Path: "/", HttpOnly: true})
	http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "csrf-" + sessionToken, Path: "/"})
	writeJSON(w, http.StatusOK, map[string]any{
		"user":          a.user,
		"permissions":   a.permissions,
		"session_token": sessionToken,
	})
}

func (f *FakeBackend) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "Username and password are required."})
		return
	}
	a, ok := f.accounts[body.Username]
	if !ok || a.password != body.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Invalid username or password"})
		return
	}
	f.startSession(w, a)
}

func (f *FakeBackend) quickLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Role string `json:"role"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	username, ok := f.quick[body.Role]
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "Unknown demo role."})
		return
	}
	f.startSession(w, f.accounts[username])
}

func (f *FakeBackend) logout(w http.ResponseWriter, r *http.Request) {
	if f.LogoutFails {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"detail": "boom"})
		return
	}
	if c, err := r.Cookie(SessionCookieName); err == nil {
		delete(f.sessions, c.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookieName, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (f *FakeBackend) demoUsers(w http.ResponseWriter) {
	out := make([]users.DemoUser, 0, len(f.quick))
	for role, username := range f.quick {
		u := f.accounts[username].user
		out = append(out, users.DemoUser{
			Username:    u.Username,
			FullName:    u.FullName,
			Role:        role,
			RoleDisplay: u.RoleDisplay,
			Department:  u.Department,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"demo_users": out})
}

// echo answers any other API path with what the backend saw of the caller.
func (f *FakeBackend) echo(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"path":          r.URL.Path,
		"method":        r.Method,
		"authorization": r.Header.Get("Authorization"),
	}
	if a, ok := f.sessionUser(r); ok {
		body["username"] = a.user.Username
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
