package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/constructos-gateway/backend"
	gwerrors "github.com/jrsteele09/constructos-gateway/internal/errors"
	"github.com/jrsteele09/constructos-gateway/server/gatewaysession"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type quickLoginRequest struct {
	Role string `json:"role"`
}

// AuthStateHandler serves the aggregated auth state (GET /auth/state).
// ?refresh=1 re-fetches provider state, bypassing the cache.
func (s *Server) AuthStateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := s.currentSession(r)
		if ok && r.URL.Query().Get("refresh") != "" {
			session.Refresh(r.Context())
		}
		writeJSON(w, http.StatusOK, s.stateForRequest(r).View())
	}
}

// LoginHandler processes a username and password login (POST /auth/login)
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body loginRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONError(w, "invalid_request", "Invalid request body", http.StatusBadRequest)
			return
		}
		s.completeLogin(w, r, "password", func(session *gatewaysession.Session) (backend.SessionPayload, error) {
			return session.Backend.Login(r.Context(), body.Username, body.Password)
		})
	}
}

// QuickLoginHandler signs in as the demo user of a role (POST /auth/quick-login)
func (s *Server) QuickLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body quickLoginRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Role == "" {
			writeJSONError(w, "invalid_request", "A role is required", http.StatusBadRequest)
			return
		}
		s.completeLogin(w, r, "quick", func(session *gatewaysession.Session) (backend.SessionPayload, error) {
			return session.Backend.QuickLogin(r.Context(), body.Role)
		})
	}
}

// completeLogin signs a gateway session in. A browser that already had a
// session gets it back under a new ID.
func (s *Server) completeLogin(w http.ResponseWriter, r *http.Request, method string, login func(*gatewaysession.Session) (backend.SessionPayload, error)) {
	session, existed := s.currentSession(r)
	if !existed {
		var err error
		if session, err = s.newSession(); err != nil {
			log.Err(err).Msg("Failed to start gateway session")
			writeJSONError(w, "server_error", "Failed to start session", http.StatusInternalServerError)
			return
		}
	}

	payload, err := login(session)
	if err == nil {
		err = session.Auth.LoginWithCredentials(payload)
	}
	s.metrics.RecordLogin(method, err == nil)
	if err != nil {
		if !existed {
			_ = s.sessions.Delete(session.ID)
		}
		var loginErr *backend.LoginError
		if gwerrors.As(err, &loginErr) {
			writeJSONError(w, "invalid_credentials", loginErr.Message, loginErr.Status)
			return
		}
		log.Err(err).Str("method", method).Msg("Login failed")
		writeJSONError(w, "backend_unavailable", "Login failed. Please try again later.", http.StatusBadGateway)
		return
	}

	if existed {
		if session, err = s.rotateSession(w, r, session); err != nil {
			log.Err(err).Msg("Failed to rotate gateway session")
			writeJSONError(w, "server_error", "Failed to complete sign-in", http.StatusInternalServerError)
			return
		}
	} else {
		s.SetGatewaySessionCookie(w, r, session.ID, int(s.config.GetMaxSessionAge().Seconds()))
	}

	log.Info().Str("session", session.ID).Str("method", method).Str("username", payload.User.Username).Msg("Login succeeded")
	writeJSON(w, http.StatusOK, session.Auth.State().View())
}

// DemoUsersHandler lists the quick-login accounts (GET /auth/demo-users)
func (s *Server) DemoUsersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		demoUsers, err := s.public.DemoUsers(r.Context())
		if err != nil {
			log.Err(err).Msg("Failed to list demo users")
			writeJSONError(w, "backend_unavailable", "Failed to load demo users", http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"demo_users": demoUsers})
	}
}

// LogoutHandler ends whichever auth source is active (POST /auth/logout).
// It always succeeds and drops the gateway session.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if session, ok := s.currentSession(r); ok {
			session.Auth.Logout(r.Context())
			if err := s.sessions.Delete(session.ID); err != nil {
				log.Err(err).Str("session", session.ID).Msg("Failed to delete gateway session")
			}
		}
		s.SetGatewaySessionCookie(w, r, "", -1)
		writeJSON(w, http.StatusOK, s.anonymousState().View())
	}
}
