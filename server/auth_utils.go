package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/constructos-gateway/authstate"
	"github.com/jrsteele09/constructos-gateway/backend"
	"github.com/jrsteele09/constructos-gateway/server/gatewaysession"
	"github.com/jrsteele09/constructos-gateway/token"
)

const (
	// gatewaySessionCookieName links a browser to its gateway session
	gatewaySessionCookieName = "constructos_sid"

	contentTypeJSON = "application/json; charset=utf-8"
)

type sessionContextKey struct{}

func (s *Server) newBackendClient(tokens token.TokenProvider) (*backend.Client, error) {
	opts := []backend.Option{backend.WithObserver(s.metrics.RecordBackendCall)}
	if tokens != nil {
		opts = append(opts, backend.WithTokenProvider(tokens))
	}
	if s.transport != nil {
		opts = append(opts, backend.WithTransport(s.transport))
	}
	return backend.NewClient(s.backendURL.String(), opts...)
}

// newSession wires a fresh gateway session: its own token holder, backend
// client and cookie jar, identity provider fork and aggregator.
func (s *Server) newSession() (*gatewaysession.Session, error) {
	holder := token.NewHolder()
	client, err := s.newBackendClient(holder)
	if err != nil {
		return nil, err
	}
	provider := s.provider.Fork()
	acquirer := token.NewAcquirer(provider, holder, token.WithOutcomeHook(s.metrics.RecordTokenOutcome))
	agg := authstate.New(client, acquirer,
		authstate.WithRoleTable(s.roles),
		authstate.WithStaleAfter(s.config.GetAuthStateStaleAfter()),
		authstate.WithRetries(s.config.GetAuthStateRetries()),
		authstate.WithResolutionHook(s.metrics.RecordResolution),
	)

	session := &gatewaysession.Session{
		ID:        uuid.NewString(),
		Backend:   client,
		Provider:  provider,
		Auth:      agg,
		CreatedAt: time.Now(),
	}
	if err := s.sessions.Upsert(session); err != nil {
		return nil, err
	}
	s.metrics.GatewaySessions.Inc()
	return session, nil
}

// currentSession returns the gateway session named by the request cookie.
func (s *Server) currentSession(r *http.Request) (*gatewaysession.Session, bool) {
	if session, ok := r.Context().Value(sessionContextKey{}).(*gatewaysession.Session); ok {
		return session, true
	}
	cookie, err := r.Cookie(gatewaySessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, false
	}
	session, err := s.sessions.Get(cookie.Value)
	if err != nil {
		return nil, false
	}
	return session, true
}

// ensureSession returns the current gateway session or starts a new one
// and sets its cookie.
func (s *Server) ensureSession(w http.ResponseWriter, r *http.Request) (*gatewaysession.Session, error) {
	if session, ok := s.currentSession(r); ok {
		return session, nil
	}
	session, err := s.newSession()
	if err != nil {
		return nil, err
	}
	s.SetGatewaySessionCookie(w, r, session.ID, int(s.config.GetMaxSessionAge().Seconds()))
	return session, nil
}

// rotateSession moves a session to a fresh ID after sign-in and points the
// cookie at it. The old ID stops resolving.
func (s *Server) rotateSession(w http.ResponseWriter, r *http.Request, old *gatewaysession.Session) (*gatewaysession.Session, error) {
	session := old.Reissue(uuid.NewString())
	if err := s.sessions.Upsert(session); err != nil {
		return nil, err
	}
	s.metrics.GatewaySessions.Inc()
	if err := s.sessions.Delete(old.ID); err != nil {
		log.Err(err).Str("session", old.ID).Msg("Failed to delete rotated gateway session")
	}
	s.SetGatewaySessionCookie(w, r, session.ID, int(s.config.GetMaxSessionAge().Seconds()))
	return session, nil
}

func (s *Server) SetGatewaySessionCookie(w http.ResponseWriter, r *http.Request, sessionID string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     gatewaySessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func withSession(ctx context.Context, session *gatewaysession.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, session)
}

// stateForRequest is the auth state the guard and /auth/state see. A browser
// without a gateway session is unauthenticated.
func (s *Server) stateForRequest(r *http.Request) authstate.State {
	if session, ok := s.currentSession(r); ok {
		return session.State(r.Context())
	}
	return s.anonymousState()
}

func (s *Server) anonymousState() authstate.State {
	return authstate.State{
		Source:              authstate.Unauthenticated{},
		IsAzureADConfigured: s.provider.Configured(),
	}
}

// safeReturnURL only allows local absolute paths as post-login targets.
func safeReturnURL(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return "/"
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" {
		return "/"
	}
	return raw
}

// redirectSuccess helper for htmx-aware success redirects
func redirectSuccess(w http.ResponseWriter, r *http.Request, path string) {
	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusNoContent) // 204 - no content, just redirect instruction
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// isHTMXRequest checks if the request was initiated by HTMX
func isHTMXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("Failed to encode response")
	}
}

// writeJSONError writes an error response in the OAuth2 error shape
func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}
