package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	gwerrors "github.com/jrsteele09/constructos-gateway/internal/errors"
	"github.com/jrsteele09/constructos-gateway/server/authflowrepo"
)

// AzureLoginHandler starts the identity provider redirect flow
// (GET /auth/azure/login?return_to=/path).
func (s *Server) AzureLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.provider.Configured() {
			writeJSONError(w, "not_configured", "Azure AD sign-in is not configured", http.StatusNotFound)
			return
		}
		session, err := s.ensureSession(w, r)
		if err != nil {
			log.Err(err).Msg("Failed to start gateway session")
			writeJSONError(w, "server_error", "Failed to start session", http.StatusInternalServerError)
			return
		}

		state := uuid.NewString()
		flow := &authflowrepo.AuthFlowState{
			SessionID:    session.ID,
			CodeVerifier: oauth2.GenerateVerifier(),
			Nonce:        uuid.NewString(),
			ReturnURL:    safeReturnURL(r.URL.Query().Get("return_to")),
			CreatedAt:    time.Now(),
		}
		if err := s.authFlows.Upsert(state, flow); err != nil {
			log.Err(err).Msg("Failed to store auth flow state")
			writeJSONError(w, "server_error", "Failed to start sign-in", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, session.Provider.AuthCodeURL(state, flow.CodeVerifier, flow.Nonce), http.StatusFound)
	}
}

// OAuthCallbackHandler completes the redirect flow (GET|POST /callback)
func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.provider.Configured() {
			writeJSONError(w, "not_configured", "Azure AD sign-in is not configured", http.StatusNotFound)
			return
		}

		// r.FormValue works for both query params and POST form data
		state := r.FormValue("state")
		code := r.FormValue("code")
		if errorParam := r.FormValue("error"); errorParam != "" {
			s.metrics.RecordLogin("azure", false)
			writeJSONError(w, errorParam, r.FormValue("error_description"), http.StatusBadRequest)
			return
		}
		if code == "" || state == "" {
			writeJSONError(w, "invalid_request", "Missing code or state parameter", http.StatusBadRequest)
			return
		}

		flow, err := s.authFlows.Get(state)
		if err != nil {
			writeJSONError(w, "invalid_request", "Invalid state parameter", http.StatusBadRequest)
			return
		}
		// Clean up state after use
		if err := s.authFlows.Delete(state); err != nil {
			log.Err(err).Msg("Failed to delete auth flow state")
		}

		// The flow only completes in the browser that started it.
		cookie, err := r.Cookie(gatewaySessionCookieName)
		if err != nil || cookie.Value != flow.SessionID {
			s.metrics.RecordLogin("azure", false)
			log.Warn().Str("session", flow.SessionID).Msg("Callback did not come from the browser that started sign-in")
			writeJSONError(w, "invalid_request", "Sign-in was started in another browser", http.StatusBadRequest)
			return
		}

		session, err := s.sessions.Get(flow.SessionID)
		if err != nil {
			writeJSONError(w, "invalid_request", "Sign-in session expired", http.StatusBadRequest)
			return
		}

		account, err := session.Provider.CompleteAuthCode(r.Context(), code, flow.CodeVerifier, flow.Nonce)
		if err != nil {
			s.metrics.RecordLogin("azure", false)
			log.Err(err).Msg("Authorization code exchange failed")
			status := http.StatusBadGateway
			if gwerrors.Is(err, gwerrors.ErrInvalidNonce) || gwerrors.Is(err, gwerrors.ErrNoIDToken) {
				status = http.StatusUnauthorized
			}
			writeJSONError(w, "access_denied", "Sign-in failed", status)
			return
		}

		session, err = s.rotateSession(w, r, session)
		if err != nil {
			s.metrics.RecordLogin("azure", false)
			log.Err(err).Msg("Failed to rotate gateway session")
			writeJSONError(w, "server_error", "Failed to complete sign-in", http.StatusInternalServerError)
			return
		}
		session.Refresh(r.Context())
		s.metrics.RecordLogin("azure", true)
		log.Info().Str("session", session.ID).Str("username", account.Username).Msg("Azure AD sign-in completed")

		redirectSuccess(w, r, flow.ReturnURL)
	}
}
