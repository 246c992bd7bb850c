package server

import (
	"net/http"
	"net/http/httputil"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/constructos-gateway/backend"
	"github.com/jrsteele09/constructos-gateway/server/gatewaysession"
)

// newProxy forwards /api/v1/ to the backend as the gateway session: the
// browser's cookies are replaced by the session's cookie jar and the
// session's bearer token is attached. Cookies the backend sets are kept in
// the jar and never reach the browser.
func (s *Server) newProxy() *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(s.backendURL)
			pr.SetXForwarded()
			pr.Out.Header.Del("Cookie")

			session, ok := pr.In.Context().Value(sessionContextKey{}).(*gatewaysession.Session)
			if !ok {
				pr.Out.Header.Del("Authorization")
				return
			}
			for _, c := range session.Backend.Jar().Cookies(pr.Out.URL) {
				pr.Out.AddCookie(c)
				if c.Name == backend.CSRFCookieName && !isSafeMethod(pr.Out.Method) && pr.Out.Header.Get(backend.CSRFHeaderName) == "" {
					pr.Out.Header.Set(backend.CSRFHeaderName, c.Value)
				}
			}
			if tok, ok := session.Backend.Tokens().Token(); ok && pr.Out.Header.Get("Authorization") == "" {
				pr.Out.Header.Set("Authorization", "Bearer "+tok)
			}
		},
		ModifyResponse: func(resp *http.Response) error {
			if session, ok := resp.Request.Context().Value(sessionContextKey{}).(*gatewaysession.Session); ok {
				if cookies := resp.Cookies(); len(cookies) > 0 {
					session.Backend.Jar().SetCookies(resp.Request.URL, cookies)
				}
			}
			resp.Header.Del("Set-Cookie")
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Err(err).Str("path", r.URL.Path).Msg("Backend proxy request failed")
			writeJSONError(w, "backend_unavailable", "The backend is unavailable", http.StatusBadGateway)
		},
		Transport: s.transport,
	}
}

// APIProxyHandler proxies /api/v1/ to the backend
func (s *Server) APIProxyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if session, ok := s.currentSession(r); ok {
			r = r.WithContext(withSession(r.Context(), session))
		}
		s.proxy.ServeHTTP(w, r)
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
