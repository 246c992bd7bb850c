package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// proxiedMethods are registered one by one; a method-less "/api/v1/"
// would conflict with "GET /".
var proxiedMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodOptions,
}

func (s *Server) initRoutes() {
	// Auth API
	s.RegisterRouteHandler("GET "+RouteAuthState, ChainMiddleware(s.AuthStateHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthQuickLogin, ChainMiddleware(s.QuickLoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuthDemoUsers, ChainMiddleware(s.DemoUsersHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("OPTIONS /auth/", ChainMiddleware(http.NotFound, s.APIMiddleware()...))

	// Identity provider redirect flow
	s.RegisterRouteHandler("GET "+RouteAzureLogin, ChainMiddleware(s.AzureLoginHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteCallback, ChainMiddleware(s.OAuthCallbackHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteCallback, ChainMiddleware(s.OAuthCallbackHandler(), s.HTMLMiddleWare()...)) // For form_post response mode

	// Backend API
	for _, method := range proxiedMethods {
		s.RegisterRouteHandler(method+" "+RouteAPIProxy, ChainMiddleware(s.APIProxyHandler(), s.APIMiddleware()...))
	}

	// Operations
	s.RegisterRouteHandler("GET "+RouteMetrics, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	s.RegisterRouteFunc("GET "+RouteHealthz, s.HealthzHandler())

	// Guarded SPA pages
	registered := map[string]bool{}
	for _, rule := range s.rules.Pages {
		if registered[rule.Path] {
			log.Warn().Str("path", rule.Path).Msg("Duplicate page rule ignored")
			continue
		}
		registered[rule.Path] = true
		pattern := rule.Path
		if pattern == RouteIndex {
			pattern = "/{$}" // the home page only, not the whole bundle
		}
		s.RegisterRouteHandler("GET "+pattern, ChainMiddleware(s.SPAPageHandler(), s.HTMLMiddleWare(s.guard.Require(pageRequirements(rule)))...))
	}

	// Everything else is the SPA bundle
	s.RegisterRouteHandler("GET "+RouteIndex, ChainMiddleware(s.fileServer.ServeHTTP, s.HTMLMiddleWare(s.CacheMiddleware, s.CompressionMiddleware)...))
}

// SPAPageHandler serves the SPA entry point for a guarded client-side route
func (s *Server) SPAPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r2 := r.Clone(r.Context())
		r2.URL.Path = RouteIndex
		s.fileServer.ServeHTTP(w, r2)
	}
}

func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": s.sessions.Len(),
			"azure_ad": s.provider.Configured(),
		})
	}
}
