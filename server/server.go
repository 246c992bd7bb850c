package server

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/constructos-gateway/backend"
	"github.com/jrsteele09/constructos-gateway/guard"
	"github.com/jrsteele09/constructos-gateway/internal/config"
	"github.com/jrsteele09/constructos-gateway/internal/metrics"
	"github.com/jrsteele09/constructos-gateway/server/authflowrepo"
	"github.com/jrsteele09/constructos-gateway/server/gatewaysession"
	"github.com/jrsteele09/constructos-gateway/token/oidcprovider"
	"github.com/jrsteele09/constructos-gateway/users"
)

type Server struct {
	env        string // Environment (e.g., "DEV", "PROD")
	mux        *http.ServeMux
	routes     []string
	config     config.Config
	rules      config.AccessRules
	roles      *users.RoleTable
	provider   *oidcprovider.Provider
	sessions   gatewaysession.Repo
	authFlows  authflowrepo.Repo
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	guard      *guard.Middleware
	backendURL *url.URL
	proxy      *httputil.ReverseProxy
	public     *backend.Client
	fileServer http.Handler
	transport  http.RoundTripper
	cors       *cors.Cors
	compress   func(http.Handler) http.Handler
}

type Option func(*Server)

// WithSessionRepo replaces the default in-memory gateway session store.
func WithSessionRepo(repo gatewaysession.Repo) Option {
	return func(s *Server) {
		s.sessions = repo
	}
}

func WithAuthFlowRepo(repo authflowrepo.Repo) Option {
	return func(s *Server) {
		s.authFlows = repo
	}
}

// WithRegistry registers metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

// WithBackendTransport sets the transport used for every backend call,
// proxied or not.
func WithBackendTransport(rt http.RoundTripper) Option {
	return func(s *Server) {
		s.transport = rt
	}
}

// New builds the gateway. provider is the identity provider template that
// each gateway session forks; pass oidcprovider.Disabled() when the
// deployment has none.
func New(cfg config.Config, provider *oidcprovider.Provider, opts ...Option) (*Server, error) {
	rules, err := cfg.GetAccessRules()
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to load access rules: %w", err)
	}
	backendURL, err := url.Parse(cfg.GetBackendURL())
	if err != nil || backendURL.Scheme == "" || backendURL.Host == "" {
		return nil, fmt.Errorf("[Server New] invalid backend URL %q", cfg.GetBackendURL())
	}
	if provider == nil {
		provider = oidcprovider.Disabled()
	}

	s := &Server{
		env:        cfg.GetEnv(),
		mux:        http.NewServeMux(),
		config:     cfg,
		rules:      rules,
		roles:      users.NewRoleTable(rules.Roles),
		provider:   provider,
		backendURL: backendURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	s.metrics = metrics.NewMetrics(s.registry)
	if s.sessions == nil {
		s.sessions = gatewaysession.NewInMemoryRepo(cfg.GetMaxSessions(), cfg.GetMaxSessionAge(),
			gatewaysession.WithEvictHook(func(*gatewaysession.Session) {
				s.metrics.GatewaySessions.Dec()
			}))
	}
	if s.authFlows == nil {
		s.authFlows = authflowrepo.NewInMemoryRepo(cfg.GetAuthFlowTimeout())
	}

	s.public, err = s.newBackendClient(nil)
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to create backend client: %w", err)
	}
	s.proxy = s.newProxy()
	s.fileServer = FileServerHandler(cfg.GetStaticDir())
	s.cors = s.corsHandler()
	s.compress = middleware.Compress(5)
	s.guard = guard.New(s.stateForRequest, guard.WithDecisionHook(s.metrics.RecordGuardDecision))

	s.initRoutes()
	s.logRoutes()

	log.Info().
		Str("backend", backendURL.String()).
		Bool("azure_ad", provider.Configured()).
		Int("pages", len(rules.Pages)).
		Msg("Gateway initialised")
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		method, path, found := strings.Cut(route, " ")
		if !found {
			method, path = "ANY", route
		}
		log.Debug().Str("method", method).Str("path", path).Msg("Route registered")
	}
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
