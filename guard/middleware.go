package guard

import (
	"embed"
	"html/template"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/constructos-gateway/authstate"
)

//go:embed templates/*
var templateFiles embed.FS

var pages = template.Must(template.ParseFS(templateFiles, "templates/*.html"))

const (
	contentTypeHTML   = "text/html; charset=utf-8"
	loadingRetryAfter = "1"
)

// StateFunc returns the auth state for a request.
type StateFunc func(r *http.Request) authstate.State

type Middleware struct {
	state    StateFunc
	fallback http.Handler
	observe  func(Outcome)
}

type Option func(*Middleware)

// WithFallback renders h instead of redirecting unauthenticated requests.
func WithFallback(h http.Handler) Option {
	return func(m *Middleware) {
		m.fallback = h
	}
}

// WithDecisionHook is called with every outcome.
func WithDecisionHook(fn func(Outcome)) Option {
	return func(m *Middleware) {
		m.observe = fn
	}
}

func New(state StateFunc, opts ...Option) *Middleware {
	m := &Middleware{state: state, observe: func(Outcome) {}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Require returns middleware enforcing req in front of the wrapped handler.
func (m *Middleware) Require(req Requirements) func(http.HandlerFunc) http.HandlerFunc {
	req.HasFallback = m.fallback != nil
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			d := Decide(m.state(r), req)
			m.observe(d.Outcome)

			switch d.Outcome {
			case OutcomeAllowed:
				next(w, r)
			case OutcomeFallback:
				m.fallback.ServeHTTP(w, r)
			case OutcomeLoading:
				w.Header().Set("Retry-After", loadingRetryAfter)
				render(w, http.StatusServiceUnavailable, "loading.html", map[string]any{"Path": r.URL.RequestURI()})
			case OutcomeUnauthenticated:
				redirect(w, r, d.RedirectTo)
			case OutcomeForbidden:
				log.Info().Str("path", r.URL.Path).Strs("required", d.RequiredRoles).Msg("Access denied")
				render(w, http.StatusForbidden, "forbidden.html", map[string]any{
					"Path":  r.URL.Path,
					"Roles": strings.Join(d.RequiredRoles, ", "),
				})
			}
		}
	}
}

func render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", contentTypeHTML)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		log.Err(err).Str("template", name).Msg("Failed to render guard page")
	}
}

// redirect is htmx aware: htmx requests get an HX-Redirect instruction.
func redirect(w http.ResponseWriter, r *http.Request, path string) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}
