// Package guard decides whether a page may be shown for the current auth
// state and renders the outcome over HTTP.
package guard

import (
	"github.com/jrsteele09/constructos-gateway/authstate"
)

const DefaultRedirect = "/login"

type Outcome string

const (
	OutcomeLoading         Outcome = "loading"
	OutcomeUnauthenticated Outcome = "unauthenticated"
	OutcomeForbidden       Outcome = "forbidden"
	OutcomeAllowed         Outcome = "allowed"
	OutcomeFallback        Outcome = "fallback"
)

// Requirements describe what a page needs. A non-empty AllowedRoles
// implies RequireAuth.
type Requirements struct {
	RequireAuth  bool
	AllowedRoles []string
	RedirectTo   string
	HasFallback  bool
}

func (r Requirements) needsAuth() bool {
	return r.RequireAuth || len(r.AllowedRoles) > 0
}

func (r Requirements) redirect() string {
	if r.RedirectTo == "" {
		return DefaultRedirect
	}
	return r.RedirectTo
}

type Decision struct {
	Outcome       Outcome
	RedirectTo    string
	RequiredRoles []string
}

// Decide maps an auth state and page requirements to an outcome. With no
// identity provider configured every page is allowed.
func Decide(state authstate.State, req Requirements) Decision {
	if !state.IsAzureADConfigured {
		return Decision{Outcome: OutcomeAllowed}
	}
	if state.IsLoading || state.InteractionInProgress {
		return Decision{Outcome: OutcomeLoading}
	}
	if req.needsAuth() && !state.IsAuthenticated() {
		if req.HasFallback {
			return Decision{Outcome: OutcomeFallback}
		}
		return Decision{Outcome: OutcomeUnauthenticated, RedirectTo: req.redirect()}
	}
	if len(req.AllowedRoles) > 0 && !state.HasAnyRole(req.AllowedRoles) {
		return Decision{Outcome: OutcomeForbidden, RequiredRoles: req.AllowedRoles}
	}
	return Decision{Outcome: OutcomeAllowed}
}
