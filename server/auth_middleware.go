package server

import (
	"github.com/jrsteele09/constructos-gateway/guard"
	"github.com/jrsteele09/constructos-gateway/internal/config"
)

// pageRequirements turns a configured page rule into guard requirements.
// Pages without a redirect target go to the SPA login page.
func pageRequirements(rule config.PageRule) guard.Requirements {
	redirect := rule.RedirectTo
	if redirect == "" {
		redirect = RouteLogin
	}
	return guard.Requirements{
		RequireAuth:  rule.RequireAuth,
		AllowedRoles: rule.AllowedRoles,
		RedirectTo:   redirect,
	}
}
