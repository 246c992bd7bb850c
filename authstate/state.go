package authstate

import (
	"github.com/jrsteele09/constructos-gateway/users"
)

// State is a point-in-time view of the aggregated auth state. It is the
// only thing route guards and pages read.
type State struct {
	Source                Source
	IsLoading             bool
	IsAzureADConfigured   bool
	InteractionInProgress bool

	roles *users.RoleTable
}

func (s State) IsAuthenticated() bool {
	return s.Source != nil && s.Source.Kind() != KindUnauthenticated
}

func (s State) IsSessionAuth() bool {
	return s.Source != nil && s.Source.Kind() == KindSession
}

func (s State) User() *users.User {
	switch src := s.Source.(type) {
	case SessionAuth:
		u := src.User
		return &u
	case ProviderAuth:
		return src.User
	}
	return nil
}

func (s State) Roles() []string {
	switch src := s.Source.(type) {
	case SessionAuth:
		return src.Roles
	case ProviderAuth:
		return src.Roles
	}
	return []string{}
}

func (s State) Permissions() []string {
	switch src := s.Source.(type) {
	case SessionAuth:
		return src.Permissions
	case ProviderAuth:
		return src.Permissions
	}
	return []string{}
}

func (s State) HasRole(role string) bool {
	return users.HasAnyRole(s.Roles(), []string{role})
}

func (s State) HasAnyRole(roles []string) bool {
	return users.HasAnyRole(s.Roles(), roles)
}

func (s State) HasPermission(name string) bool {
	return users.HasPermission(s.Permissions(), name)
}

func (s State) InCategory(c users.Category) bool {
	if s.roles == nil {
		return false
	}
	return s.roles.InCategory(s.Roles(), c)
}

func (s State) IsAdmin() bool       { return s.InCategory(users.CategoryAdmin) }
func (s State) IsFinance() bool     { return s.InCategory(users.CategoryFinance) }
func (s State) IsHR() bool          { return s.InCategory(users.CategoryHR) }
func (s State) IsOperations() bool  { return s.InCategory(users.CategoryOperations) }
func (s State) IsSiteManager() bool { return s.InCategory(users.CategorySiteManager) }
func (s State) IsExecutive() bool   { return s.InCategory(users.CategoryExecutive) }

// View is the JSON form of State served to the front end.
type View struct {
	IsAuthenticated       bool        `json:"isAuthenticated"`
	IsLoading             bool        `json:"isLoading"`
	IsAzureADConfigured   bool        `json:"isAzureADConfigured"`
	IsSessionAuth         bool        `json:"isSessionAuth"`
	InteractionInProgress bool        `json:"interactionInProgress"`
	Source                SourceKind  `json:"source"`
	User                  *users.User `json:"user"`
	Roles                 []string    `json:"roles"`
	AzureADRoles          []string    `json:"azureAdRoles"`
	Permissions           []string    `json:"permissions"`
	IsAdmin               bool        `json:"isAdmin"`
	IsFinance             bool        `json:"isFinance"`
	IsHR                  bool        `json:"isHR"`
	IsOperations          bool        `json:"isOperations"`
	IsSiteManager         bool        `json:"isSiteManager"`
	IsExecutive           bool        `json:"isExecutive"`
}

func (s State) View() View {
	v := View{
		IsAuthenticated:       s.IsAuthenticated(),
		IsLoading:             s.IsLoading,
		IsAzureADConfigured:   s.IsAzureADConfigured,
		IsSessionAuth:         s.IsSessionAuth(),
		InteractionInProgress: s.InteractionInProgress,
		Source:                KindUnauthenticated,
		User:                  s.User(),
		Roles:                 s.Roles(),
		AzureADRoles:          []string{},
		Permissions:           s.Permissions(),
		IsAdmin:               s.IsAdmin(),
		IsFinance:             s.IsFinance(),
		IsHR:                  s.IsHR(),
		IsOperations:          s.IsOperations(),
		IsSiteManager:         s.IsSiteManager(),
		IsExecutive:           s.IsExecutive(),
	}
	if s.Source != nil {
		v.Source = s.Source.Kind()
	}
	if p, ok := s.Source.(ProviderAuth); ok {
		v.AzureADRoles = p.AzureADRoles
	}
	return v
}
