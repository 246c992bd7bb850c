package authstate

import (
	"github.com/jrsteele09/constructos-gateway/backend"
	"github.com/jrsteele09/constructos-gateway/users"
)

type SourceKind string

const (
	KindSession         SourceKind = "session"
	KindProvider        SourceKind = "provider"
	KindUnauthenticated SourceKind = "none"
)

// Source is where the current identity comes from. It is one of
// SessionAuth, ProviderAuth or Unauthenticated.
type Source interface {
	Kind() SourceKind
	isSource()
}

// SessionAuth is a server session created by credential or quick login.
// A session user contributes exactly one role.
type SessionAuth struct {
	User        users.User
	Roles       []string
	Permissions []string
}

// ProviderAuth is identity provider sign-in resolved by the backend.
type ProviderAuth struct {
	User         *users.User
	Roles        []string
	AzureADRoles []string
	Permissions  []string
}

type Unauthenticated struct{}

func (SessionAuth) Kind() SourceKind     { return KindSession }
func (ProviderAuth) Kind() SourceKind    { return KindProvider }
func (Unauthenticated) Kind() SourceKind { return KindUnauthenticated }

func (SessionAuth) isSource()     {}
func (ProviderAuth) isSource()    {}
func (Unauthenticated) isSource() {}

// Resolve merges the two auth sources. A server session wins over the
// identity provider. When the session payload carries no permissions the
// provider's permissions are used.
func Resolve(session *backend.SessionPayload, provider *backend.AuthInfo) Source {
	if session != nil && session.User != nil {
		roles := []string{}
		if session.User.Role != "" {
			roles = []string{session.User.Role}
		}
		perms := session.Permissions.Names()
		if len(perms) == 0 && provider != nil {
			perms = append([]string{}, provider.Permissions...)
		}
		return SessionAuth{User: *session.User, Roles: roles, Permissions: perms}
	}

	if provider != nil && provider.Authenticated {
		return ProviderAuth{
			User:         provider.User,
			Roles:        append([]string{}, provider.Roles...),
			AzureADRoles: append([]string{}, provider.AzureADRoles...),
			Permissions:  append([]string{}, provider.Permissions...),
		}
	}
	return Unauthenticated{}
}
