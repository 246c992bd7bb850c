package token

import "context"

// Account is the signed-in identity provider account. It is an opaque
// handle; the provider uses it to find cached tokens.
type Account struct {
	HomeAccountID string
	TenantID      string
	Username      string
	Name          string
	Roles         []string
}

// Provider is the external identity provider client.
type Provider interface {
	// Configured reports whether the deployment has an identity provider.
	Configured() bool
	// Account returns the signed-in account, if any.
	Account() (Account, bool)
	// AcquireTokenSilent returns a cached or refreshed access token.
	AcquireTokenSilent(ctx context.Context, account Account) (string, error)
	// AcquireTokenInteractive asks the user to sign in again.
	AcquireTokenInteractive(ctx context.Context) (string, error)
	// InteractionInProgress reports a pending interactive flow.
	InteractionInProgress() bool
	// Logout forgets the account and its cached tokens.
	Logout(ctx context.Context) error
}

// TokenProvider hands the current bearer token to outbound API calls.
type TokenProvider interface {
	Token() (string, bool)
}
