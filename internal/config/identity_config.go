package config

import "fmt"

type IdentityConfig interface {
	GetAzureClientID() string
	GetAzureTenantID() string
	GetAzureClientSecret() string
	GetOIDCIssuer() string
	GetOIDCScopes() []string
	IsAzureADConfigured() bool
}

type Identity struct{}

var _ IdentityConfig = Identity{}

func (Identity) GetAzureClientID() string {
	return GetEnv("AZURE_CLIENT_ID", "")
}

func (Identity) GetAzureTenantID() string {
	return GetEnv("AZURE_TENANT_ID", "")
}

func (Identity) GetAzureClientSecret() string {
	return GetEnv("AZURE_CLIENT_SECRET", "")
}

// GetOIDCIssuer returns OIDC_ISSUER when set, otherwise the Azure AD v2 issuer for the tenant.
func (i Identity) GetOIDCIssuer() string {
	if issuer := GetEnv("OIDC_ISSUER", ""); issuer != "" {
		return issuer
	}
	return fmt.Sprintf("https://login.microsoftonline.com/%s/v2.0", i.GetAzureTenantID())
}

func (i Identity) GetOIDCScopes() []string {
	return []string{"openid", "profile", "email", "offline_access"}
}

// IsAzureADConfigured reports whether both the client and tenant IDs are present.
// Without them the gateway runs in session-only mode.
func (i Identity) IsAzureADConfigured() bool {
	return i.GetAzureClientID() != "" && i.GetAzureTenantID() != ""
}
