package authflowrepo

import "time"

// AuthFlowState is what the gateway remembers between redirecting a browser
// to the identity provider and the provider calling back.
type AuthFlowState struct {
	SessionID    string
	CodeVerifier string
	Nonce        string
	ReturnURL    string
	CreatedAt    time.Time
}

type Repo interface {
	Upsert(state string, authState *AuthFlowState) error
	Get(state string) (*AuthFlowState, error)
	Delete(state string) error
}
