package authflowrepo

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	gwerrors "github.com/jrsteele09/constructos-gateway/internal/errors"
)

const maxPendingFlows = 4096

// InMemoryRepo is a thread-safe in-memory implementation of the Repo
// interface. Abandoned flows expire after the configured timeout.
type InMemoryRepo struct {
	states *expirable.LRU[string, AuthFlowState]
}

// NewInMemoryRepo creates a new in-memory auth flow state repository
func NewInMemoryRepo(timeout time.Duration) *InMemoryRepo {
	return &InMemoryRepo{
		states: expirable.NewLRU[string, AuthFlowState](maxPendingFlows, nil, timeout),
	}
}

// Upsert stores or updates an auth flow state
func (r *InMemoryRepo) Upsert(state string, authState *AuthFlowState) error {
	if state == "" {
		return gwerrors.Wrapf(gwerrors.ErrInvalidState, "state cannot be empty")
	}
	if authState == nil {
		return gwerrors.Wrapf(gwerrors.ErrInvalidRequest, "authState cannot be nil")
	}
	// stored by value so callers cannot modify it afterwards
	r.states.Add(state, *authState)
	return nil
}

// Get retrieves an auth flow state by state parameter
func (r *InMemoryRepo) Get(state string) (*AuthFlowState, error) {
	if state == "" {
		return nil, gwerrors.Wrapf(gwerrors.ErrInvalidState, "state cannot be empty")
	}
	authState, ok := r.states.Get(state)
	if !ok {
		return nil, gwerrors.Wrapf(gwerrors.ErrInvalidState, "state not found")
	}
	return &authState, nil
}

// Delete removes an auth flow state
func (r *InMemoryRepo) Delete(state string) error {
	if state == "" {
		return gwerrors.Wrapf(gwerrors.ErrInvalidState, "state cannot be empty")
	}
	r.states.Remove(state)
	return nil
}
