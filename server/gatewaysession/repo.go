// Package gatewaysession stores the per-browser state the gateway keeps on
// behalf of the SPA: a backend client with its cookie jar, an identity
// provider account and the aggregated auth state.
package gatewaysession

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/constructos-gateway/authstate"
	"github.com/jrsteele09/constructos-gateway/backend"
	"github.com/jrsteele09/constructos-gateway/token/oidcprovider"
)

// mountTimeout bounds the first probe, which runs detached from the
// request that triggered it.
const mountTimeout = 10 * time.Second

type Session struct {
	ID        string
	Backend   *backend.Client
	Provider  *oidcprovider.Provider
	Auth      *authstate.Aggregator
	CreatedAt time.Time

	mountOnce sync.Once
}

// State mounts the aggregator on first use and returns its snapshot.
func (s *Session) State(ctx context.Context) authstate.State {
	s.mountOnce.Do(func() {
		mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mountTimeout)
		defer cancel()
		s.Auth.Mount(mctx)
	})
	return s.Auth.State()
}

// Refresh re-resolves the state, bypassing cached provider state. It counts
// as the mount.
func (s *Session) Refresh(ctx context.Context) {
	s.mountOnce.Do(func() {})
	s.Auth.Refresh(ctx)
}

// Reissue returns the same session state under a new ID. The copy counts as
// mounted.
func (s *Session) Reissue(id string) *Session {
	n := &Session{
		ID:        id,
		Backend:   s.Backend,
		Provider:  s.Provider,
		Auth:      s.Auth,
		CreatedAt: time.Now(),
	}
	n.mountOnce.Do(func() {})
	return n
}

type Repo interface {
	Upsert(session *Session) error
	Get(sessionID string) (*Session, error)
	Delete(sessionID string) error
	Len() int
}
