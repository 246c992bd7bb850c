package gatewaysession

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	gwerrors "github.com/jrsteele09/constructos-gateway/internal/errors"
)

// InMemoryRepo keeps sessions in a size bounded LRU. Sessions expire a
// fixed time after creation.
type InMemoryRepo struct {
	sessions *expirable.LRU[string, *Session]
}

type RepoOption func(*repoOptions)

type repoOptions struct {
	onEvict func(*Session)
}

// WithEvictHook is called when a session expires or is pushed out.
func WithEvictHook(fn func(*Session)) RepoOption {
	return func(o *repoOptions) {
		o.onEvict = fn
	}
}

func NewInMemoryRepo(maxSessions int, maxAge time.Duration, opts ...RepoOption) *InMemoryRepo {
	var o repoOptions
	for _, opt := range opts {
		opt(&o)
	}
	var onEvict expirable.EvictCallback[string, *Session]
	if o.onEvict != nil {
		onEvict = func(_ string, s *Session) { o.onEvict(s) }
	}
	return &InMemoryRepo{
		sessions: expirable.NewLRU[string, *Session](maxSessions, onEvict, maxAge),
	}
}

func (r *InMemoryRepo) Upsert(session *Session) error {
	if session == nil || session.ID == "" {
		return gwerrors.Wrapf(gwerrors.ErrInvalidRequest, "[gatewaysession Upsert] session ID is required")
	}
	r.sessions.Add(session.ID, session)
	return nil
}

func (r *InMemoryRepo) Get(sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, gwerrors.Wrapf(gwerrors.ErrInvalidRequest, "[gatewaysession Get] session ID is required")
	}
	s, ok := r.sessions.Get(sessionID)
	if !ok {
		return nil, gwerrors.ErrSessionNotFound
	}
	return s, nil
}

// Delete removes a session. Deleting an unknown session is not an error.
func (r *InMemoryRepo) Delete(sessionID string) error {
	if sessionID == "" {
		return gwerrors.Wrapf(gwerrors.ErrInvalidRequest, "[gatewaysession Delete] session ID is required")
	}
	r.sessions.Remove(sessionID)
	return nil
}

func (r *InMemoryRepo) Len() int {
	return r.sessions.Len()
}
