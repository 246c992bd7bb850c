package gatewaysession_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/constructos-gateway/authstate"
	"github.com/jrsteele09/constructos-gateway/backend"
	gwerrors "github.com/jrsteele09/constructos-gateway/internal/errors"
	"github.com/jrsteele09/constructos-gateway/server/gatewaysession"
)

type countingBackend struct {
	probes int
	ctxErr error
}

func (c *countingBackend) FetchCurrentSession(context.Context, string) (backend.AuthInfo, error) {
	return backend.AuthInfo{}, gwerrors.ErrFetchAuthInfo
}

func (c *countingBackend) CurrentSession(ctx context.Context) (backend.SessionPayload, error) {
	c.probes++
	c.ctxErr = ctx.Err()
	return backend.SessionPayload{}, gwerrors.ErrFetchAuthInfo
}

func (c *countingBackend) Logout(context.Context) error { return nil }

func TestInMemoryRepo(t *testing.T) {
	repo := gatewaysession.NewInMemoryRepo(10, time.Hour)

	require.ErrorIs(t, repo.Upsert(&gatewaysession.Session{}), gwerrors.ErrInvalidRequest)

	s := &gatewaysession.Session{ID: "abc", CreatedAt: time.Now()}
	require.NoError(t, repo.Upsert(s))
	require.Equal(t, 1, repo.Len())

	got, err := repo.Get("abc")
	require.NoError(t, err)
	require.Same(t, s, got)

	_, err = repo.Get("missing")
	require.ErrorIs(t, err, gwerrors.ErrSessionNotFound)

	require.NoError(t, repo.Delete("abc"))
	require.NoError(t, repo.Delete("abc"))
	_, err = repo.Get("abc")
	require.ErrorIs(t, err, gwerrors.ErrSessionNotFound)
}

func TestInMemoryRepo_Expiry(t *testing.T) {
	evicted := make(chan string, 1)
	repo := gatewaysession.NewInMemoryRepo(10, 20*time.Millisecond, gatewaysession.WithEvictHook(func(s *gatewaysession.Session) {
		evicted <- s.ID
	}))
	require.NoError(t, repo.Upsert(&gatewaysession.Session{ID: "short"}))

	require.Eventually(t, func() bool {
		_, err := repo.Get("short")
		return err != nil
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, "short", <-evicted)
}

func TestInMemoryRepo_SizeBound(t *testing.T) {
	repo := gatewaysession.NewInMemoryRepo(2, time.Hour)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Upsert(&gatewaysession.Session{ID: id}))
	}
	require.Equal(t, 2, repo.Len())
	_, err := repo.Get("a")
	require.ErrorIs(t, err, gwerrors.ErrSessionNotFound)
}

func TestSession_StateMountsOnce(t *testing.T) {
	b := &countingBackend{}
	s := &gatewaysession.Session{ID: "x", Auth: authstate.New(b, nil)}

	require.False(t, s.State(context.Background()).IsAuthenticated())
	require.False(t, s.State(context.Background()).IsAuthenticated())
	require.Equal(t, 1, b.probes)
}

func TestSession_RefreshCountsAsMount(t *testing.T) {
	b := &countingBackend{}
	s := &gatewaysession.Session{ID: "x", Auth: authstate.New(b, nil)}

	s.Refresh(context.Background())
	s.State(context.Background())
	require.Equal(t, 1, b.probes)
}

func TestSession_MountOutlivesCancelledRequest(t *testing.T) {
	b := &countingBackend{}
	s := &gatewaysession.Session{ID: "x", Auth: authstate.New(b, nil)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.State(ctx)
	require.Equal(t, 1, b.probes)
	require.NoError(t, b.ctxErr)
}

func TestSession_Reissue(t *testing.T) {
	b := &countingBackend{}
	s := &gatewaysession.Session{ID: "old", Auth: authstate.New(b, nil)}

	n := s.Reissue("new")
	require.Equal(t, "new", n.ID)
	require.Same(t, s.Auth, n.Auth)
	n.State(context.Background())
	require.Zero(t, b.probes)
}
