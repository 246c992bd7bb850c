package authstate_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/constructos-gateway/authstate"
	"github.com/jrsteele09/constructos-gateway/backend"
	gwerrors "github.com/jrsteele09/constructos-gateway/internal/errors"
	"github.com/jrsteele09/constructos-gateway/token"
	"github.com/jrsteele09/constructos-gateway/token/fake"
	"github.com/jrsteele09/constructos-gateway/users"
)

// stubBackend scripts the session backend. When gate is set, CurrentSession
// and FetchCurrentSession block until it is closed.
type stubBackend struct {
	lock sync.Mutex

	session    *backend.SessionPayload
	infos      map[string]backend.AuthInfo
	fetchErrs  []error
	logoutErr  error
	gate       chan struct{}
	entered    chan struct{}
	fetchCalls int
	logouts    int
}

func newStubBackend() *stubBackend {
	return &stubBackend{infos: make(map[string]backend.AuthInfo)}
}

func (s *stubBackend) wait() {
	s.lock.Lock()
	gate, entered := s.gate, s.entered
	s.lock.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
}

func (s *stubBackend) FetchCurrentSession(ctx context.Context, bearer string) (backend.AuthInfo, error) {
	s.wait()
	s.lock.Lock()
	defer s.lock.Unlock()
	s.fetchCalls++
	if len(s.fetchErrs) > 0 {
		err := s.fetchErrs[0]
		s.fetchErrs = s.fetchErrs[1:]
		if err != nil {
			return backend.AuthInfo{}, err
		}
	}
	info, ok := s.infos[bearer]
	if !ok {
		return backend.AuthInfo{}, gwerrors.ErrFetchAuthInfo
	}
	return info, nil
}

func (s *stubBackend) CurrentSession(ctx context.Context) (backend.SessionPayload, error) {
	s.wait()
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.session == nil {
		return backend.SessionPayload{}, gwerrors.ErrFetchAuthInfo
	}
	return *s.session, nil
}

func (s *stubBackend) Logout(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.logouts++
	return s.logoutErr
}

func (s *stubBackend) calls() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.fetchCalls
}

var (
	financeUser = users.User{ID: "7", Username: "fin", Role: "finance_manager"}
	azureAlice  = users.User{ID: "9", Username: "alice@contoso.com", Role: "employee"}
	aliceAcct   = token.Account{HomeAccountID: "oid.tid", Username: "alice@contoso.com"}
)

func sessionPayload(u users.User, perms ...string) backend.SessionPayload {
	return backend.SessionPayload{User: &u, Permissions: users.NewPermissionSet(perms...)}
}

func signedInProvider() *fake.FakeProvider {
	p := fake.NewFakeProvider(&aliceAcct)
	p.SilentToken = "tok-alice"
	return p
}

func aliceInfo() backend.AuthInfo {
	u := azureAlice
	return backend.AuthInfo{
		Authenticated: true,
		User:          &u,
		Roles:         []string{"Finance"},
		AzureADRoles:  []string{"Finance"},
		Permissions:   []string{"invoices.read"},
	}
}

func TestResolve(t *testing.T) {
	session := sessionPayload(financeUser, "ledger.read")
	provider := aliceInfo()

	t.Run("session wins over provider", func(t *testing.T) {
		src := authstate.Resolve(&session, &provider)
		s, ok := src.(authstate.SessionAuth)
		require.True(t, ok)
		require.Equal(t, []string{"finance_manager"}, s.Roles)
		require.Equal(t, []string{"ledger.read"}, s.Permissions)
		require.Equal(t, "fin", s.User.Username)
	})

	t.Run("session without permissions borrows the provider's", func(t *testing.T) {
		bare := sessionPayload(financeUser)
		s := authstate.Resolve(&bare, &provider).(authstate.SessionAuth)
		require.Equal(t, []string{"invoices.read"}, s.Permissions)
	})

	t.Run("provider only", func(t *testing.T) {
		p, ok := authstate.Resolve(nil, &provider).(authstate.ProviderAuth)
		require.True(t, ok)
		require.Equal(t, []string{"Finance"}, p.Roles)
		require.Equal(t, []string{"Finance"}, p.AzureADRoles)
	})

	t.Run("provider says unauthenticated", func(t *testing.T) {
		info := backend.AuthInfo{Authenticated: false}
		require.Equal(t, authstate.KindUnauthenticated, authstate.Resolve(nil, &info).Kind())
	})

	t.Run("session without user is ignored", func(t *testing.T) {
		empty := backend.SessionPayload{}
		require.Equal(t, authstate.KindUnauthenticated, authstate.Resolve(&empty, nil).Kind())
	})
}

func TestMount_NoProviderProbesSession(t *testing.T) {
	b := newStubBackend()
	payload := sessionPayload(financeUser, "all")
	b.session = &payload

	agg := authstate.New(b, nil)
	agg.Mount(context.Background())

	st := agg.State()
	require.True(t, st.IsAuthenticated())
	require.True(t, st.IsSessionAuth())
	require.False(t, st.IsAzureADConfigured)
	require.False(t, st.IsLoading)
	require.True(t, st.IsFinance())
	require.False(t, st.IsHR())
	require.True(t, st.HasPermission("anything"))
	require.Equal(t, "fin", st.User().Username)
}

func TestMount_NoSession(t *testing.T) {
	agg := authstate.New(newStubBackend(), nil)
	agg.Mount(context.Background())

	st := agg.State()
	require.False(t, st.IsAuthenticated())
	require.Nil(t, st.User())
	require.Empty(t, st.Roles())
	require.Empty(t, st.Permissions())
}

func TestMount_ProviderFetchUsesCache(t *testing.T) {
	b := newStubBackend()
	b.infos["tok-alice"] = aliceInfo()
	p := signedInProvider()
	agg := authstate.New(b, token.NewAcquirer(p, token.NewHolder()))

	agg.Mount(context.Background())
	st := agg.State()
	require.True(t, st.IsAuthenticated())
	require.False(t, st.IsSessionAuth())
	require.True(t, st.IsAzureADConfigured)
	require.True(t, st.HasRole("Finance"))
	require.True(t, st.IsFinance())
	require.Equal(t, 1, b.calls())

	agg.Mount(context.Background())
	require.Equal(t, 1, b.calls(), "second mount is served from cache")

	agg.Refresh(context.Background())
	require.Equal(t, 2, b.calls(), "refresh bypasses the cache")

	tok, ok := agg.Tokens().Token()
	require.True(t, ok)
	require.Equal(t, "tok-alice", tok)
}

func TestMount_CacheExpires(t *testing.T) {
	b := newStubBackend()
	b.infos["tok-alice"] = aliceInfo()
	agg := authstate.New(b, token.NewAcquirer(signedInProvider(), token.NewHolder()),
		authstate.WithStaleAfter(20*time.Millisecond))

	agg.Mount(context.Background())
	time.Sleep(60 * time.Millisecond)
	agg.Mount(context.Background())
	require.Equal(t, 2, b.calls())
}

func TestMount_ProviderFetchRetries(t *testing.T) {
	t.Run("second attempt succeeds", func(t *testing.T) {
		b := newStubBackend()
		b.infos["tok-alice"] = aliceInfo()
		b.fetchErrs = []error{errors.New("connection reset")}
		agg := authstate.New(b, token.NewAcquirer(signedInProvider(), token.NewHolder()))

		agg.Mount(context.Background())
		require.True(t, agg.State().IsAuthenticated())
		require.Equal(t, 2, b.calls())
	})

	t.Run("both attempts fail", func(t *testing.T) {
		b := newStubBackend()
		b.infos["tok-alice"] = aliceInfo()
		b.fetchErrs = []error{errors.New("reset"), errors.New("reset again")}
		agg := authstate.New(b, token.NewAcquirer(signedInProvider(), token.NewHolder()))

		agg.Mount(context.Background())
		st := agg.State()
		require.False(t, st.IsAuthenticated())
		require.False(t, st.IsLoading)
		require.Equal(t, 2, b.calls())
	})
}

func TestMount_TokenFailureIsUnauthenticated(t *testing.T) {
	b := newStubBackend()
	p := fake.NewFakeProvider(&aliceAcct)
	holder := token.NewHolder()
	holder.Set("stale")
	agg := authstate.New(b, token.NewAcquirer(p, holder))

	agg.Mount(context.Background())
	require.False(t, agg.State().IsAuthenticated())
	require.Zero(t, b.calls())
	_, ok := holder.Token()
	require.False(t, ok)
}

func TestSessionWinsOverProvider(t *testing.T) {
	b := newStubBackend()
	b.infos["tok-alice"] = aliceInfo()
	agg := authstate.New(b, token.NewAcquirer(signedInProvider(), token.NewHolder()))
	agg.Mount(context.Background())
	require.False(t, agg.State().IsSessionAuth())

	require.NoError(t, agg.LoginWithCredentials(sessionPayload(financeUser)))
	st := agg.State()
	require.True(t, st.IsSessionAuth())
	require.Equal(t, []string{"finance_manager"}, st.Roles())
	require.Equal(t, "fin", st.User().Username)

	// the cache was invalidated so the next mount fetches again
	agg.Mount(context.Background())
	require.Equal(t, 2, b.calls())
	require.True(t, agg.State().IsSessionAuth())
}

func TestLoginWithCredentials_RequiresUser(t *testing.T) {
	agg := authstate.New(newStubBackend(), nil)
	err := agg.LoginWithCredentials(backend.SessionPayload{})
	require.ErrorIs(t, err, gwerrors.ErrInvalidRequest)
	require.False(t, agg.State().IsAuthenticated())
}

func TestLoginWithCredentials_QuickDemo(t *testing.T) {
	agg := authstate.New(newStubBackend(), nil)
	u := users.User{ID: "u1", Username: "sam", Role: "site_manager"}
	require.NoError(t, agg.LoginWithCredentials(sessionPayload(u, "projects.read")))

	st := agg.State()
	require.True(t, st.IsAuthenticated())
	require.True(t, st.HasRole("site_manager"))
	require.True(t, st.HasPermission("projects.read"))
	require.False(t, st.HasPermission("projects.write"))
	require.True(t, st.IsSiteManager())
}

func TestLogout_Session(t *testing.T) {
	b := newStubBackend()
	b.logoutErr = gwerrors.ErrBackend
	p := signedInProvider()
	agg := authstate.New(b, token.NewAcquirer(p, token.NewHolder()))
	require.NoError(t, agg.LoginWithCredentials(sessionPayload(financeUser)))

	agg.Logout(context.Background())
	require.False(t, agg.State().IsAuthenticated())
	require.Equal(t, 1, b.logouts)
	require.Zero(t, p.LogoutCalls, "session logout leaves the provider alone")

	agg.Logout(context.Background())
	require.False(t, agg.State().IsAuthenticated())
}

func TestLogout_Provider(t *testing.T) {
	b := newStubBackend()
	b.infos["tok-alice"] = aliceInfo()
	p := signedInProvider()
	p.LogoutErr = errors.New("end_session failed")
	agg := authstate.New(b, token.NewAcquirer(p, token.NewHolder()))
	agg.Mount(context.Background())
	require.True(t, agg.State().IsAuthenticated())

	agg.Logout(context.Background())
	require.False(t, agg.State().IsAuthenticated())
	require.Equal(t, 1, p.LogoutCalls)
	require.Zero(t, b.logouts)
	_, ok := agg.Tokens().Token()
	require.False(t, ok)

	// idempotent
	agg.Logout(context.Background())
	require.False(t, agg.State().IsAuthenticated())
}

func TestLogout_Unconfigured(t *testing.T) {
	b := newStubBackend()
	agg := authstate.New(b, nil)
	agg.Logout(context.Background())
	agg.Logout(context.Background())
	require.False(t, agg.State().IsAuthenticated())
	require.Zero(t, b.logouts)
}

func TestLogin(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		agg := authstate.New(newStubBackend(), nil)
		require.ErrorIs(t, agg.Login(context.Background()), gwerrors.ErrNotConfigured)
	})

	t.Run("interactive sign-in", func(t *testing.T) {
		b := newStubBackend()
		b.infos["tok-interactive"] = aliceInfo()
		p := fake.NewFakeProvider(nil)
		p.InteractiveToken = "tok-interactive"
		p.SilentToken = "tok-interactive"
		agg := authstate.New(b, token.NewAcquirer(p, token.NewHolder()))

		// the device flow signs the account in before returning the token
		p.SignIn(aliceAcct)
		require.NoError(t, agg.Login(context.Background()))
		require.True(t, agg.State().IsAuthenticated())
		require.Equal(t, 1, p.InteractiveCalls)
	})

	t.Run("user cancels", func(t *testing.T) {
		p := fake.NewFakeProvider(nil)
		agg := authstate.New(newStubBackend(), token.NewAcquirer(p, token.NewHolder()))
		require.Error(t, agg.Login(context.Background()))
		require.False(t, agg.State().IsAuthenticated())
	})
}

func TestStaleCompletionIsDiscarded(t *testing.T) {
	b := newStubBackend()
	payload := sessionPayload(financeUser)
	b.session = &payload
	b.gate = make(chan struct{})
	b.entered = make(chan struct{}, 1)
	agg := authstate.New(b, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		agg.Mount(context.Background())
	}()

	<-b.entered
	require.True(t, agg.State().IsLoading)

	agg.Logout(context.Background())
	close(b.gate)
	<-done

	st := agg.State()
	require.False(t, st.IsLoading)
	require.False(t, st.IsAuthenticated(), "probe started before logout must not resurrect the session")
}

func TestInteractionInProgress(t *testing.T) {
	p := signedInProvider()
	p.Interacting = true
	agg := authstate.New(newStubBackend(), token.NewAcquirer(p, token.NewHolder()))
	require.True(t, agg.State().InteractionInProgress)
}

func TestResolutionHook(t *testing.T) {
	var kinds []authstate.SourceKind
	b := newStubBackend()
	payload := sessionPayload(financeUser)
	b.session = &payload
	agg := authstate.New(b, nil, authstate.WithResolutionHook(func(k authstate.SourceKind) {
		kinds = append(kinds, k)
	}))

	agg.State()
	agg.Mount(context.Background())
	agg.State()
	require.Equal(t, []authstate.SourceKind{authstate.KindUnauthenticated, authstate.KindSession}, kinds)
}

func TestState_View(t *testing.T) {
	b := newStubBackend()
	b.infos["tok-alice"] = aliceInfo()
	agg := authstate.New(b, token.NewAcquirer(signedInProvider(), token.NewHolder()),
		authstate.WithRoleTable(users.NewRoleTable(map[string][]string{"hr": {"Finance"}})))
	agg.Mount(context.Background())

	v := agg.State().View()
	require.True(t, v.IsAuthenticated)
	require.Equal(t, authstate.KindProvider, v.Source)
	require.Equal(t, []string{"Finance"}, v.AzureADRoles)
	require.True(t, v.IsHR, "role table override applies")
	require.False(t, v.IsAdmin)
	require.Equal(t, "alice@contoso.com", v.User.Username)
}
