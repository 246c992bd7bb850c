package backend_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/constructos-gateway/backend"
	"github.com/jrsteele09/constructos-gateway/backend/fakebackend"
	gwerrors "github.com/jrsteele09/constructos-gateway/internal/errors"
	"github.com/jrsteele09/constructos-gateway/token"
	"github.com/jrsteele09/constructos-gateway/users"
	"github.com/stretchr/testify/require"
)

const testPassword = "Password123"

var siteManager = users.User{
	ID:          "u1",
	Username:    "sam.site",
	Email:       "sam@constructos.test",
	FullName:    "Sam Site",
	Role:        "site_manager",
	RoleDisplay: "Site Manager",
	Department:  "Operations",
	IsInternal:  true,
}

type fixture struct {
	fake   *fakebackend.FakeBackend
	server *httptest.Server
	client *backend.Client
	calls  []string
}

func setupFixture(t *testing.T, opts ...backend.Option) *fixture {
	t.Helper()
	f := &fixture{fake: fakebackend.New()}
	f.fake.AddUser(testPassword, siteManager, map[string]bool{"projects.read": true, "projects.write": false})
	f.server = httptest.NewServer(f.fake)
	t.Cleanup(f.server.Close)

	opts = append(opts, backend.WithObserver(func(op string, _ time.Duration, _ error) {
		f.calls = append(f.calls, op)
	}))
	client, err := backend.NewClient(f.server.URL+"/", opts...)
	require.NoError(t, err)
	f.client = client
	return f
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := backend.NewClient("not a url")
	require.Error(t, err)

	_, err = backend.NewClient("/relative")
	require.Error(t, err)
}

func TestFetchCurrentSession_RichShape(t *testing.T) {
	f := setupFixture(t)
	_, err := f.client.Login(context.Background(), "sam.site", testPassword)
	require.NoError(t, err)

	info, err := f.client.FetchCurrentSession(context.Background(), "")
	require.NoError(t, err)
	require.True(t, info.Authenticated)
	require.Equal(t, users.ID("u1"), info.User.ID)
	require.Equal(t, []string{"site_manager"}, info.Roles)
	require.Equal(t, []string{}, info.AzureADRoles)
	require.Equal(t, []string{"projects.read"}, info.Permissions)
}

func TestFetchCurrentSession_LegacyShape(t *testing.T) {
	f := setupFixture(t)
	f.fake.AddBearer("legacy-token", map[string]any{
		"authenticated":  true,
		"user":           nil,
		"roles":          []string{"finance", "admin"},
		"azure_ad_roles": []string{"ConstructOS.Finance"},
		"permissions":    []string{"invoices.read"},
	})

	info, err := f.client.FetchCurrentSession(context.Background(), "legacy-token")
	require.NoError(t, err)
	require.True(t, info.Authenticated)
	require.Nil(t, info.User)
	require.Equal(t, []string{"finance", "admin"}, info.Roles)
	require.Equal(t, []string{"ConstructOS.Finance"}, info.AzureADRoles)
	require.Equal(t, []string{"invoices.read"}, info.Permissions)
}

func TestFetchCurrentSession_LegacyUnauthenticated(t *testing.T) {
	f := setupFixture(t)
	f.fake.AddBearer("anon", map[string]any{"authenticated": false})

	info, err := f.client.FetchCurrentSession(context.Background(), "anon")
	require.NoError(t, err)
	require.False(t, info.Authenticated)
	require.Empty(t, info.Roles)
}

func TestFetchCurrentSession_RichWithLegacyRoles(t *testing.T) {
	f := setupFixture(t)
	f.fake.AddBearer("rich", map[string]any{
		"user":        map[string]any{"id": 7, "username": "fin", "role": "finance"},
		"roles":       []string{"finance", "hr"},
		"permissions": "all",
	})

	info, err := f.client.FetchCurrentSession(context.Background(), "rich")
	require.NoError(t, err)
	require.True(t, info.Authenticated)
	require.Equal(t, users.ID("7"), info.User.ID)
	require.Equal(t, []string{"finance", "hr"}, info.Roles)
	require.Equal(t, []string{users.PermissionAll}, info.Permissions)
}

func TestFetchCurrentSession_Non2xx(t *testing.T) {
	f := setupFixture(t)

	_, err := f.client.FetchCurrentSession(context.Background(), "unknown-token")
	require.ErrorIs(t, err, gwerrors.ErrFetchAuthInfo)
	require.Contains(t, err.Error(), "failed to fetch auth info")

	f.fake.MeStatus = http.StatusInternalServerError
	_, err = f.client.CurrentSession(context.Background())
	require.ErrorIs(t, err, gwerrors.ErrFetchAuthInfo)
}

func TestFetchCurrentSession_Unreachable(t *testing.T) {
	f := setupFixture(t)
	f.server.Close()

	_, err := f.client.FetchCurrentSession(context.Background(), "")
	require.ErrorIs(t, err, gwerrors.ErrFetchAuthInfo)
}

func TestLogin(t *testing.T) {
	t.Run("success stores the session cookie", func(t *testing.T) {
		f := setupFixture(t)
		payload, err := f.client.Login(context.Background(), "sam.site", testPassword)
		require.NoError(t, err)
		require.Equal(t, "site_manager", payload.User.Role)
		require.True(t, payload.Permissions.Has("projects.read"))
		require.False(t, payload.Permissions.Has("projects.write"))
		require.NotEmpty(t, payload.SessionToken)

		session, err := f.client.CurrentSession(context.Background())
		require.NoError(t, err)
		require.Equal(t, "sam.site", session.User.Username)
		require.Equal(t, []string{"login", "session"}, f.calls)
	})

	t.Run("bad password surfaces the error field", func(t *testing.T) {
		f := setupFixture(t)
		_, err := f.client.Login(context.Background(), "sam.site", "wrong")
		var loginErr *backend.LoginError
		require.ErrorAs(t, err, &loginErr)
		require.Equal(t, http.StatusUnauthorized, loginErr.Status)
		require.Equal(t, "Invalid username or password", loginErr.Message)
		require.ErrorIs(t, err, gwerrors.ErrInvalidCredentials)
	})

	t.Run("missing username surfaces the detail field", func(t *testing.T) {
		f := setupFixture(t)
		_, err := f.client.Login(context.Background(), "", "")
		var loginErr *backend.LoginError
		require.ErrorAs(t, err, &loginErr)
		require.Equal(t, "Username and password are required.", loginErr.Message)
	})
}

func TestQuickLogin(t *testing.T) {
	f := setupFixture(t)

	payload, err := f.client.QuickLogin(context.Background(), "site_manager")
	require.NoError(t, err)
	require.Equal(t, "sam.site", payload.User.Username)

	_, err = f.client.QuickLogin(context.Background(), "astronaut")
	var loginErr *backend.LoginError
	require.ErrorAs(t, err, &loginErr)
	require.Equal(t, http.StatusBadRequest, loginErr.Status)
}

func TestLogout(t *testing.T) {
	f := setupFixture(t)
	_, err := f.client.Login(context.Background(), "sam.site", testPassword)
	require.NoError(t, err)
	require.Equal(t, 1, f.fake.SessionCount())

	require.NoError(t, f.client.Logout(context.Background()))
	require.Equal(t, 0, f.fake.SessionCount())
	require.NotEmpty(t, f.fake.LastCSRF)

	_, err = f.client.CurrentSession(context.Background())
	require.ErrorIs(t, err, gwerrors.ErrFetchAuthInfo)

	t.Run("backend failure still drops cookies", func(t *testing.T) {
		f := setupFixture(t)
		_, err := f.client.Login(context.Background(), "sam.site", testPassword)
		require.NoError(t, err)
		f.fake.LogoutFails = true

		require.ErrorIs(t, f.client.Logout(context.Background()), gwerrors.ErrBackend)
		for _, c := range f.client.Cookies() {
			require.NotEqual(t, fakebackend.SessionCookieName, c.Name)
		}
	})
}

func TestDemoUsers(t *testing.T) {
	f := setupFixture(t)
	demo, err := f.client.DemoUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, demo, 1)
	require.Equal(t, "site_manager", demo[0].Role)
	require.Equal(t, "Sam Site", demo[0].FullName)
}

func TestDo_AttachesBearerToken(t *testing.T) {
	holder := token.NewHolder()
	f := setupFixture(t, backend.WithTokenProvider(holder))

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/api/v1/projects/", nil)
	require.NoError(t, err)
	resp, err := f.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	holder.Set("abc")
	req, err = http.NewRequest(http.MethodGet, f.server.URL+"/api/v1/projects/", nil)
	require.NoError(t, err)
	resp, err = f.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, "Bearer abc", req.Header.Get("Authorization"))
}

func TestObserver_SeesFailedStatuses(t *testing.T) {
	fake := fakebackend.New()
	fake.AddUser(testPassword, siteManager, nil)
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	observed := map[string]error{}
	client, err := backend.NewClient(srv.URL, backend.WithObserver(func(op string, _ time.Duration, err error) {
		observed[op] = err
	}))
	require.NoError(t, err)
	ctx := context.Background()

	// an anonymous probe is an answer, not a failure
	_, err = client.CurrentSession(ctx)
	require.Error(t, err)
	require.NoError(t, observed["session"])

	_, err = client.Login(ctx, siteManager.Username, "wrong")
	require.Error(t, err)
	require.NoError(t, observed["login"])

	fake.MeStatus = http.StatusInternalServerError
	_, err = client.FetchCurrentSession(ctx, "")
	require.Error(t, err)
	var statusErr *backend.StatusError
	require.ErrorAs(t, observed["me"], &statusErr)
	require.Equal(t, http.StatusInternalServerError, statusErr.Status)
	require.ErrorIs(t, observed["me"], gwerrors.ErrBackend)

	fake.LogoutFails = true
	require.Error(t, client.Logout(ctx))
	require.ErrorAs(t, observed["logout"], &statusErr)
	require.Equal(t, "logout", statusErr.Operation)
}
