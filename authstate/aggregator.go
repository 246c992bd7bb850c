// Package authstate aggregates the identity provider and the server session
// into one auth state.
package authstate

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/constructos-gateway/backend"
	gwerrors "github.com/jrsteele09/constructos-gateway/internal/errors"
	"github.com/jrsteele09/constructos-gateway/token"
	"github.com/jrsteele09/constructos-gateway/users"
)

const (
	DefaultStaleAfter = 5 * time.Minute
	DefaultRetries    = 1

	cacheSize = 16
)

// SessionBackend is the part of the backend client the aggregator needs.
type SessionBackend interface {
	FetchCurrentSession(ctx context.Context, bearer string) (backend.AuthInfo, error)
	CurrentSession(ctx context.Context) (backend.SessionPayload, error)
	Logout(ctx context.Context) error
}

var _ SessionBackend = (*backend.Client)(nil)

// Aggregator owns the auth state of one user agent. Every operation that
// starts a backend round trip takes a generation number; a completion is
// applied only if no newer operation started in the meantime.
type Aggregator struct {
	lock sync.Mutex

	backend  SessionBackend
	acquirer *token.Acquirer
	roles    *users.RoleTable
	retries  int
	cache    *expirable.LRU[string, backend.AuthInfo]
	onSource func(SourceKind)

	session    *backend.SessionPayload
	provider   *backend.AuthInfo
	generation uint64
	inflight   int
}

type Option func(*aggregatorOptions)

type aggregatorOptions struct {
	roles      *users.RoleTable
	staleAfter time.Duration
	retries    int
	onSource   func(SourceKind)
}

func WithRoleTable(t *users.RoleTable) Option {
	return func(o *aggregatorOptions) {
		o.roles = t
	}
}

// WithStaleAfter sets how long a provider fetch result is served from cache.
func WithStaleAfter(d time.Duration) Option {
	return func(o *aggregatorOptions) {
		o.staleAfter = d
	}
}

// WithRetries sets how many times a failed provider fetch is retried.
func WithRetries(n int) Option {
	return func(o *aggregatorOptions) {
		o.retries = n
	}
}

// WithResolutionHook is called with the source kind each time a state
// snapshot is taken.
func WithResolutionHook(fn func(SourceKind)) Option {
	return func(o *aggregatorOptions) {
		o.onSource = fn
	}
}

func New(b SessionBackend, acquirer *token.Acquirer, opts ...Option) *Aggregator {
	o := aggregatorOptions{
		staleAfter: DefaultStaleAfter,
		retries:    DefaultRetries,
		onSource:   func(SourceKind) {},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.roles == nil {
		o.roles = users.NewRoleTable(nil)
	}
	if o.retries < 0 {
		o.retries = 0
	}
	if acquirer == nil {
		acquirer = token.NewAcquirer(nil, token.NewHolder())
	}
	return &Aggregator{
		backend:  b,
		acquirer: acquirer,
		roles:    o.roles,
		retries:  o.retries,
		cache:    expirable.NewLRU[string, backend.AuthInfo](cacheSize, nil, o.staleAfter),
		onSource: o.onSource,
	}
}

func (a *Aggregator) Tokens() *token.Holder {
	return a.acquirer.Holder()
}

func (a *Aggregator) providerConfigured() bool {
	p := a.acquirer.Provider()
	return p != nil && p.Configured()
}

func (a *Aggregator) account() (token.Account, bool) {
	if !a.providerConfigured() {
		return token.Account{}, false
	}
	return a.acquirer.Provider().Account()
}

// Mount resolves the initial state. A signed-in provider account triggers a
// provider fetch; otherwise the server session is probed.
func (a *Aggregator) Mount(ctx context.Context) {
	if _, ok := a.account(); ok {
		a.fetchProvider(ctx, false)
		return
	}
	a.probeSession(ctx)
}

// Refresh re-fetches provider state, bypassing the cache. With no signed-in
// account it re-probes the server session instead.
func (a *Aggregator) Refresh(ctx context.Context) {
	if _, ok := a.account(); ok {
		a.fetchProvider(ctx, true)
		return
	}
	a.probeSession(ctx)
}

// Login runs an interactive provider sign-in and refreshes provider state.
func (a *Aggregator) Login(ctx context.Context) error {
	if !a.providerConfigured() {
		return gwerrors.ErrNotConfigured
	}
	tok, err := a.acquirer.Provider().AcquireTokenInteractive(ctx)
	if err != nil {
		return gwerrors.Wrapf(err, "[authstate Login] interactive sign-in")
	}
	a.acquirer.Holder().Set(tok)
	a.fetchProvider(ctx, true)
	return nil
}

// LoginWithCredentials records a server session obtained by credential or
// quick login. It invalidates cached provider state and supersedes any
// fetch still in flight.
func (a *Aggregator) LoginWithCredentials(payload backend.SessionPayload) error {
	if payload.User == nil {
		return gwerrors.Wrapf(gwerrors.ErrInvalidRequest, "[authstate LoginWithCredentials] session has no user")
	}
	a.lock.Lock()
	defer a.lock.Unlock()
	a.generation++
	a.session = &payload
	a.cache.Purge()
	log.Info().Str("username", payload.User.Username).Str("role", payload.User.Role).Msg("Server session established")
	return nil
}

// Logout ends whichever source is active. Failures are logged and never
// returned; local state is always cleared.
func (a *Aggregator) Logout(ctx context.Context) {
	a.lock.Lock()
	a.generation++
	isSession := a.session != nil
	a.lock.Unlock()

	switch {
	case isSession:
		if err := a.backend.Logout(ctx); err != nil {
			log.Err(err).Msg("Server session logout failed")
		}
	case a.providerConfigured():
		if err := a.acquirer.Provider().Logout(ctx); err != nil {
			log.Err(err).Msg("Identity provider logout failed")
		}
		a.acquirer.Holder().Clear()
	}

	a.lock.Lock()
	defer a.lock.Unlock()
	a.session = nil
	a.provider = nil
	a.cache.Purge()
}

// State takes a snapshot of the aggregated state.
func (a *Aggregator) State() State {
	a.lock.Lock()
	src := Resolve(a.session, a.provider)
	loading := a.inflight > 0
	a.lock.Unlock()

	interacting := false
	if p := a.acquirer.Provider(); p != nil {
		interacting = p.InteractionInProgress()
	}
	a.onSource(src.Kind())
	return State{
		Source:                src,
		IsLoading:             loading,
		IsAzureADConfigured:   a.providerConfigured(),
		InteractionInProgress: interacting,
		roles:                 a.roles,
	}
}

func (a *Aggregator) begin() uint64 {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.generation++
	a.inflight++
	return a.generation
}

// finish applies a completion under the lock if gen is still current.
func (a *Aggregator) finish(gen uint64, apply func()) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.inflight--
	if gen != a.generation {
		log.Debug().Uint64("generation", gen).Uint64("current", a.generation).Msg("Discarding stale auth completion")
		return
	}
	apply()
}

func (a *Aggregator) probeSession(ctx context.Context) {
	gen := a.begin()
	payload, err := a.backend.CurrentSession(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("No server session")
	}
	a.finish(gen, func() {
		if err == nil && payload.User != nil {
			a.session = &payload
		}
	})
}

func (a *Aggregator) fetchProvider(ctx context.Context, bypassCache bool) {
	gen := a.begin()
	account, _ := a.account()
	key := account.HomeAccountID

	if !bypassCache {
		if info, ok := a.cache.Get(key); ok {
			a.finish(gen, func() {
				a.provider = &info
			})
			return
		}
	}

	bearer, ok := a.acquirer.Acquire(ctx)
	if !ok {
		a.finish(gen, func() {
			a.provider = nil
		})
		return
	}

	info, err := a.fetchWithRetry(ctx, bearer)
	a.finish(gen, func() {
		if err != nil {
			log.Err(err).Str("account", account.Username).Msg("Provider auth state fetch failed")
			a.provider = nil
			return
		}
		a.provider = &info
		a.cache.Add(key, info)
	})
}

func (a *Aggregator) fetchWithRetry(ctx context.Context, bearer string) (backend.AuthInfo, error) {
	var (
		info backend.AuthInfo
		err  error
	)
	for attempt := 0; attempt <= a.retries; attempt++ {
		info, err = a.backend.FetchCurrentSession(ctx, bearer)
		if err == nil {
			return info, nil
		}
		if ctx.Err() != nil {
			break
		}
		log.Debug().Err(err).Int("attempt", attempt+1).Msg("Retrying auth state fetch")
	}
	return backend.AuthInfo{}, err
}
