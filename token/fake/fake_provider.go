package fake

import (
	"context"
	"errors"
	"sync"

	"github.com/jrsteele09/constructos-gateway/token"
)

var _ token.Provider = (*FakeProvider)(nil)

// FakeProvider is a scriptable identity provider for tests.
type FakeProvider struct {
	lock sync.Mutex

	IsConfigured bool
	SignedIn     *token.Account
	Interacting  bool

	SilentToken      string
	SilentErr        error
	InteractiveToken string
	InteractiveErr   error
	LogoutErr        error

	SilentCalls      int
	InteractiveCalls int
	LogoutCalls      int
}

func NewFakeProvider(account *token.Account) *FakeProvider {
	return &FakeProvider{IsConfigured: true, SignedIn: account}
}

func (f *FakeProvider) Configured() bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.IsConfigured
}

func (f *FakeProvider) Account() (token.Account, bool) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.SignedIn == nil {
		return token.Account{}, false
	}
	return *f.SignedIn, true
}

// SignIn sets the signed-in account.
func (f *FakeProvider) SignIn(account token.Account) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.SignedIn = &account
}

func (f *FakeProvider) AcquireTokenSilent(ctx context.Context, account token.Account) (string, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.SilentCalls++
	if f.SilentErr != nil {
		return "", f.SilentErr
	}
	if f.SilentToken == "" {
		return "", errors.New("no cached token")
	}
	return f.SilentToken, nil
}

func (f *FakeProvider) AcquireTokenInteractive(ctx context.Context) (string, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.InteractiveCalls++
	if f.InteractiveErr != nil {
		return "", f.InteractiveErr
	}
	if f.InteractiveToken == "" {
		return "", errors.New("user cancelled")
	}
	return f.InteractiveToken, nil
}

func (f *FakeProvider) InteractionInProgress() bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.Interacting
}

func (f *FakeProvider) Logout(ctx context.Context) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.LogoutCalls++
	f.SignedIn = nil
	return f.LogoutErr
}
