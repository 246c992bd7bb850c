package token

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Outcome labels how an acquisition ended.
type Outcome string

const (
	OutcomeSilent      Outcome = "silent"
	OutcomeInteractive Outcome = "interactive"
	OutcomeFailed      Outcome = "failed"
	OutcomeSkipped     Outcome = "skipped"
)

// Acquirer obtains bearer tokens from a Provider and publishes them into a Holder.
type Acquirer struct {
	provider  Provider
	holder    *Holder
	onOutcome func(Outcome)
}

type AcquirerOption func(*Acquirer)

// WithOutcomeHook is called once per Acquire with how it ended.
func WithOutcomeHook(fn func(Outcome)) AcquirerOption {
	return func(a *Acquirer) {
		a.onOutcome = fn
	}
}

func NewAcquirer(provider Provider, holder *Holder, opts ...AcquirerOption) *Acquirer {
	a := &Acquirer{
		provider:  provider,
		holder:    holder,
		onOutcome: func(Outcome) {},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Acquirer) Holder() *Holder {
	return a.holder
}

func (a *Acquirer) Provider() Provider {
	return a.provider
}

// Acquire returns a bearer token, trying silent acquisition before
// interactive. It never returns an error: any provider failure clears the
// holder and yields ("", false).
func (a *Acquirer) Acquire(ctx context.Context) (string, bool) {
	if a.provider == nil || !a.provider.Configured() {
		a.onOutcome(OutcomeSkipped)
		return "", false
	}
	account, ok := a.provider.Account()
	if !ok {
		a.onOutcome(OutcomeSkipped)
		return "", false
	}

	tok, err := a.provider.AcquireTokenSilent(ctx, account)
	if err == nil && tok != "" {
		a.holder.Set(tok)
		a.onOutcome(OutcomeSilent)
		return tok, true
	}
	log.Debug().Err(err).Str("account", account.Username).Msg("Silent token acquisition failed, trying interactive")

	tok, err = a.provider.AcquireTokenInteractive(ctx)
	if err == nil && tok != "" {
		a.holder.Set(tok)
		a.onOutcome(OutcomeInteractive)
		return tok, true
	}

	log.Err(err).Str("account", account.Username).Msg("Token acquisition failed")
	a.holder.Clear()
	a.onOutcome(OutcomeFailed)
	return "", false
}
