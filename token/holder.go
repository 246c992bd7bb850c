package token

import "sync"

// Holder stores the current bearer token. The Acquirer writes it and API
// clients read it through TokenProvider.
type Holder struct {
	mu    sync.RWMutex
	token string
}

var _ TokenProvider = (*Holder)(nil)

func NewHolder() *Holder {
	return &Holder{}
}

func (h *Holder) Token() (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token, h.token != ""
}

func (h *Holder) Set(token string) {
	h.mu.Lock()
	h.token = token
	h.mu.Unlock()
}

func (h *Holder) Clear() {
	h.Set("")
}

// StaticToken is a TokenProvider for a fixed token.
type StaticToken string

func (s StaticToken) Token() (string, bool) {
	return string(s), s != ""
}
