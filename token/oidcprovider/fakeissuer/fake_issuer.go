// Package fakeissuer is an in-memory OpenID Connect issuer for tests. It
// serves discovery, a JWKS, device authorization and a token endpoint, and
// signs ID tokens with an RSA key.
package fakeissuer

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	KeyID    = "k1"
	ObjectID = "oid-1"
	TenantID = "tenant-1"
	Username = "jane@contoso.test"
	Name     = "Jane Doe"

	UserCode = "ABCD-EFGH"
)

// IDTokenMode controls the ID token returned for an authorization code.
type IDTokenMode int

const (
	IDTokenValid IDTokenMode = iota
	IDTokenWrongNonce
	IDTokenOmitted
)

type grant struct {
	nonce     string
	challenge string
}

// Issuer implements the issuer endpoints over an httptest server.
type Issuer struct {
	server      *httptest.Server
	clientID    string
	key         *rsa.PrivateKey
	roles       []string
	accessToken string

	lock   sync.Mutex
	codes  map[string]grant // authorization code -> grant
	idMode IDTokenMode

	refreshCalls atomic.Int32
	deviceGrants atomic.Int32
}

type Option func(*Issuer)

// WithRoles sets the app roles carried by issued tokens.
func WithRoles(roles ...string) Option {
	return func(i *Issuer) {
		i.roles = roles
	}
}

func New(clientID string, opts ...Option) (*Issuer, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("[fakeissuer New] failed to generate key: %w", err)
	}
	i := &Issuer{
		clientID: clientID,
		key:      key,
		roles:    []string{"finance"},
		codes:    make(map[string]grant),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.accessToken, err = MintAccessToken(ObjectID, i.roles); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", i.discovery)
	mux.HandleFunc("GET /keys", i.keys)
	mux.HandleFunc("POST /devicecode", i.deviceCode)
	mux.HandleFunc("POST /token", i.token)
	i.server = httptest.NewServer(mux)
	return i, nil
}

func (i *Issuer) URL() string {
	return i.server.URL
}

func (i *Issuer) Close() {
	i.server.Close()
}

// AccessToken is the access token returned by every grant.
func (i *Issuer) AccessToken() string {
	return i.accessToken
}

func (i *Issuer) RefreshCalls() int {
	return int(i.refreshCalls.Load())
}

func (i *Issuer) DeviceGrants() int {
	return int(i.deviceGrants.Load())
}

func (i *Issuer) SetIDTokenMode(mode IDTokenMode) {
	i.lock.Lock()
	defer i.lock.Unlock()
	i.idMode = mode
}

// Authorize plays the user approving sign-in at an authorize URL. It
// returns the code and state the browser would carry to the callback.
func (i *Issuer) Authorize(authCodeURL string) (code, state string, err error) {
	u, err := url.Parse(authCodeURL)
	if err != nil {
		return "", "", fmt.Errorf("[fakeissuer Authorize] %w", err)
	}
	q := u.Query()
	if q.Get("client_id") != i.clientID {
		return "", "", fmt.Errorf("[fakeissuer Authorize] unknown client %q", q.Get("client_id"))
	}
	code = uuid.NewString()
	i.lock.Lock()
	i.codes[code] = grant{nonce: q.Get("nonce"), challenge: q.Get("code_challenge")}
	i.lock.Unlock()
	return code, q.Get("state"), nil
}

// MintAccessToken returns an HS256 access token in the Azure AD claim
// shape. It is never verified, only read.
func MintAccessToken(objectID string, roles []string) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"oid":                objectID,
		"tid":                TenantID,
		"preferred_username": Username,
		"name":               Name,
		"roles":              roles,
		"exp":                time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte("fakeissuer-secret"))
	if err != nil {
		return "", fmt.Errorf("[fakeissuer MintAccessToken] %w", err)
	}
	return signed, nil
}

func (i *Issuer) discovery(w http.ResponseWriter, _ *http.Request) {
	base := i.server.URL
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                base,
		"authorization_endpoint":                base + "/authorize",
		"token_endpoint":                        base + "/token",
		"device_authorization_endpoint":         base + "/devicecode",
		"jwks_uri":                              base + "/keys",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (i *Issuer) keys(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       &i.key.PublicKey,
		KeyID:     KeyID,
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}}})
}

func (i *Issuer) deviceCode(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"device_code":      "device-123",
		"user_code":        UserCode,
		"verification_uri": i.server.URL + "/device",
		"expires_in":       60,
		"interval":         1,
	})
}

func (i *Issuer) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_request"})
		return
	}
	body := map[string]any{
		"access_token":  i.accessToken,
		"token_type":    "Bearer",
		"expires_in":    3600,
		"refresh_token": "refresh-" + uuid.NewString(),
	}

	switch r.PostForm.Get("grant_type") {
	case "refresh_token":
		i.refreshCalls.Add(1)
	case "urn:ietf:params:oauth:grant-type:device_code":
		i.deviceGrants.Add(1)
	case "authorization_code":
		idToken, ok, err := i.redeem(r.PostForm.Get("code"), r.PostForm.Get("code_verifier"))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "server_error"})
			return
		}
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
			return
		}
		if idToken != "" {
			body["id_token"] = idToken
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unsupported_grant_type"})
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// redeem consumes a code. Codes are single use and bound to the PKCE
// challenge sent to Authorize.
func (i *Issuer) redeem(code, verifier string) (string, bool, error) {
	i.lock.Lock()
	g, ok := i.codes[code]
	delete(i.codes, code)
	mode := i.idMode
	i.lock.Unlock()

	if !ok {
		return "", false, nil
	}
	if g.challenge != "" {
		sum := sha256.Sum256([]byte(verifier))
		if base64.RawURLEncoding.EncodeToString(sum[:]) != g.challenge {
			return "", false, nil
		}
	}

	switch mode {
	case IDTokenOmitted:
		return "", true, nil
	case IDTokenWrongNonce:
		g.nonce = "not-" + g.nonce
	}
	idToken, err := i.signIDToken(g.nonce)
	return idToken, true, err
}

func (i *Issuer) signIDToken(nonce string) (string, error) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":                i.server.URL,
		"aud":                i.clientID,
		"sub":                ObjectID,
		"oid":                ObjectID,
		"tid":                TenantID,
		"preferred_username": Username,
		"name":               Name,
		"roles":              i.roles,
		"nonce":              nonce,
		"iat":                now.Unix(),
		"exp":                now.Add(time.Hour).Unix(),
	})
	tok.Header["kid"] = KeyID
	return tok.SignedString(i.key)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
