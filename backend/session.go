package backend

import (
	"context"
	"fmt"
	"net/http"

	gwerrors "github.com/jrsteele09/constructos-gateway/internal/errors"
	"github.com/jrsteele09/constructos-gateway/users"
)

// AuthInfo is the normalized answer to "who am I".
type AuthInfo struct {
	Authenticated bool        `json:"authenticated"`
	User          *users.User `json:"user"`
	Roles         []string    `json:"roles"`
	AzureADRoles  []string    `json:"azure_ad_roles"`
	Permissions   []string    `json:"permissions"`
}

// SessionPayload is the server session as returned by login, quick login
// and the cookie-only session lookup.
type SessionPayload struct {
	User         *users.User         `json:"user"`
	Permissions  users.PermissionSet `json:"permissions"`
	SessionToken string              `json:"session_token,omitempty"`
}

// meResponse covers both shapes of the "me" endpoint. The rich shape nests
// the user with a permission map; the legacy shape is flat with explicit
// authenticated, roles and azure_ad_roles fields.
type meResponse struct {
	Authenticated *bool               `json:"authenticated"`
	User          *users.User         `json:"user"`
	Roles         []string            `json:"roles"`
	AzureADRoles  []string            `json:"azure_ad_roles"`
	Permissions   users.PermissionSet `json:"permissions"`
}

func (m meResponse) normalize() AuthInfo {
	info := AuthInfo{
		User:         m.User,
		Roles:        nonNil(m.Roles),
		AzureADRoles: nonNil(m.AzureADRoles),
		Permissions:  m.Permissions.Names(),
	}

	if m.User == nil {
		info.Authenticated = m.Authenticated != nil && *m.Authenticated
		return info
	}

	info.Authenticated = m.Authenticated == nil || *m.Authenticated
	if len(info.Roles) == 0 && m.User.Role != "" {
		info.Roles = []string{m.User.Role}
	}
	return info
}

// FetchCurrentSession asks the backend who the caller is. A non-empty
// bearer token is sent in the Authorization header; session cookies are
// always sent. Any non-2xx status yields ErrFetchAuthInfo.
func (c *Client) FetchCurrentSession(ctx context.Context, bearer string) (AuthInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, PathMe, nil)
	if err != nil {
		return AuthInfo{}, fmt.Errorf("[backend FetchCurrentSession] %w", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.do("me", req)
	if err != nil {
		return AuthInfo{}, fmt.Errorf("%w: %v", gwerrors.ErrFetchAuthInfo, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		drain(resp)
		return AuthInfo{}, fmt.Errorf("%w: status %d", gwerrors.ErrFetchAuthInfo, resp.StatusCode)
	}

	var me meResponse
	if err := decodeJSON(resp, &me); err != nil {
		return AuthInfo{}, fmt.Errorf("%w: %v", gwerrors.ErrFetchAuthInfo, err)
	}
	return me.normalize(), nil
}

// CurrentSession looks up the server session from cookies alone.
func (c *Client) CurrentSession(ctx context.Context) (SessionPayload, error) {
	req, err := c.newRequest(ctx, http.MethodGet, PathMe, nil)
	if err != nil {
		return SessionPayload{}, fmt.Errorf("[backend CurrentSession] %w", err)
	}

	resp, err := c.do("session", req)
	if err != nil {
		return SessionPayload{}, fmt.Errorf("%w: %v", gwerrors.ErrFetchAuthInfo, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		drain(resp)
		return SessionPayload{}, fmt.Errorf("%w: status %d", gwerrors.ErrFetchAuthInfo, resp.StatusCode)
	}

	var payload SessionPayload
	if err := decodeJSON(resp, &payload); err != nil {
		return SessionPayload{}, fmt.Errorf("%w: %v", gwerrors.ErrFetchAuthInfo, err)
	}
	return payload, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
