package backend

import (
	"context"
	"fmt"
	"net/http"

	gwerrors "github.com/jrsteele09/constructos-gateway/internal/errors"
	"github.com/jrsteele09/constructos-gateway/users"
)

const genericLoginError = "Login failed. Please check your credentials and try again."

// LoginError is a rejected login. Message is safe to show to the user.
type LoginError struct {
	Status  int
	Message string
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("login rejected (%d): %s", e.Status, e.Message)
}

func (e *LoginError) Unwrap() error {
	return gwerrors.ErrInvalidCredentials
}

type loginResponse struct {
	SessionPayload
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func (r loginResponse) message() string {
	switch {
	case r.Error != "":
		return r.Error
	case r.Detail != "":
		return r.Detail
	default:
		return genericLoginError
	}
}

// Login creates a server session from a username and password.
func (c *Client) Login(ctx context.Context, username, password string) (SessionPayload, error) {
	return c.login(ctx, "login", PathLogin, map[string]string{
		"username": username,
		"password": password,
	})
}

// QuickLogin creates a server session for a preset demo user of the role.
func (c *Client) QuickLogin(ctx context.Context, role string) (SessionPayload, error) {
	return c.login(ctx, "quick_login", PathQuickLogin, map[string]string{"role": role})
}

func (c *Client) login(ctx context.Context, operation, path string, body map[string]string) (SessionPayload, error) {
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return SessionPayload{}, fmt.Errorf("[backend %s] %w", operation, err)
	}
	resp, err := c.do(operation, req)
	if err != nil {
		return SessionPayload{}, err
	}
	status := resp.StatusCode

	var out loginResponse
	decodeErr := decodeJSON(resp, &out)

	if status < 200 || status > 299 {
		return SessionPayload{}, &LoginError{Status: status, Message: out.message()}
	}
	if decodeErr != nil {
		return SessionPayload{}, fmt.Errorf("[backend %s] %w", operation, decodeErr)
	}
	if out.User == nil {
		return SessionPayload{}, &LoginError{Status: status, Message: out.message()}
	}
	return out.SessionPayload, nil
}

// Logout ends the server session. The local cookies are dropped even when
// the backend call fails.
func (c *Client) Logout(ctx context.Context) error {
	defer c.ClearCookies()

	req, err := c.newRequest(ctx, http.MethodPost, PathLogout, nil)
	if err != nil {
		return fmt.Errorf("[backend Logout] %w", err)
	}
	resp, err := c.do("logout", req)
	if err != nil {
		return err
	}
	drain(resp)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: logout status %d", gwerrors.ErrBackend, resp.StatusCode)
	}
	return nil
}

// DemoUsers lists the accounts offered by quick login.
func (c *Client) DemoUsers(ctx context.Context) ([]users.DemoUser, error) {
	req, err := c.newRequest(ctx, http.MethodGet, PathDemoUsers, nil)
	if err != nil {
		return nil, fmt.Errorf("[backend DemoUsers] %w", err)
	}
	resp, err := c.do("demo_users", req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		drain(resp)
		return nil, fmt.Errorf("%w: demo users status %d", gwerrors.ErrBackend, resp.StatusCode)
	}

	var out struct {
		DemoUsers []users.DemoUser `json:"demo_users"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return nil, fmt.Errorf("[backend DemoUsers] %w", err)
	}
	if out.DemoUsers == nil {
		out.DemoUsers = []users.DemoUser{}
	}
	return out.DemoUsers, nil
}
