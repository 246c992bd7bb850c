package users

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is a user identifier. The backend emits integer primary keys for
// database users and strings for directory-backed users; both decode here.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("user id must be a string or number: %w", err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("user id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// User is the resolved, read-facing projection of whoever is signed in.
// It is derived from the active session and never stored on its own.
type User struct {
	ID          ID     `json:"id"`
	Username    string `json:"username,omitempty"`
	Email       string `json:"email,omitempty"`
	FullName    string `json:"full_name,omitempty"`
	Role        string `json:"role,omitempty"`
	RoleDisplay string `json:"role_display,omitempty"`
	Department  string `json:"department,omitempty"`
	IsAdmin     bool   `json:"is_admin"`
	IsExecutive bool   `json:"is_executive"`
	IsInternal  bool   `json:"is_internal"`
}

// DisplayName prefers the full name, then the username, then the email.
func (u *User) DisplayName() string {
	switch {
	case u == nil:
		return ""
	case u.FullName != "":
		return u.FullName
	case u.Username != "":
		return u.Username
	default:
		return u.Email
	}
}

// DemoUser is a preset account offered by the quick login picker.
type DemoUser struct {
	Username    string `json:"username"`
	FullName    string `json:"full_name,omitempty"`
	Role        string `json:"role"`
	RoleDisplay string `json:"role_display,omitempty"`
	Department  string `json:"department,omitempty"`
}
