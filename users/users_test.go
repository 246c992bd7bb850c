package users_test

import (
	"encoding/json"
	"testing"

	"github.com/jrsteele09/constructos-gateway/users"
	"github.com/stretchr/testify/require"
)

func TestUser_UnmarshalID(t *testing.T) {
	var numeric users.User
	require.NoError(t, json.Unmarshal([]byte(`{"id": 42, "username": "jdoe"}`), &numeric))
	require.Equal(t, users.ID("42"), numeric.ID)

	var str users.User
	require.NoError(t, json.Unmarshal([]byte(`{"id": "u1", "role": "site_manager"}`), &str))
	require.Equal(t, users.ID("u1"), str.ID)
	require.Equal(t, "site_manager", str.Role)

	var bad users.User
	require.Error(t, json.Unmarshal([]byte(`{"id": true}`), &bad))
}

func TestUser_DisplayName(t *testing.T) {
	var nilUser *users.User
	require.Equal(t, "", nilUser.DisplayName())
	require.Equal(t, "Jane Doe", (&users.User{FullName: "Jane Doe", Username: "jdoe"}).DisplayName())
	require.Equal(t, "jdoe", (&users.User{Username: "jdoe", Email: "j@x.test"}).DisplayName())
	require.Equal(t, "j@x.test", (&users.User{Email: "j@x.test"}).DisplayName())
}

func TestPermissionSet_Unmarshal(t *testing.T) {
	t.Run("object keeps truthy keys", func(t *testing.T) {
		var p users.PermissionSet
		require.NoError(t, json.Unmarshal([]byte(`{"projects.read": true, "projects.write": false, "invoices.read": 1, "hr.read": ""}`), &p))
		require.Equal(t, []string{"invoices.read", "projects.read"}, p.Names())
		require.True(t, p.Has("projects.read"))
		require.False(t, p.Has("projects.write"))
	})

	t.Run("array", func(t *testing.T) {
		var p users.PermissionSet
		require.NoError(t, json.Unmarshal([]byte(`["a", "b"]`), &p))
		require.True(t, p.Has("a"))
		require.False(t, p.Has("c"))
	})

	t.Run("wildcard string", func(t *testing.T) {
		var p users.PermissionSet
		require.NoError(t, json.Unmarshal([]byte(`"all"`), &p))
		require.True(t, p.Has("anything.at.all"))
	})

	t.Run("null", func(t *testing.T) {
		var p users.PermissionSet
		require.NoError(t, json.Unmarshal([]byte(`null`), &p))
		require.True(t, p.IsEmpty())
	})

	t.Run("number rejected", func(t *testing.T) {
		var p users.PermissionSet
		require.Error(t, json.Unmarshal([]byte(`12`), &p))
	})
}

func TestHasPermission_Wildcard(t *testing.T) {
	for _, name := range []string{"", "projects.read", "ALL", "payroll.approve"} {
		require.True(t, users.HasPermission([]string{"x", users.PermissionAll}, name), name)
	}
	require.False(t, users.HasPermission([]string{"projects.read"}, "projects.write"))
	require.True(t, users.HasPermission([]string{"projects.read"}, "projects.read"))
}

func TestHasAnyRole(t *testing.T) {
	tests := []struct {
		name    string
		roles   []string
		allowed []string
		want    bool
	}{
		{"overlap", []string{"finance", "hr"}, []string{"hr"}, true},
		{"disjoint", []string{"finance"}, []string{"hr", "admin"}, false},
		{"case sensitive", []string{"Finance"}, []string{"finance"}, false},
		{"empty allow list", []string{"finance"}, nil, false},
		{"empty roles", nil, []string{"finance"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, users.HasAnyRole(tt.roles, tt.allowed))
		})
	}
}

func TestRoleTable(t *testing.T) {
	table := users.NewRoleTable(nil)

	require.True(t, table.InCategory([]string{"accountant"}, users.CategoryFinance))
	require.True(t, table.InCategory([]string{"Administrator"}, users.CategoryHR))
	require.True(t, table.InCategory([]string{"executive"}, users.CategorySiteManager))
	require.False(t, table.InCategory([]string{"site_manager"}, users.CategoryFinance))
	require.Contains(t, table.Categories("site_manager"), users.CategorySiteManager)

	t.Run("override replaces category", func(t *testing.T) {
		table := users.NewRoleTable(map[string][]string{"finance": {"treasurer"}})
		require.Equal(t, []string{"treasurer"}, table.Roles(users.CategoryFinance))
		require.False(t, table.InCategory([]string{"admin"}, users.CategoryFinance))
		require.True(t, table.InCategory([]string{"admin"}, users.CategoryHR))
	})
}
