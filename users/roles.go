package users

import (
	"slices"
	"sort"
)

// Category groups role names that mean the same thing for page access,
// e.g. every role that may see finance screens.
type Category string

const (
	CategoryAdmin       Category = "admin"
	CategoryFinance     Category = "finance"
	CategoryHR          Category = "hr"
	CategoryOperations  Category = "operations"
	CategorySiteManager Category = "site_manager"
	CategoryExecutive   Category = "executive"
)

var adminLike = []string{"admin", "Administrator", "super_admin"}
var executiveLike = []string{"executive", "Executive", "ceo", "director"}

// DefaultCategories are the built-in role synonyms. Admin and executive
// roles are members of every domain category.
func DefaultCategories() map[Category][]string {
	domain := func(roles ...string) []string {
		out := append([]string{}, roles...)
		out = append(out, adminLike...)
		return append(out, executiveLike...)
	}
	return map[Category][]string{
		CategoryAdmin:       append([]string{}, adminLike...),
		CategoryExecutive:   append(append([]string{}, executiveLike...), adminLike...),
		CategoryFinance:     domain("finance", "Finance", "finance_manager", "accountant"),
		CategoryHR:          domain("hr", "HR", "hr_manager"),
		CategoryOperations:  domain("operations", "Operations", "operations_manager", "project_manager"),
		CategorySiteManager: domain("site_manager", "Site Manager", "project_manager"),
	}
}

// RoleTable maps role categories to role names. It replaces per call site
// synonym lists: adding a role to a category is one entry here.
type RoleTable struct {
	categories map[Category]map[string]struct{}
}

// NewRoleTable builds the table from the defaults with overrides applied.
// An override replaces the whole role list of its category.
func NewRoleTable(overrides map[string][]string) *RoleTable {
	merged := DefaultCategories()
	for name, roles := range overrides {
		merged[Category(name)] = roles
	}

	t := &RoleTable{categories: make(map[Category]map[string]struct{}, len(merged))}
	for c, roles := range merged {
		set := make(map[string]struct{}, len(roles))
		for _, r := range roles {
			set[r] = struct{}{}
		}
		t.categories[c] = set
	}
	return t
}

// Roles returns the role names of a category, sorted.
func (t *RoleTable) Roles(c Category) []string {
	out := make([]string, 0, len(t.categories[c]))
	for r := range t.categories[c] {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Categories returns the categories a role belongs to, sorted.
func (t *RoleTable) Categories(role string) []Category {
	var out []Category
	for c, set := range t.categories {
		if _, ok := set[role]; ok {
			out = append(out, c)
		}
	}
	slices.Sort(out)
	return out
}

// InCategory reports whether any of roles belongs to the category.
func (t *RoleTable) InCategory(roles []string, c Category) bool {
	set := t.categories[c]
	for _, r := range roles {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

// HasAnyRole is true iff roles and allowed share an element. Matching is
// exact and case-sensitive.
func HasAnyRole(roles, allowed []string) bool {
	for _, a := range allowed {
		if slices.Contains(roles, a) {
			return true
		}
	}
	return false
}
