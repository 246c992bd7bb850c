package users

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
)

// PermissionAll is the wildcard grant. A set holding it satisfies every check.
const PermissionAll = "all"

// PermissionSet is a set of named capabilities.
//
// On the wire it is either an object of name -> truthy value, an array of
// names, or the literal string "all".
type PermissionSet struct {
	names map[string]struct{}
}

func NewPermissionSet(names ...string) PermissionSet {
	p := PermissionSet{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		if n != "" {
			p.names[n] = struct{}{}
		}
	}
	return p
}

// Has reports whether name is granted. The wildcard is checked first.
func (p PermissionSet) Has(name string) bool {
	if _, ok := p.names[PermissionAll]; ok {
		return true
	}
	_, ok := p.names[name]
	return ok
}

func (p PermissionSet) IsEmpty() bool {
	return len(p.names) == 0
}

// Names returns the granted names in sorted order.
func (p PermissionSet) Names() []string {
	out := make([]string, 0, len(p.names))
	for n := range p.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (p PermissionSet) MarshalJSON() ([]byte, error) {
	if _, ok := p.names[PermissionAll]; ok {
		return json.Marshal(PermissionAll)
	}
	m := make(map[string]bool, len(p.names))
	for n := range p.names {
		m[n] = true
	}
	return json.Marshal(m)
}

func (p *PermissionSet) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*p = NewPermissionSet()
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s != "" {
			p.names[s] = struct{}{}
		}
		return nil
	case '[':
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("permissions: %w", err)
		}
		*p = NewPermissionSet(list...)
		return nil
	case '{':
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("permissions: %w", err)
		}
		for name, v := range m {
			if truthy(v) {
				p.names[name] = struct{}{}
			}
		}
		return nil
	}
	return fmt.Errorf("permissions: unsupported value %s", string(data))
}

// HasPermission applies the wildcard rule to a plain list of names.
func HasPermission(permissions []string, name string) bool {
	return slices.Contains(permissions, PermissionAll) || slices.Contains(permissions, name)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}
