package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type GatewayConfig interface {
	GetBackendURL() string
	GetStaticDir() string
	GetAccessRulesFile() string
	GetAccessRules() (AccessRules, error)
}

type Gateway struct{}

var _ GatewayConfig = Gateway{}

func (Gateway) GetBackendURL() string {
	return GetEnv("BACKEND_URL", "http://localhost:8000")
}

func (Gateway) GetStaticDir() string {
	return GetEnv("STATIC_DIR", "./dist")
}

func (Gateway) GetAccessRulesFile() string {
	return GetEnv("ROLE_TABLE_FILE", "")
}

// GetAccessRules loads the rules file named by ROLE_TABLE_FILE.
// An unset variable yields empty rules so the built-in defaults apply.
func (g Gateway) GetAccessRules() (AccessRules, error) {
	path := g.GetAccessRulesFile()
	if path == "" {
		return AccessRules{}, nil
	}
	return LoadAccessRules(path)
}

// PageRule gates one SPA page.
type PageRule struct {
	Path         string   `yaml:"path"`
	AllowedRoles []string `yaml:"allowed_roles"`
	RequireAuth  bool     `yaml:"require_auth"`
	RedirectTo   string   `yaml:"redirect_to"`
}

// AccessRules is the YAML layout of the role table file:
//
//	roles:
//	  finance: [finance, accountant, admin]
//	pages:
//	  - path: /finance
//	    require_auth: true
//	    allowed_roles: [finance, admin]
type AccessRules struct {
	Roles map[string][]string `yaml:"roles"`
	Pages []PageRule          `yaml:"pages"`
}

func LoadAccessRules(path string) (AccessRules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AccessRules{}, fmt.Errorf("[config LoadAccessRules] read %s: %w", path, err)
	}
	return ParseAccessRules(data)
}

func ParseAccessRules(data []byte) (AccessRules, error) {
	var rules AccessRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return AccessRules{}, fmt.Errorf("[config ParseAccessRules] %w", err)
	}
	for i, p := range rules.Pages {
		if p.Path == "" {
			return AccessRules{}, fmt.Errorf("[config ParseAccessRules] page %d has no path", i)
		}
	}
	return rules, nil
}
