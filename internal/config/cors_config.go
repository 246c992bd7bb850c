package config

import (
	"slices"
	"strings"
)

const allowedOriginsEnvVar = "ALLOWED_ORIGINS"

type Cors struct{}

var _ CorsConfig = Cors{}

// AllowedOrigins is a sorted, de-duplicated origin list. "*" allows any
// origin.
type AllowedOrigins []string

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	return origin != "" && slices.Contains(a, origin)
}

func (a AllowedOrigins) String() string {
	return strings.Join(a, ", ")
}

// ParseAllowedOrigins splits a comma separated origin list.
func ParseAllowedOrigins(value string) AllowedOrigins {
	var origins AllowedOrigins
	for _, o := range strings.Split(value, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	slices.Sort(origins)
	return slices.Compact(origins)
}

func (Cors) GetAllowedOrigins() AllowedOrigins {
	return ParseAllowedOrigins(GetEnv(allowedOriginsEnvVar, "http://localhost:5173"))
}

func (Cors) GetAllowedMethods() []string {
	return []string{"GET", "POST", "PUT", "PATCH", "DELETE"}
}

func (Cors) GetAllowedHeaders() []string {
	return []string{"Content-Type", "Authorization", "X-CSRFToken", "X-Request-ID", "HX-Request"}
}
