package config

type Config interface {
	EnvConfig
	CorsConfig
	IdentityConfig
	SecurityConfig
	GatewayConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetBaseURL() string
	GetLogLevel() string
	GetEnv() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() []string
	GetAllowedHeaders() []string
}

type mainConfig struct {
	EnvVars
	Cors
	Identity
	Security
	Gateway
}

func New() Config {
	return mainConfig{}
}
