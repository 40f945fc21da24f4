package config

import "time"

const (
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 5000
	DefaultContext         = "/geoapi"
	DefaultUpstream        = "http://127.0.0.1:5001"
	DefaultOpenAPIPath     = "pygeoapi-openapi.yml"
	DefaultSecurityScheme  = "default"
	DefaultOPAPolicyPath   = "/v1/data/httpapi/authz"
	DefaultJWKSCacheTTL    = time.Hour
	DefaultUpstreamTimeout = 5 * time.Second
	DefaultLogFilename     = "fastgeoapi.log"
	DefaultOAuthStorage    = "memory"
	DefaultEnvFile         = ".env"
)

// GetDefaultConfig returns a configuration with every optional value set.
// Nothing is enabled: with no scheme flag the gate runs in open access.
func GetDefaultConfig() Config {
	return Config{
		Host: DefaultHost,
		Port: DefaultPort,
		Log: LogConfig{
			Level:    "info",
			Format:   "text",
			Filename: DefaultLogFilename,
		},
		Auth: AuthConfig{
			OPAPolicyPath:   DefaultOPAPolicyPath,
			JWKSCacheTTL:    DefaultJWKSCacheTTL,
			UpstreamTimeout: DefaultUpstreamTimeout,
		},
		GeoAPI: GeoAPIConfig{
			Upstream:       DefaultUpstream,
			OpenAPIPath:    DefaultOpenAPIPath,
			SecurityScheme: DefaultSecurityScheme,
			Context:        DefaultContext,
		},
		MCP: MCPConfig{
			OAuthStorage: DefaultOAuthStorage,
		},
	}
}
