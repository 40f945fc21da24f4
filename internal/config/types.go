package config

import (
	"fmt"
	"time"
)

// Scheme is the authentication scheme the gate enforces. Exactly one is
// active per process.
type Scheme string

const (
	SchemeNone   Scheme = "none"
	SchemeAPIKey Scheme = "api-key"
	SchemeJWKS   Scheme = "jwks"
	SchemeOPA    Scheme = "opa"
)

// Config is the complete, validated runtime configuration of fastgeoapi.
type Config struct {
	EnvState string
	Host     string
	Port     int
	RootPath string

	Log    LogConfig
	Auth   AuthConfig
	GeoAPI GeoAPIConfig
	MCP    MCPConfig
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig controls pkg/logging.
type LogConfig struct {
	Level    string
	Format   string
	Path     string // Optional directory for a log file in addition to stdout
	Filename string
}

// AuthConfig is the gate configuration. The three Enabled flags are the raw
// environment surface; ResolveScheme turns them into a single Scheme.
type AuthConfig struct {
	APIKeyEnabled bool
	JWKSEnabled   bool
	OPAEnabled    bool

	GlobalAPIKey string

	JWKSEndpoint        string
	TokenEndpoint       string
	Audience            string
	Issuer              string
	OpaqueTokensEnabled bool

	OIDCWellKnownEndpoint string
	OIDCClientID          string
	OIDCClientSecret      string

	OPAURL        string
	OPAPolicyPath string

	JWKSCacheTTL    time.Duration
	OPACacheTTL     time.Duration
	UpstreamTimeout time.Duration
}

// GeoAPIConfig describes the wrapped OGC API server.
type GeoAPIConfig struct {
	BaseURL        string // Base URL the upstream writes into its links
	Upstream       string // Where requests are forwarded
	ConfigPath     string
	OpenAPIPath    string
	SecurityScheme string
	Context        string // Mount path, e.g. /geoapi
	ReverseProxy   bool
}

// MCPConfig controls the MCP tool server and its OAuth proxy.
type MCPConfig struct {
	Enabled      bool
	AppURI       string // External base URL of this service
	OAuthStorage string
}

// OAuthProxyEnabled reports whether MCP clients authenticate through the
// embedded OAuth authorization server rather than the API gate.
func (c *Config) OAuthProxyEnabled() bool {
	return c.MCP.Enabled && c.Auth.JWKSEnabled && c.Auth.OIDCWellKnownEndpoint != ""
}
