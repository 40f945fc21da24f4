package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"fastgeoapi/pkg/logging"
)

// LookupFunc resolves an environment variable. os.LookupEnv in production.
type LookupFunc func(key string) (string, bool)

// Load reads envFile (when present) into the process environment without
// overriding variables that are already set, then builds and validates the
// configuration.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, &ConfigurationError{Setting: envFile, Message: "failed to read env file", Err: err}
			}
			logging.Debug("config", "no env file at %s, using process environment only", envFile)
		}
	}

	cfg, err := FromLookup(os.LookupEnv)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PrefixForEnvState maps ENV_STATE to the variable prefix.
func PrefixForEnvState(state string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "":
		return "", nil
	case "dev":
		return "DEV_", nil
	case "prod":
		return "PROD_", nil
	default:
		return "", &ConfigurationError{
			Setting:     "ENV_STATE",
			Message:     fmt.Sprintf("unknown environment state %q", state),
			Suggestions: []string{"use dev, prod or leave ENV_STATE unset"},
		}
	}
}

type envReader struct {
	lookup LookupFunc
	prefix string
	errs   ValidationErrors
}

func (r *envReader) raw(name string) (string, bool) {
	v, ok := r.lookup(r.prefix + name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (r *envReader) str(name string, dst *string) {
	if v, ok := r.raw(name); ok {
		*dst = v
	}
}

func (r *envReader) boolean(name string, dst *bool) {
	v, ok := r.raw(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs.Add(name, "must be a boolean", v)
		return
	}
	*dst = b
}

func (r *envReader) duration(name string, dst *time.Duration) {
	v, ok := r.raw(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// Bare integers are seconds.
		secs, ierr := strconv.Atoi(v)
		if ierr != nil || secs < 0 {
			r.errs.Add(name, "must be a duration such as 30s or 1h", v)
			return
		}
		d = time.Duration(secs) * time.Second
	}
	*dst = d
}

// FromLookup builds a Config from the defaults and the given environment.
// It does not validate cross-field constraints; see Config.Validate.
func FromLookup(lookup LookupFunc) (*Config, error) {
	cfg := GetDefaultConfig()

	state, _ := lookup("ENV_STATE")
	prefix, err := PrefixForEnvState(state)
	if err != nil {
		return nil, err
	}
	cfg.EnvState = strings.ToLower(strings.TrimSpace(state))

	// HOST and PORT are never prefixed.
	unprefixed := &envReader{lookup: lookup}
	unprefixed.str("HOST", &cfg.Host)
	if v, ok := unprefixed.raw("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			unprefixed.errs.Add("PORT", "must be a TCP port number", v)
		} else {
			cfg.Port = port
		}
	}

	r := &envReader{lookup: lookup, prefix: prefix}
	r.str("ROOT_PATH", &cfg.RootPath)

	r.str("LOG_PATH", &cfg.Log.Path)
	r.str("LOG_FILENAME", &cfg.Log.Filename)
	r.str("LOG_LEVEL", &cfg.Log.Level)
	r.str("LOG_FORMAT", &cfg.Log.Format)

	a := &cfg.Auth
	r.boolean("API_KEY_ENABLED", &a.APIKeyEnabled)
	r.str("PYGEOAPI_KEY_GLOBAL", &a.GlobalAPIKey)
	r.boolean("JWKS_ENABLED", &a.JWKSEnabled)
	r.str("OAUTH2_JWKS_ENDPOINT", &a.JWKSEndpoint)
	r.str("OAUTH2_TOKEN_ENDPOINT", &a.TokenEndpoint)
	r.str("OAUTH2_AUDIENCE", &a.Audience)
	r.str("OAUTH2_ISSUER", &a.Issuer)
	r.boolean("OAUTH2_OPAQUE_TOKENS_ENABLED", &a.OpaqueTokensEnabled)
	r.str("OIDC_WELL_KNOWN_ENDPOINT", &a.OIDCWellKnownEndpoint)
	r.str("OIDC_CLIENT_ID", &a.OIDCClientID)
	r.str("OIDC_CLIENT_SECRET", &a.OIDCClientSecret)
	r.boolean("OPA_ENABLED", &a.OPAEnabled)
	r.str("OPA_URL", &a.OPAURL)
	r.str("OPA_POLICY_PATH", &a.OPAPolicyPath)
	r.duration("OPA_CACHE_TTL", &a.OPACacheTTL)
	r.duration("JWKS_CACHE_TTL", &a.JWKSCacheTTL)
	r.duration("AUTH_UPSTREAM_TIMEOUT", &a.UpstreamTimeout)

	g := &cfg.GeoAPI
	r.str("PYGEOAPI_BASEURL", &g.BaseURL)
	r.str("PYGEOAPI_UPSTREAM", &g.Upstream)
	r.str("PYGEOAPI_CONFIG", &g.ConfigPath)
	r.str("PYGEOAPI_OPENAPI", &g.OpenAPIPath)
	r.str("PYGEOAPI_SECURITY_SCHEME", &g.SecurityScheme)
	r.str("FASTGEOAPI_CONTEXT", &g.Context)
	r.boolean("FASTGEOAPI_REVERSE_PROXY", &g.ReverseProxy)

	r.boolean("FASTGEOAPI_WITH_MCP", &cfg.MCP.Enabled)
	r.str("APP_URI", &cfg.MCP.AppURI)
	r.str("MCP_OAUTH_STORAGE", &cfg.MCP.OAuthStorage)

	g.Context = "/" + strings.Trim(g.Context, "/")
	g.BaseURL = strings.TrimSuffix(g.BaseURL, "/")
	cfg.MCP.AppURI = strings.TrimSuffix(cfg.MCP.AppURI, "/")

	errs := append(unprefixed.errs, r.errs...)
	if errs.HasErrors() {
		return nil, &ConfigurationError{Message: "failed to parse environment", Err: errs}
	}

	if g.BaseURL == "" && g.ConfigPath != "" {
		serverURL, err := ReadPygeoapiServerURL(g.ConfigPath)
		if err != nil {
			return nil, &ConfigurationError{Setting: "PYGEOAPI_CONFIG", Message: "failed to read pygeoapi config", Err: err}
		}
		g.BaseURL = strings.TrimSuffix(serverURL, "/")
	}

	return &cfg, nil
}
