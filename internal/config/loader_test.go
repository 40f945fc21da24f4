package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestFromLookup_Defaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, "/geoapi", cfg.GeoAPI.Context)
	assert.Equal(t, DefaultOPAPolicyPath, cfg.Auth.OPAPolicyPath)
	assert.Equal(t, time.Hour, cfg.Auth.JWKSCacheTTL)
	assert.Equal(t, 5*time.Second, cfg.Auth.UpstreamTimeout)

	scheme, err := cfg.Auth.ResolveScheme()
	require.NoError(t, err)
	assert.Equal(t, SchemeNone, scheme)
	assert.NoError(t, cfg.Validate())
}

func TestFromLookup_EnvStatePrefix(t *testing.T) {
	env := map[string]string{
		"ENV_STATE":               "dev",
		"HOST":                    "127.0.0.1",
		"PORT":                    "5050",
		"DEV_API_KEY_ENABLED":     "true",
		"DEV_PYGEOAPI_KEY_GLOBAL": "pygeoapi",
		"PROD_JWKS_ENABLED":       "true",
		"API_KEY_ENABLED":         "false",
		"DEV_FASTGEOAPI_CONTEXT":  "geoapi/",
		"DEV_PYGEOAPI_BASEURL":    "http://localhost:5000/",
	}

	cfg, err := FromLookup(lookupFrom(env))
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.EnvState)
	assert.Equal(t, "127.0.0.1:5050", cfg.Addr())
	assert.True(t, cfg.Auth.APIKeyEnabled)
	assert.False(t, cfg.Auth.JWKSEnabled, "PROD_ variables must be ignored in dev")
	assert.Equal(t, "pygeoapi", cfg.Auth.GlobalAPIKey)
	assert.Equal(t, "/geoapi", cfg.GeoAPI.Context)
	assert.Equal(t, "http://localhost:5000", cfg.GeoAPI.BaseURL)
	assert.NoError(t, cfg.Validate())
}

func TestFromLookup_UnknownEnvState(t *testing.T) {
	_, err := FromLookup(lookupFrom(map[string]string{"ENV_STATE": "staging"}))

	var ce *ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "ENV_STATE", ce.Setting)
}

func TestFromLookup_ParseErrors(t *testing.T) {
	env := map[string]string{
		"PORT":                  "http",
		"JWKS_ENABLED":          "yes please",
		"AUTH_UPSTREAM_TIMEOUT": "soon",
		"OPA_CACHE_TTL":         "30",
	}

	_, err := FromLookup(lookupFrom(env))
	require.Error(t, err)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs, 3)
}

func TestFromLookup_BareSecondsDuration(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{"OPA_CACHE_TTL": "30"}))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Auth.OPACacheTTL)
}

func TestFromLookup_BaseURLFromPygeoapiConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pygeoapi-config.yml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  url: http://localhost:5000/\n"), 0o644))

	cfg, err := FromLookup(lookupFrom(map[string]string{"PYGEOAPI_CONFIG": path}))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000", cfg.GeoAPI.BaseURL)
}

func TestReadPygeoapiServerURL_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pygeoapi-config.yml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: ERROR\n"), 0o644))

	_, err := ReadPygeoapiServerURL(path)
	assert.ErrorContains(t, err, "no server.url")
}

func TestLoad_EnvFileDoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PORT=6000\n"), 0o644))
	t.Setenv("PORT", "7000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
}

func TestLoad_MissingEnvFile(t *testing.T) {
	t.Setenv("PORT", "5000")
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}
