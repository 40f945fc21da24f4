package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// Append adds err to the collection when it is a ValidationError.
func (ve *ValidationErrors) Append(err error) {
	if err == nil {
		return
	}
	if v, ok := err.(ValidationError); ok {
		*ve = append(*ve, v)
		return
	}
	*ve = append(*ve, ValidationError{Message: err.Error()})
}

// ValidateRequired checks if a required string field is not empty
func ValidateRequired(field, value, entityType string) error {
	if strings.TrimSpace(value) == "" {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("is required for %s", entityType),
		}
	}
	return nil
}

// ValidateOneOf checks if a value is in a list of allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	for _, allowedValue := range allowed {
		if value == allowedValue {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidateURL checks that an optional value, when set, is an absolute
// http(s) URL.
func ValidateURL(field, value string) error {
	if value == "" {
		return nil
	}
	u, err := url.Parse(value)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: "must be an absolute http(s) URL",
		}
	}
	return nil
}

// ValidateExternalURL checks that value uses HTTPS, allowing plain HTTP only
// for loopback hosts used in development.
func ValidateExternalURL(field, value string) error {
	if err := ValidateURL(field, value); err != nil || value == "" {
		return err
	}
	u, _ := url.Parse(value)
	if u.Scheme == "https" {
		return nil
	}
	host := u.Hostname()
	if host == "localhost" {
		return nil
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return nil
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: "must use HTTPS (HTTP is only allowed for loopback hosts)",
	}
}

// ResolveScheme checks the mutual exclusion of the scheme flags and returns
// the active scheme. More than one enabled flag is a ConfigurationError.
func (a AuthConfig) ResolveScheme() (Scheme, error) {
	var enabled []string
	if a.APIKeyEnabled {
		enabled = append(enabled, "API_KEY_ENABLED")
	}
	if a.JWKSEnabled {
		enabled = append(enabled, "JWKS_ENABLED")
	}
	if a.OPAEnabled {
		enabled = append(enabled, "OPA_ENABLED")
	}

	if len(enabled) > 1 {
		return "", &ConfigurationError{
			Setting: strings.Join(enabled, ", "),
			Message: "authentication schemes are mutually exclusive",
			Suggestions: []string{
				"enable at most one of API_KEY_ENABLED, JWKS_ENABLED, OPA_ENABLED",
			},
		}
	}

	switch {
	case a.APIKeyEnabled:
		return SchemeAPIKey, nil
	case a.JWKSEnabled:
		return SchemeJWKS, nil
	case a.OPAEnabled:
		return SchemeOPA, nil
	default:
		return SchemeNone, nil
	}
}

// Validate checks scheme exclusivity and every scheme-specific parameter.
// A missing parameter never degrades to open access.
func (c *Config) Validate() error {
	scheme, err := c.Auth.ResolveScheme()
	if err != nil {
		return err
	}

	var errs ValidationErrors
	a := c.Auth

	switch scheme {
	case SchemeAPIKey:
		errs.Append(ValidateRequired("PYGEOAPI_KEY_GLOBAL", a.GlobalAPIKey, "API key authentication"))
	case SchemeJWKS:
		if a.JWKSEndpoint == "" && a.OIDCWellKnownEndpoint == "" {
			errs.Add("OAUTH2_JWKS_ENDPOINT", "is required for JWKS authentication (or set OIDC_WELL_KNOWN_ENDPOINT)")
		}
		if a.OpaqueTokensEnabled {
			errs.Append(ValidateRequired("OIDC_WELL_KNOWN_ENDPOINT", a.OIDCWellKnownEndpoint, "opaque token validation"))
		}
		if a.JWKSCacheTTL <= 0 {
			errs.Add("JWKS_CACHE_TTL", "must be positive", a.JWKSCacheTTL)
		}
	case SchemeOPA:
		errs.Append(ValidateRequired("OPA_URL", a.OPAURL, "OPA authorization"))
		if !strings.HasPrefix(a.OPAPolicyPath, "/") {
			errs.Add("OPA_POLICY_PATH", "must start with /", a.OPAPolicyPath)
		}
	}

	errs.Append(ValidateURL("OAUTH2_JWKS_ENDPOINT", a.JWKSEndpoint))
	errs.Append(ValidateURL("OAUTH2_TOKEN_ENDPOINT", a.TokenEndpoint))
	errs.Append(ValidateURL("OIDC_WELL_KNOWN_ENDPOINT", a.OIDCWellKnownEndpoint))
	errs.Append(ValidateURL("OPA_URL", a.OPAURL))
	errs.Append(ValidateURL("PYGEOAPI_UPSTREAM", c.GeoAPI.Upstream))
	errs.Append(ValidateURL("PYGEOAPI_BASEURL", c.GeoAPI.BaseURL))

	if a.UpstreamTimeout <= 0 {
		errs.Add("AUTH_UPSTREAM_TIMEOUT", "must be positive", a.UpstreamTimeout)
	}
	if !strings.HasPrefix(c.GeoAPI.Context, "/") || c.GeoAPI.Context == "/" {
		errs.Add("FASTGEOAPI_CONTEXT", "must start with / and name a path segment", c.GeoAPI.Context)
	}
	if c.GeoAPI.ReverseProxy {
		errs.Append(ValidateRequired("PYGEOAPI_BASEURL", c.GeoAPI.BaseURL, "reverse proxy link rewriting"))
	}

	if c.OAuthProxyEnabled() {
		errs.Append(ValidateRequired("APP_URI", c.MCP.AppURI, "the MCP OAuth proxy"))
		errs.Append(ValidateExternalURL("APP_URI", c.MCP.AppURI))
		errs.Append(ValidateRequired("OIDC_CLIENT_ID", a.OIDCClientID, "the MCP OAuth proxy"))
		errs.Append(ValidateOneOf("MCP_OAUTH_STORAGE", c.MCP.OAuthStorage, []string{"memory"}))
	}

	if errs.HasErrors() {
		return &ConfigurationError{
			Message: fmt.Sprintf("invalid %s configuration", scheme),
			Err:     errs,
		}
	}
	return nil
}
