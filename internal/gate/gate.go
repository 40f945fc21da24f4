package gate

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"fastgeoapi/internal/config"
	"fastgeoapi/pkg/logging"
)

// DefaultRealm is the realm advertised in bearer challenges.
const DefaultRealm = "fastgeoapi"

// publicSuffixes are reachable without credentials under the API context.
var publicSuffixes = []string{"/openapi", "/openapi.json", "/docs", "/redoc"}

// Gate admits or rejects requests before they reach the wrapped API.
type Gate struct {
	validator   Validator
	bearer      bool
	publicPaths []string
	internalKey *InternalKey
	metrics     *Metrics
	httpClient  *http.Client
	realm       string
	keySetOpts  []KeySetOption
}

// Option configures a Gate.
type Option func(*Gate)

// WithHTTPClient sets the client used for JWKS, OIDC and OPA calls.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gate) {
		g.httpClient = c
	}
}

// WithMetrics records every decision.
func WithMetrics(m *Metrics) Option {
	return func(g *Gate) {
		g.metrics = m
	}
}

// WithInternalKey enables the MCP loopback bypass.
func WithInternalKey(k *InternalKey) Option {
	return func(g *Gate) {
		g.internalKey = k
	}
}

// WithRealm overrides DefaultRealm.
func WithRealm(realm string) Option {
	return func(g *Gate) {
		g.realm = realm
	}
}

// WithKeySetOptions passes options to the JWKS key set.
func WithKeySetOptions(opts ...KeySetOption) Option {
	return func(g *Gate) {
		g.keySetOpts = append(g.keySetOpts, opts...)
	}
}

// WithValidator replaces the scheme validator. Used by tests.
func WithValidator(v Validator) Option {
	return func(g *Gate) {
		g.validator = v
	}
}

// New resolves the active scheme once and builds its validator. A
// configuration with more than one scheme enabled is rejected.
func New(cfg *config.Config, opts ...Option) (*Gate, error) {
	scheme, err := cfg.Auth.ResolveScheme()
	if err != nil {
		return nil, err
	}

	g := &Gate{
		realm:       DefaultRealm,
		publicPaths: PublicPaths(cfg.GeoAPI.Context),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.httpClient == nil {
		g.httpClient = &http.Client{Timeout: cfg.Auth.UpstreamTimeout}
	}
	if g.validator != nil {
		g.bearer = g.validator.Scheme() == config.SchemeJWKS
		return g, nil
	}

	var discovery *Discovery
	if cfg.Auth.OIDCWellKnownEndpoint != "" {
		discovery = NewDiscovery(cfg.Auth.OIDCWellKnownEndpoint, g.httpClient)
	}

	switch scheme {
	case config.SchemeNone:
		g.validator = openValidator{}
	case config.SchemeAPIKey:
		if cfg.Auth.GlobalAPIKey == "" {
			return nil, &config.ConfigurationError{Setting: "PYGEOAPI_KEY_GLOBAL", Message: "is required for API key authentication"}
		}
		g.validator = NewAPIKeyValidator(cfg.Auth.GlobalAPIKey)
	case config.SchemeJWKS:
		if cfg.Auth.JWKSEndpoint == "" && discovery == nil {
			return nil, &config.ConfigurationError{Setting: "OAUTH2_JWKS_ENDPOINT", Message: "is required for JWKS authentication"}
		}
		if cfg.Auth.JWKSCacheTTL <= 0 {
			return nil, &config.ConfigurationError{Setting: "JWKS_CACHE_TTL", Message: "must be positive"}
		}
		ksOpts := append([]KeySetOption{WithKeySetMetrics(g.metrics)}, g.keySetOpts...)
		keys := NewKeySet(cfg.Auth.JWKSEndpoint, discovery, g.httpClient, cfg.Auth.JWKSCacheTTL, ksOpts...)
		g.validator = NewJWKSValidator(keys, cfg.Auth, discovery)
		g.bearer = true
	case config.SchemeOPA:
		if cfg.Auth.OPAURL == "" {
			return nil, &config.ConfigurationError{Setting: "OPA_URL", Message: "is required for OPA authorization"}
		}
		v := NewOPAValidator(cfg.Auth, discovery, g.httpClient)
		g.validator = v
		g.bearer = v.requiresBearer()
	default:
		return nil, fmt.Errorf("unsupported scheme %q", scheme)
	}

	logging.Info("gate", "authentication scheme: %s", scheme)
	return g, nil
}

// PublicPaths returns the documentation paths exempt from authentication.
func PublicPaths(context string) []string {
	context = strings.TrimSuffix(context, "/")
	paths := make([]string, 0, len(publicSuffixes))
	for _, s := range publicSuffixes {
		paths = append(paths, context+s)
	}
	return paths
}

// isPublic matches whole path segments only. A path carrying a dot segment
// is never public: it may resolve outside the documentation tree upstream.
func (g *Gate) isPublic(reqPath string) bool {
	if hasDotSegment(reqPath) {
		return false
	}
	for _, p := range g.publicPaths {
		if reqPath == p || strings.HasPrefix(reqPath, p+"/") {
			return true
		}
	}
	return false
}

func hasDotSegment(reqPath string) bool {
	for _, seg := range strings.Split(reqPath, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// Scheme returns the active scheme.
func (g *Gate) Scheme() config.Scheme {
	return g.validator.Scheme()
}

// Evaluate produces the decision for r. Preflight requests, documentation
// paths and internal MCP calls are admitted before the scheme runs.
func (g *Gate) Evaluate(r *http.Request) Decision {
	if r.Method == http.MethodOptions {
		return allow(ReasonPreflight, nil)
	}
	if g.isPublic(r.URL.Path) {
		return allow(ReasonPublicPath, nil)
	}
	if g.internalKey.Admits(r) {
		return allow(ReasonInternalBypass, &Principal{Label: "mcp-internal"})
	}
	return g.validator.Evaluate(r)
}

// Middleware rejects requests the gate does not admit. Admitted requests
// carry their Principal in the context.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.Evaluate(r)
		g.metrics.decision(string(g.Scheme()), d)

		if d.Outcome == Allowed {
			if d.Principal != nil {
				r = r.WithContext(WithPrincipal(r.Context(), d.Principal))
			}
			next.ServeHTTP(w, r)
			return
		}

		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		if d.Err != nil {
			logging.Warn("gate", "denied %s %s (%s, %s) request_id=%s: %v", r.Method, r.URL.Path, d.Outcome, d.Reason, requestID, d.Err)
		} else {
			logging.Debug("gate", "denied %s %s (%s, %s) request_id=%s", r.Method, r.URL.Path, d.Outcome, d.Reason, requestID)
		}
		g.writeDenied(w, d)
	})
}

func (g *Gate) writeDenied(w http.ResponseWriter, d Decision) {
	switch d.Reason {
	case ReasonNoAPIKey:
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "no api key"})
		return
	case ReasonInvalidAPIKey:
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "invalid api key"})
		return
	case ReasonPolicyDenied:
		writeJSON(w, http.StatusForbidden, map[string]string{"message": "Unauthorized"})
		return
	}

	if !g.bearer {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
		return
	}

	if d.Outcome == NoCredential {
		w.Header().Set("WWW-Authenticate", BearerChallenge(g.realm, "", ""))
	} else {
		w.Header().Set("WWW-Authenticate", BearerChallenge(g.realm, "invalid_token", describe(d.Reason)))
	}
	writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthenticated"})
}

func describe(r Reason) string {
	switch r {
	case ReasonMalformedToken:
		return "The access token is malformed"
	case ReasonUpstreamUnavailable:
		return "The access token could not be validated"
	default:
		return "The access token is invalid or expired"
	}
}

// BearerChallenge formats an RFC 6750 WWW-Authenticate value. A missing
// credential gets no error code.
func BearerChallenge(realm, errCode, description string, extra ...string) string {
	parts := []string{fmt.Sprintf("realm=%q", realm)}
	if errCode != "" {
		parts = append(parts, fmt.Sprintf("error=%q", errCode))
		if description != "" {
			parts = append(parts, fmt.Sprintf("error_description=%q", description))
		}
	}
	parts = append(parts, extra...)
	return "Bearer " + strings.Join(parts, ", ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
