package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oauth "github.com/giantswarm/mcp-oauth"
	"github.com/giantswarm/mcp-oauth/providers/dex"
	"github.com/giantswarm/mcp-oauth/security"
	oauthserver "github.com/giantswarm/mcp-oauth/server"
	"github.com/giantswarm/mcp-oauth/storage/memory"

	"fastgeoapi/internal/config"
	"fastgeoapi/internal/gate"
	"fastgeoapi/pkg/logging"
)

const (
	// MCPPath is where the MCP streamable HTTP endpoint is mounted.
	MCPPath = "/mcp"

	// MCPRealm names the protection space of the MCP endpoint in challenges.
	MCPRealm = "mcp"

	// DefaultRefreshTokenTTL is the default TTL for refresh tokens (90 days).
	DefaultRefreshTokenTTL = 90 * 24 * time.Hour

	// DefaultIPRateLimit is the default rate limit for requests per IP (requests/second).
	DefaultIPRateLimit = 10
	// DefaultIPBurst is the default burst size for IP rate limiting.
	DefaultIPBurst = 20

	// DefaultUserRateLimit is the default rate limit for authenticated users (requests/second).
	DefaultUserRateLimit = 100
	// DefaultUserBurst is the default burst size for authenticated user rate limiting.
	DefaultUserBurst = 200

	// DefaultMaxClientsPerIP caps dynamic client registrations per address.
	DefaultMaxClientsPerIP = 10
)

var oidcScopes = []string{"openid", "profile", "email"}

// OAuthProxy is an OAuth 2.1 authorization server for MCP clients. User
// authentication is delegated to the OIDC provider the API already trusts;
// MCP clients register dynamically and receive tokens scoped to /mcp.
type OAuthProxy struct {
	appURI       string
	oauthServer  *oauth.Server
	oauthHandler *oauth.Handler
}

// NewOAuthProxy builds the authorization server from the JWKS scheme's OIDC
// settings. The issuer is the external MCP URL.
func NewOAuthProxy(cfg *config.Config) (*OAuthProxy, error) {
	if !cfg.OAuthProxyEnabled() {
		return nil, fmt.Errorf("MCP OAuth proxy is not enabled")
	}
	if cfg.MCP.AppURI == "" {
		return nil, fmt.Errorf("APP_URI is required for the MCP OAuth proxy")
	}
	if err := config.ValidateExternalURL("APP_URI", cfg.MCP.AppURI); err != nil {
		return nil, err
	}
	if cfg.MCP.OAuthStorage != "" && cfg.MCP.OAuthStorage != config.DefaultOAuthStorage {
		return nil, fmt.Errorf("unsupported OAuth storage type: %s (supported: %s)", cfg.MCP.OAuthStorage, config.DefaultOAuthStorage)
	}

	logger := logging.Logger("oauth")
	appURI := strings.TrimRight(cfg.MCP.AppURI, "/")
	issuer := gate.IssuerFromWellKnown(cfg.Auth.OIDCWellKnownEndpoint)

	provider, err := dex.NewProvider(&dex.Config{
		IssuerURL:    issuer,
		ClientID:     cfg.Auth.OIDCClientID,
		ClientSecret: cfg.Auth.OIDCClientSecret,
		RedirectURL:  appURI + MCPPath + "/auth/callback",
		Scopes:       append([]string(nil), oidcScopes...),
		HTTPClient:   &http.Client{Timeout: cfg.Auth.UpstreamTimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	logger.Info("Using OIDC provider for MCP authorization", "issuer", issuer)

	store := memory.New()
	serverConfig := &oauthserver.Config{
		Issuer:                        appURI + MCPPath,
		RefreshTokenTTL:               int64(DefaultRefreshTokenTTL.Seconds()),
		AllowRefreshTokenRotation:     true,
		RequirePKCE:                   true,
		AllowPKCEPlain:                false,
		AllowPublicClientRegistration: true,
		MaxClientsPerIP:               DefaultMaxClientsPerIP,
		AllowLocalhostRedirectURIs:    true,
	}

	oauthSrv, err := oauth.NewServer(provider, store, store, store, serverConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create OAuth server: %w", err)
	}

	oauthSrv.SetAuditor(security.NewAuditor(logger, true))
	oauthSrv.SetRateLimiter(security.NewRateLimiter(DefaultIPRateLimit, DefaultIPBurst, logger))
	oauthSrv.SetUserRateLimiter(security.NewRateLimiter(DefaultUserRateLimit, DefaultUserBurst, logger))
	oauthSrv.SetClientRegistrationRateLimiter(security.NewClientRegistrationRateLimiterWithConfig(
		DefaultMaxClientsPerIP,
		security.DefaultRegistrationWindow,
		security.DefaultMaxRegistrationEntries,
		logger,
	))

	return &OAuthProxy{
		appURI:       appURI,
		oauthServer:  oauthSrv,
		oauthHandler: oauth.NewHandler(oauthSrv, logger),
	}, nil
}

// ResourceMetadataURL is advertised to MCP clients in 401 challenges.
func (p *OAuthProxy) ResourceMetadataURL() string {
	return p.appURI + "/.well-known/oauth-protected-resource" + MCPPath + "/"
}

// Register mounts the authorization server endpoints and the protected MCP
// endpoint on mux.
func (p *OAuthProxy) Register(mux *http.ServeMux, mcpHandler http.Handler) {
	h := p.oauthHandler

	// Protected Resource Metadata (RFC 9728), with and without the trailing slash.
	mux.HandleFunc("/.well-known/oauth-protected-resource"+MCPPath, h.ServeProtectedResourceMetadata)
	mux.HandleFunc("/.well-known/oauth-protected-resource"+MCPPath+"/", h.ServeProtectedResourceMetadata)

	// Authorization Server Metadata (RFC 8414). Clients differ on where they
	// look for an issuer with a path component.
	mux.HandleFunc(MCPPath+"/.well-known/oauth-authorization-server", h.ServeAuthorizationServerMetadata)
	mux.HandleFunc("/.well-known/oauth-authorization-server"+MCPPath, h.ServeAuthorizationServerMetadata)

	mux.HandleFunc(MCPPath+"/register", h.ServeClientRegistration)
	mux.HandleFunc(MCPPath+"/authorize", h.ServeAuthorization)
	mux.HandleFunc(MCPPath+"/token", h.ServeToken)
	mux.HandleFunc(MCPPath+"/auth/callback", h.ServeCallback)
	mux.HandleFunc(MCPPath+"/revoke", h.ServeTokenRevocation)

	mux.Handle(MCPPath, p.requireBearer(h.ValidateToken(logMCPUser(mcpHandler))))
	logging.Info("oauth", "Protected %s with the OAuth authorization server at %s", MCPPath, p.appURI+MCPPath)
}

// requireBearer answers requests without any bearer token with a bare
// challenge pointing at the resource metadata. Present tokens are left to
// ValidateToken, which reports invalid_token.
func (p *OAuthProxy) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hasBearer(r) {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", gate.BearerChallenge(MCPRealm, "", "",
			fmt.Sprintf("resource_metadata=%q", p.ResourceMetadataURL())))
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthenticated"})
	})
}

func hasBearer(r *http.Request) bool {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	return ok && strings.EqualFold(scheme, "Bearer") && strings.TrimSpace(token) != ""
}

// Shutdown stops the rate limiters and storage cleanup.
func (p *OAuthProxy) Shutdown(ctx context.Context) error {
	if p == nil || p.oauthServer == nil {
		return nil
	}
	if err := p.oauthServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown OAuth server: %w", err)
	}
	return nil
}
