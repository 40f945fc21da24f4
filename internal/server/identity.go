package server

import (
	"context"
	"net/http"

	mcpoauth "github.com/giantswarm/mcp-oauth"
	"github.com/giantswarm/mcp-oauth/providers"

	"fastgeoapi/pkg/logging"
)

// logEmailPrefixLength is the number of characters shown when logging emails.
const logEmailPrefixLength = 8

// UserInfo represents user information from the OIDC provider.
type UserInfo = providers.UserInfo

// UserInfoFromContext retrieves the authenticated MCP user, set by the
// OAuth ValidateToken middleware.
func UserInfoFromContext(ctx context.Context) (*UserInfo, bool) {
	return mcpoauth.UserInfoFromContext(ctx)
}

// logMCPUser records which user an MCP request runs as.
func logMCPUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, ok := UserInfoFromContext(r.Context()); ok && user != nil {
			logging.Debug("oauth", "MCP %s by user %s...", r.Method, emailPrefix(user.Email))
		}
		next.ServeHTTP(w, r)
	})
}

// emailPrefix truncates an email for logging.
func emailPrefix(email string) string {
	if len(email) > logEmailPrefixLength {
		return email[:logEmailPrefixLength]
	}
	return email
}
