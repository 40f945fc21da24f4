package gate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"fastgeoapi/internal/config"
)

// signingMethods are the asymmetric algorithms accepted from the issuer.
var signingMethods = []string{
	"RS256", "RS384", "RS512",
	"PS256", "PS384", "PS512",
	"ES256", "ES384", "ES512",
}

// bearerToken extracts the token from an Authorization header. A missing
// header is reported separately from a malformed one.
func bearerToken(r *http.Request) (string, Reason) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ReasonNoToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ReasonMalformedToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ReasonMalformedToken
	}
	return token, ""
}

// JWKSValidator verifies bearer JWTs against the issuer's key set. Opaque
// tokens are accepted only when the OIDC userinfo endpoint vouches for them.
type JWKSValidator struct {
	keys      *KeySet
	parser    *jwt.Parser
	audience  string
	discovery *Discovery
	opaque    bool
}

func NewJWKSValidator(keys *KeySet, auth config.AuthConfig, discovery *Discovery) *JWKSValidator {
	opts := []jwt.ParserOption{jwt.WithValidMethods(signingMethods), jwt.WithExpirationRequired()}
	if auth.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(auth.Issuer))
	}
	return &JWKSValidator{
		keys:      keys,
		parser:    jwt.NewParser(opts...),
		audience:  auth.Audience,
		discovery: discovery,
		opaque:    auth.OpaqueTokensEnabled && discovery != nil,
	}
}

func (v *JWKSValidator) Scheme() config.Scheme { return config.SchemeJWKS }

func (v *JWKSValidator) Evaluate(r *http.Request) Decision {
	raw, reason := bearerToken(r)
	switch reason {
	case ReasonNoToken:
		return noCredential(reason)
	case ReasonMalformedToken:
		return invalid(reason, nil)
	}

	ctx := r.Context()
	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		return v.keys.Key(ctx, kid)
	})

	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenMalformed):
		if v.opaque {
			return v.evaluateOpaque(ctx, raw)
		}
		return invalid(ReasonMalformedToken, err)
	case errors.Is(err, ErrUpstreamUnavailable):
		return invalid(ReasonUpstreamUnavailable, err)
	default:
		return invalid(ReasonInvalidToken, err)
	}

	if err := v.checkAudience(claims); err != nil {
		return invalid(ReasonInvalidToken, err)
	}

	sub, _ := claims.GetSubject()
	return allow(ReasonValidCredential, &Principal{Subject: sub, Claims: claims})
}

// checkAudience enforces the configured audience. Access tokens without an
// aud claim (as issued by Cognito) are matched on client_id instead.
func (v *JWKSValidator) checkAudience(claims jwt.MapClaims) error {
	if v.audience == "" {
		return nil
	}
	aud, err := claims.GetAudience()
	if err != nil {
		return fmt.Errorf("invalid aud claim: %w", err)
	}
	if len(aud) == 0 {
		if clientID, ok := claims["client_id"].(string); ok && clientID != "" {
			aud = jwt.ClaimStrings{clientID}
		}
	}
	if !slices.Contains(aud, v.audience) {
		return fmt.Errorf("token audience %v does not include %q", []string(aud), v.audience)
	}
	return nil
}

// evaluateOpaque asks the provider's userinfo endpoint about a non-JWT token.
func (v *JWKSValidator) evaluateOpaque(ctx context.Context, raw string) Decision {
	provider, err := v.discovery.Provider(ctx)
	if err != nil {
		return invalid(ReasonUpstreamUnavailable, err)
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: raw, TokenType: "Bearer"})
	info, err := provider.UserInfo(v.discovery.ClientContext(ctx), src)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return invalid(ReasonUpstreamUnavailable, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err))
		}
		return invalid(ReasonInvalidToken, err)
	}

	claims := map[string]any{}
	if err := info.Claims(&claims); err != nil {
		return invalid(ReasonInvalidToken, err)
	}
	return allow(ReasonValidCredential, &Principal{Subject: info.Subject, Claims: claims})
}
