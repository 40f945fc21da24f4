package gate

import (
	"context"
	"errors"
	"net/http"

	"fastgeoapi/internal/config"
)

// Outcome is the terminal state of one request evaluation.
type Outcome int

const (
	Allowed Outcome = iota
	NoCredential
	InvalidCredential
)

func (o Outcome) String() string {
	switch o {
	case Allowed:
		return "allowed"
	case NoCredential:
		return "no_credential"
	case InvalidCredential:
		return "invalid_credential"
	default:
		return "unknown"
	}
}

// Reason is the machine-readable cause behind an Outcome. It selects the
// response body and is used as a metrics label.
type Reason string

const (
	ReasonOpenAccess          Reason = "open_access"
	ReasonPublicPath          Reason = "public_path"
	ReasonPreflight           Reason = "preflight"
	ReasonInternalBypass      Reason = "internal_bypass"
	ReasonValidCredential     Reason = "valid_credential"
	ReasonNoAPIKey            Reason = "no_api_key"
	ReasonInvalidAPIKey       Reason = "invalid_api_key"
	ReasonNoToken             Reason = "no_token"
	ReasonMalformedToken      Reason = "malformed_token"
	ReasonInvalidToken        Reason = "invalid_token"
	ReasonUpstreamUnavailable Reason = "upstream_unavailable"
	ReasonPolicyDenied        Reason = "policy_denied"
)

var (
	// ErrUpstreamUnavailable wraps every failure to reach the JWKS, OIDC or
	// OPA endpoints. It always resolves to InvalidCredential.
	ErrUpstreamUnavailable = errors.New("authentication upstream unavailable")
	// ErrUnknownKey is returned when a token's kid is absent from the JWKS
	// even after a refetch.
	ErrUnknownKey = errors.New("signing key not found in JWKS")
)

// Principal is the identity attached to an allowed request.
type Principal struct {
	Subject string
	Label   string
	Claims  map[string]any
}

// Decision is the result of evaluating one request. It is never persisted.
type Decision struct {
	Outcome   Outcome
	Reason    Reason
	Principal *Principal
	Err       error // Cause, for logging only
}

func allow(reason Reason, p *Principal) Decision {
	return Decision{Outcome: Allowed, Reason: reason, Principal: p}
}

func noCredential(reason Reason) Decision {
	return Decision{Outcome: NoCredential, Reason: reason}
}

func invalid(reason Reason, err error) Decision {
	return Decision{Outcome: InvalidCredential, Reason: reason, Err: err}
}

// Validator evaluates the credentials of one request against a single scheme.
// Implementations hold no per-request state and are safe for concurrent use.
type Validator interface {
	Scheme() config.Scheme
	Evaluate(r *http.Request) Decision
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal of an allowed request, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// openValidator admits everything. Used when no scheme is enabled.
type openValidator struct{}

func (openValidator) Scheme() config.Scheme { return config.SchemeNone }

func (openValidator) Evaluate(*http.Request) Decision {
	return allow(ReasonOpenAccess, nil)
}
