package gate

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"

	"fastgeoapi/internal/config"
)

// DefaultPolicy is the permissive policy shipped for incremental OPA rollout.
//
//go:embed policy/default.rego
var DefaultPolicy string

const (
	maxOPAResponseBytes = 1 << 20
	maxCachedDecisions  = 10000
)

// OPAValidator delegates the allow/deny decision to an Open Policy Agent
// server. Any failure to obtain a decision denies the request.
type OPAValidator struct {
	endpoint   string
	httpClient *http.Client
	discovery  *Discovery // nil when requests carry no identity
	clientID   string
	cache      *decisionCache
}

func NewOPAValidator(auth config.AuthConfig, discovery *Discovery, httpClient *http.Client) *OPAValidator {
	v := &OPAValidator{
		endpoint:   strings.TrimSuffix(auth.OPAURL, "/") + auth.OPAPolicyPath,
		httpClient: httpClient,
		discovery:  discovery,
		clientID:   auth.OIDCClientID,
	}
	if auth.OPACacheTTL > 0 {
		v.cache = newDecisionCache(auth.OPACacheTTL, maxCachedDecisions)
	}
	return v
}

func (v *OPAValidator) Scheme() config.Scheme { return config.SchemeOPA }

// requiresBearer reports whether requests must present an ID token.
func (v *OPAValidator) requiresBearer() bool {
	return v.discovery != nil
}

func (v *OPAValidator) Evaluate(r *http.Request) Decision {
	ctx := r.Context()
	input := map[string]any{}
	var principal *Principal

	if v.discovery != nil {
		raw, reason := bearerToken(r)
		switch reason {
		case ReasonNoToken:
			return noCredential(reason)
		case ReasonMalformedToken:
			return invalid(reason, nil)
		}

		p, d, ok := v.verifyIDToken(ctx, raw)
		if !ok {
			return d
		}
		principal = p
		for k, val := range p.Claims {
			input[k] = val
		}
	}

	input["request_path"] = RequestPathSegments(r.URL.Path)
	input["request_method"] = r.Method

	allowed, err := v.decide(ctx, input)
	if err != nil {
		return invalid(ReasonUpstreamUnavailable, err)
	}
	if !allowed {
		return invalid(ReasonPolicyDenied, nil)
	}
	if principal == nil {
		principal = &Principal{Label: "policy"}
	}
	return allow(ReasonValidCredential, principal)
}

func (v *OPAValidator) verifyIDToken(ctx context.Context, raw string) (*Principal, Decision, bool) {
	provider, err := v.discovery.Provider(ctx)
	if err != nil {
		return nil, invalid(ReasonUpstreamUnavailable, err), false
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID:          v.clientID,
		SkipClientIDCheck: v.clientID == "",
	})
	idToken, err := verifier.Verify(v.discovery.ClientContext(ctx), raw)
	if err != nil {
		return nil, invalid(ReasonInvalidToken, err), false
	}

	claims := map[string]any{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, invalid(ReasonInvalidToken, err), false
	}
	return &Principal{Subject: idToken.Subject, Claims: claims}, Decision{}, true
}

// RequestPathSegments splits a URL path into the segments handed to the
// policy as request_path.
func RequestPathSegments(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return []string{}
	}
	return strings.Split(trimmed, "/")
}

func (v *OPAValidator) decide(ctx context.Context, input map[string]any) (bool, error) {
	body, err := json.Marshal(map[string]any{"input": input})
	if err != nil {
		return false, fmt.Errorf("failed to encode policy input: %w", err)
	}

	cacheKey := string(body)
	if allowed, ok := v.cache.get(cacheKey); ok {
		return allowed, nil
	}

	allowed, err := v.query(ctx, body)
	if err != nil {
		return false, err
	}
	v.cache.put(cacheKey, allowed)
	return allowed, nil
}

func (v *OPAValidator) query(ctx context.Context, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("%w: policy query failed with status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxOPAResponseBytes))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return parseOPAResult(data)
}

// parseOPAResult accepts both a boolean rule (`allow`) and a document rule
// (`{"allow": ...}`). An undefined result denies.
func parseOPAResult(data []byte) (bool, error) {
	var doc struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return false, fmt.Errorf("%w: invalid policy response: %v", ErrUpstreamUnavailable, err)
	}
	if len(doc.Result) == 0 {
		return false, nil
	}

	var b bool
	if err := json.Unmarshal(doc.Result, &b); err == nil {
		return b, nil
	}
	var obj struct {
		Allow bool `json:"allow"`
	}
	if err := json.Unmarshal(doc.Result, &obj); err != nil {
		return false, fmt.Errorf("%w: unexpected policy result %s", ErrUpstreamUnavailable, doc.Result)
	}
	return obj.Allow, nil
}

type cachedDecision struct {
	allowed bool
	expires time.Time
}

// decisionCache is a time-bounded map of policy inputs to decisions. A nil
// cache never hits.
type decisionCache struct {
	ttl     time.Duration
	maxSize int

	mu      sync.Mutex
	entries map[string]cachedDecision
}

func newDecisionCache(ttl time.Duration, maxSize int) *decisionCache {
	return &decisionCache{ttl: ttl, maxSize: maxSize, entries: make(map[string]cachedDecision)}
}

func (c *decisionCache) get(key string) (bool, bool) {
	if c == nil {
		return false, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return false, false
	}
	if time.Now().After(e.expires) {
		delete(c.entries, key)
		return false, false
	}
	return e.allowed, true
}

func (c *decisionCache) put(key string, allowed bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxSize {
		now := time.Now()
		for k, e := range c.entries {
			if now.After(e.expires) {
				delete(c.entries, k)
			}
		}
		if len(c.entries) >= c.maxSize {
			c.entries = make(map[string]cachedDecision)
		}
	}
	c.entries[key] = cachedDecision{allowed: allowed, expires: time.Now().Add(c.ttl)}
}
