package gate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fastgeoapi/internal/config"
)

func jwksGate(t *testing.T, mutate func(c *config.Config), opts ...Option) *Gate {
	t.Helper()
	cfg := testConfig(func(c *config.Config) {
		c.Auth.JWKSEnabled = true
		c.Auth.UpstreamTimeout = 2 * time.Second
		if mutate != nil {
			mutate(c)
		}
	})
	opts = append(opts, WithKeySetOptions(WithMinRefreshInterval(0)))
	g, err := New(cfg, opts...)
	require.NoError(t, err)
	return g
}

func bearerRequest(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/geoapi/collections/obs/items", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func TestJWKSValidator_Evaluate(t *testing.T) {
	idp := newTestIDP(t)
	g := jwksGate(t, func(c *config.Config) {
		c.Auth.JWKSEndpoint = idp.jwksURL()
		c.Auth.Audience = "fastgeoapi"
		c.Auth.Issuer = idp.srv.URL
	})

	tests := []struct {
		name    string
		header  string
		outcome Outcome
		reason  Reason
	}{
		{
			name:    "no header",
			outcome: NoCredential,
			reason:  ReasonNoToken,
		},
		{
			name:    "wrong scheme",
			header:  "Basic dXNlcjpwYXNz",
			outcome: InvalidCredential,
			reason:  ReasonMalformedToken,
		},
		{
			name:    "empty bearer",
			header:  "Bearer   ",
			outcome: InvalidCredential,
			reason:  ReasonMalformedToken,
		},
		{
			name:    "not a jwt",
			header:  "Bearer abc.def",
			outcome: InvalidCredential,
			reason:  ReasonMalformedToken,
		},
		{
			name:    "valid",
			header:  "Bearer " + idp.sign(t, jwt.MapClaims{"sub": "alice", "aud": "fastgeoapi"}),
			outcome: Allowed,
			reason:  ReasonValidCredential,
		},
		{
			name:    "cognito access token matched on client_id",
			header:  "Bearer " + idp.sign(t, jwt.MapClaims{"sub": "svc", "client_id": "fastgeoapi"}),
			outcome: Allowed,
			reason:  ReasonValidCredential,
		},
		{
			name:    "expired",
			header:  "Bearer " + idp.sign(t, jwt.MapClaims{"sub": "alice", "aud": "fastgeoapi", "exp": time.Now().Add(-time.Hour).Unix()}),
			outcome: InvalidCredential,
			reason:  ReasonInvalidToken,
		},
		{
			name:    "no expiry",
			header:  "Bearer " + idp.signExact(t, jwt.MapClaims{"sub": "alice", "aud": "fastgeoapi", "iss": idp.srv.URL}),
			outcome: InvalidCredential,
			reason:  ReasonInvalidToken,
		},
		{
			name:    "wrong audience",
			header:  "Bearer " + idp.sign(t, jwt.MapClaims{"sub": "alice", "aud": "someone-else"}),
			outcome: InvalidCredential,
			reason:  ReasonInvalidToken,
		},
		{
			name:    "wrong issuer",
			header:  "Bearer " + idp.sign(t, jwt.MapClaims{"sub": "alice", "aud": "fastgeoapi", "iss": "https://evil.example.com"}),
			outcome: InvalidCredential,
			reason:  ReasonInvalidToken,
		},
		{
			name: "unsigned",
			header: "Bearer " + func() string {
				s, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "alice", "aud": "fastgeoapi"}).
					SignedString(jwt.UnsafeAllowNoneSignatureType)
				require.NoError(t, err)
				return s
			}(),
			outcome: InvalidCredential,
			reason:  ReasonInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/geoapi/collections", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			d := g.Evaluate(r)
			assert.Equal(t, tt.outcome, d.Outcome, "err: %v", d.Err)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestJWKSValidator_PrincipalAndIdempotence(t *testing.T) {
	idp := newTestIDP(t)
	g := jwksGate(t, func(c *config.Config) { c.Auth.JWKSEndpoint = idp.jwksURL() })

	r := bearerRequest(idp.sign(t, jwt.MapClaims{"sub": "alice", "company": "acme"}))
	first := g.Evaluate(r)
	second := g.Evaluate(r)

	require.Equal(t, Allowed, first.Outcome)
	assert.Equal(t, "alice", first.Principal.Subject)
	assert.Equal(t, "acme", first.Principal.Claims["company"])
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), idp.jwksHits.Load(), "second evaluation must be served from cache")
}

func TestJWKSValidator_UnknownKidRefetchesOnce(t *testing.T) {
	idp := newTestIDP(t)
	g := jwksGate(t, func(c *config.Config) { c.Auth.JWKSEndpoint = idp.jwksURL() })

	require.Equal(t, Allowed, g.Evaluate(bearerRequest(idp.sign(t, jwt.MapClaims{"sub": "a"}))).Outcome)
	require.Equal(t, int32(1), idp.jwksHits.Load())

	// Rotated key already published: one refetch finds it.
	idp.rotate(t, "key-2", true)
	d := g.Evaluate(bearerRequest(idp.sign(t, jwt.MapClaims{"sub": "a"})))
	assert.Equal(t, Allowed, d.Outcome, "err: %v", d.Err)
	assert.Equal(t, int32(2), idp.jwksHits.Load())

	// Unpublished key: exactly one refetch, then reject.
	idp.rotate(t, "key-3", false)
	d = g.Evaluate(bearerRequest(idp.sign(t, jwt.MapClaims{"sub": "a"})))
	assert.Equal(t, InvalidCredential, d.Outcome)
	assert.Equal(t, ReasonInvalidToken, d.Reason)
	assert.ErrorIs(t, d.Err, ErrUnknownKey)
	assert.Equal(t, int32(3), idp.jwksHits.Load())
}

func TestKeySet_MinRefreshIntervalSuppressesRefetch(t *testing.T) {
	idp := newTestIDP(t)
	ks := NewKeySet(idp.jwksURL(), nil, http.DefaultClient, time.Hour, WithMinRefreshInterval(time.Hour))

	_, err := ks.Key(context.Background(), "key-1")
	require.NoError(t, err)

	_, err = ks.Key(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownKey)
	assert.Equal(t, int32(1), idp.jwksHits.Load())
}

func TestKeySet_ConcurrentMissesCollapse(t *testing.T) {
	idp := newTestIDP(t)
	ks := NewKeySet(idp.jwksURL(), nil, http.DefaultClient, time.Hour, WithMinRefreshInterval(0))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ks.Key(context.Background(), "key-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Callers that arrive after the first fetch completes hit the cache;
	// callers that overlap share it.
	assert.LessOrEqual(t, idp.jwksHits.Load(), int32(2))
}

func TestJWKSGate_CancelledCallerDoesNotFailSharedFetch(t *testing.T) {
	idp := newTestIDP(t)
	idp.setConditions(300*time.Millisecond, false)
	g := jwksGate(t, func(c *config.Config) { c.Auth.JWKSEndpoint = idp.jwksURL() })
	token := idp.sign(t, jwt.MapClaims{"sub": "alice"})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	var first Decision
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = g.Evaluate(bearerRequest(token).WithContext(ctx))
	}()

	time.Sleep(20 * time.Millisecond)
	second := g.Evaluate(bearerRequest(token))
	wg.Wait()

	assert.Equal(t, InvalidCredential, first.Outcome)
	assert.Equal(t, ReasonUpstreamUnavailable, first.Reason)
	assert.Equal(t, Allowed, second.Outcome, "err: %v", second.Err)
	assert.Equal(t, int32(1), idp.jwksHits.Load())
}

func TestDiscovery_ConcurrentCallsShareOneFetch(t *testing.T) {
	idp := newTestIDP(t)
	idp.setConditions(200*time.Millisecond, true)
	d := NewDiscovery(idp.wellKnown(), &http.Client{Timeout: 2 * time.Second})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Provider(context.Background())
			assert.ErrorIs(t, err, ErrUpstreamUnavailable)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), idp.discoveryHits.Load())

	// A failed discovery is retried once the provider recovers.
	idp.setConditions(0, false)
	uri, err := d.JWKSURI(context.Background())
	require.NoError(t, err)
	assert.Equal(t, idp.jwksURL(), uri)
	assert.Equal(t, int32(2), idp.discoveryHits.Load())
}

func TestDiscovery_CallerDeadlineDoesNotWaitOnSlowProvider(t *testing.T) {
	idp := newTestIDP(t)
	idp.setConditions(300*time.Millisecond, false)
	d := NewDiscovery(idp.wellKnown(), &http.Client{Timeout: 2 * time.Second})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := d.Provider(context.Background())
		assert.NoError(t, err)
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := d.Provider(ctx)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Less(t, time.Since(start), 250*time.Millisecond)

	wg.Wait()
	assert.Equal(t, int32(1), idp.discoveryHits.Load())
}

func TestKeySet_SkipsUnsupportedKeys(t *testing.T) {
	body := []byte(`{"keys":[
		{"kty":"oct","k":"c2VjcmV0","kid":"sym"},
		{"kty":"bogus","kid":"weird"},
		{"kty":"EC","crv":"P-256","kid":"ec-1","use":"sig",
		 "x":"f83OJ3D2xF1Bg8vub9tLe1gHMzV76e8Tus9uPHvRVEU",
		 "y":"x_FEzRu9m36HLN_tue659LNpXW6pCyStikYjKIWI5a0"}
	]}`)

	snap, err := parseKeySet(body)
	require.NoError(t, err)
	_, ok := snap.lookup("ec-1")
	assert.True(t, ok)
	_, ok = snap.lookup("sym")
	assert.False(t, ok)
	_, ok = snap.lookup("weird")
	assert.False(t, ok)
}

func TestJWKSGate_UnreachableEndpointIs401(t *testing.T) {
	idp := newTestIDP(t)
	token := idp.sign(t, jwt.MapClaims{"sub": "alice"})

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL + "/jwks"
	dead.Close()

	g := jwksGate(t, func(c *config.Config) { c.Auth.JWKSEndpoint = deadURL })

	d := g.Evaluate(bearerRequest(token))
	assert.Equal(t, InvalidCredential, d.Outcome)
	assert.Equal(t, ReasonUpstreamUnavailable, d.Reason)

	rec := serve(g, bearerRequest(token))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)
}

func TestJWKSGate_Challenges(t *testing.T) {
	idp := newTestIDP(t)
	g := jwksGate(t, func(c *config.Config) { c.Auth.JWKSEndpoint = idp.jwksURL() })

	rec := serve(g, bearerRequest(""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Bearer realm="fastgeoapi"`, rec.Header().Get("WWW-Authenticate"))
	assert.JSONEq(t, `{"message":"Unauthenticated"}`, rec.Body.String())

	rec = serve(g, bearerRequest("garbage"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)

	rec = serve(g, bearerRequest(idp.sign(t, jwt.MapClaims{"sub": "alice"})))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Header().Get("X-Principal"))
}

func TestJWKSValidator_DiscoveredJWKS(t *testing.T) {
	idp := newTestIDP(t)
	g := jwksGate(t, func(c *config.Config) { c.Auth.OIDCWellKnownEndpoint = idp.wellKnown() })

	d := g.Evaluate(bearerRequest(idp.sign(t, jwt.MapClaims{"sub": "alice"})))
	assert.Equal(t, Allowed, d.Outcome, "err: %v", d.Err)
}

func TestJWKSValidator_OpaqueTokens(t *testing.T) {
	idp := newTestIDP(t)
	idp.setUserinfo(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer opaque-good" {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"sub": "bob", "email": "bob@example.com"})
	})

	t.Run("disabled", func(t *testing.T) {
		g := jwksGate(t, func(c *config.Config) {
			c.Auth.OIDCWellKnownEndpoint = idp.wellKnown()
		})
		d := g.Evaluate(bearerRequest("opaque-good"))
		assert.Equal(t, InvalidCredential, d.Outcome)
		assert.Equal(t, ReasonMalformedToken, d.Reason)
	})

	t.Run("enabled", func(t *testing.T) {
		g := jwksGate(t, func(c *config.Config) {
			c.Auth.OIDCWellKnownEndpoint = idp.wellKnown()
			c.Auth.OpaqueTokensEnabled = true
		})

		d := g.Evaluate(bearerRequest("opaque-good"))
		require.Equal(t, Allowed, d.Outcome, "err: %v", d.Err)
		assert.Equal(t, "bob", d.Principal.Subject)
		assert.Equal(t, "bob@example.com", d.Principal.Claims["email"])

		d = g.Evaluate(bearerRequest("opaque-bad"))
		assert.Equal(t, InvalidCredential, d.Outcome)
		assert.Equal(t, ReasonInvalidToken, d.Reason)
	})
}

func TestIssuerFromWellKnown(t *testing.T) {
	assert.Equal(t, "https://idp.example.com/realms/geo",
		IssuerFromWellKnown("https://idp.example.com/realms/geo/.well-known/openid-configuration"))
	assert.Equal(t, "https://idp.example.com",
		IssuerFromWellKnown("https://idp.example.com/.well-known/openid-configuration/"))
}
