package gate

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// testIDP is an in-process identity provider publishing discovery, JWKS and
// userinfo endpoints.
type testIDP struct {
	srv           *httptest.Server
	jwksHits      atomic.Int32
	discoveryHits atomic.Int32

	mu        sync.Mutex
	key       *rsa.PrivateKey
	kid       string
	published []jose.JSONWebKey
	userinfo  http.HandlerFunc
	latency   time.Duration
	down      bool // discovery answers 500
}

func newTestIDP(t *testing.T) *testIDP {
	t.Helper()
	p := &testIDP{}
	p.rotate(t, "key-1", true)

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		p.discoveryHits.Add(1)
		latency, down := p.conditions()
		time.Sleep(latency)
		if down {
			http.Error(w, "unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 p.srv.URL,
			"authorization_endpoint": p.srv.URL + "/authorize",
			"token_endpoint":         p.srv.URL + "/token",
			"jwks_uri":               p.srv.URL + "/jwks",
			"userinfo_endpoint":      p.srv.URL + "/userinfo",
		})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		p.jwksHits.Add(1)
		latency, _ := p.conditions()
		time.Sleep(latency)
		p.mu.Lock()
		set := jose.JSONWebKeySet{Keys: append([]jose.JSONWebKey(nil), p.published...)}
		p.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		h := p.userinfo
		p.mu.Unlock()
		if h == nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h(w, r)
	})

	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

// rotate switches the signing key. When publish is false the new key is
// only published on the next call to publishCurrent.
func (p *testIDP) rotate(t *testing.T, kid string, publish bool) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.key = key
	p.kid = kid
	if publish {
		p.published = append(p.published, p.currentJWK())
	}
}

func (p *testIDP) publishCurrent() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, p.currentJWK())
}

func (p *testIDP) currentJWK() jose.JSONWebKey {
	return jose.JSONWebKey{Key: &p.key.PublicKey, KeyID: p.kid, Algorithm: "RS256", Use: "sig"}
}

func (p *testIDP) wellKnown() string {
	return p.srv.URL + "/.well-known/openid-configuration"
}

func (p *testIDP) jwksURL() string {
	return p.srv.URL + "/jwks"
}

// sign issues an RS256 token with the current key. iss and exp are filled in
// when absent.
func (p *testIDP) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["iss"]; !ok {
		claims["iss"] = p.srv.URL
	}
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	return p.signExact(t, claims)
}

// signExact issues an RS256 token carrying exactly claims.
func (p *testIDP) signExact(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	p.mu.Lock()
	key, kid := p.key, p.kid
	p.mu.Unlock()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	signed, err := tok.SignedString(key)
	require.NoError(t, err)
	return signed
}

func (p *testIDP) setUserinfo(h http.HandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userinfo = h
}

// setConditions delays every discovery and JWKS response by latency. When
// down is set, discovery fails with a 500.
func (p *testIDP) setConditions(latency time.Duration, down bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latency = latency
	p.down = down
}

func (p *testIDP) conditions() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latency, p.down
}
