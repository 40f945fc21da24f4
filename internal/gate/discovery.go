package gate

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/sync/singleflight"
)

const wellKnownSuffix = "/.well-known/openid-configuration"

// IssuerFromWellKnown strips the OpenID discovery suffix from a well-known
// endpoint URL, yielding the issuer.
func IssuerFromWellKnown(wellKnown string) string {
	return strings.TrimSuffix(strings.TrimSuffix(wellKnown, "/"), wellKnownSuffix)
}

// Discovery resolves the OIDC provider lazily, so an identity provider that
// is down at startup only affects requests, never process start. A failed
// discovery is retried on the next call. Concurrent calls share one fetch,
// and mu is never held across network I/O.
type Discovery struct {
	issuer     string
	httpClient *http.Client
	group      singleflight.Group

	mu       sync.Mutex
	provider *oidc.Provider
	jwksURI  string
}

func NewDiscovery(wellKnown string, httpClient *http.Client) *Discovery {
	return &Discovery{
		issuer:     IssuerFromWellKnown(wellKnown),
		httpClient: httpClient,
	}
}

// Issuer returns the issuer derived from the well-known endpoint.
func (d *Discovery) Issuer() string {
	return d.issuer
}

// ClientContext returns ctx carrying the bounded HTTP client, as go-oidc
// expects.
func (d *Discovery) ClientContext(ctx context.Context) context.Context {
	return oidc.ClientContext(ctx, d.httpClient)
}

func (d *Discovery) cached() (*oidc.Provider, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.provider, d.jwksURI
}

// Provider returns the discovered provider. A caller whose ctx ends stops
// waiting; the shared fetch carries on for the others.
func (d *Discovery) Provider(ctx context.Context) (*oidc.Provider, error) {
	if provider, _ := d.cached(); provider != nil {
		return provider, nil
	}

	ch := d.group.DoChan("discovery", func() (interface{}, error) {
		if provider, _ := d.cached(); provider != nil {
			return provider, nil
		}

		provider, err := oidc.NewProvider(d.ClientContext(context.WithoutCancel(ctx)), d.issuer)
		if err != nil {
			return nil, fmt.Errorf("%w: OIDC discovery for %s: %v", ErrUpstreamUnavailable, d.issuer, err)
		}

		var meta struct {
			JWKSURI string `json:"jwks_uri"`
		}
		if err := provider.Claims(&meta); err != nil {
			return nil, fmt.Errorf("%w: decoding discovery document: %v", ErrUpstreamUnavailable, err)
		}

		d.mu.Lock()
		d.provider = provider
		d.jwksURI = meta.JWKSURI
		d.mu.Unlock()
		return provider, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*oidc.Provider), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: OIDC discovery for %s: %v", ErrUpstreamUnavailable, d.issuer, ctx.Err())
	}
}

// JWKSURI returns the jwks_uri advertised by the provider.
func (d *Discovery) JWKSURI(ctx context.Context) (string, error) {
	if _, err := d.Provider(ctx); err != nil {
		return "", err
	}
	if _, uri := d.cached(); uri != "" {
		return uri, nil
	}
	return "", fmt.Errorf("%w: discovery document for %s has no jwks_uri", ErrUpstreamUnavailable, d.issuer)
}
