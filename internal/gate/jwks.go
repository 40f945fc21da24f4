package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-jose/go-jose/v4"
	"golang.org/x/sync/singleflight"

	"fastgeoapi/pkg/logging"
)

const (
	// DefaultMinRefreshInterval bounds how often an unknown kid may trigger
	// a refetch.
	DefaultMinRefreshInterval = 10 * time.Second

	maxJWKSBytes = 1 << 20
)

// keySnapshot is an immutable view of one fetched key set.
type keySnapshot struct {
	byKID     map[string]any
	anonymous []any // keys published without a kid
	fetchedAt time.Time
}

func (s *keySnapshot) lookup(kid string) (any, bool) {
	if s == nil {
		return nil, false
	}
	if kid == "" {
		if len(s.anonymous) == 1 {
			return s.anonymous[0], true
		}
		if len(s.anonymous) == 0 && len(s.byKID) == 1 {
			for _, k := range s.byKID {
				return k, true
			}
		}
		return nil, false
	}
	k, ok := s.byKID[kid]
	return k, ok
}

// KeySet caches the issuer's published signing keys. Reads load an
// immutable snapshot without locking. Refreshes for the same issuer collapse
// into a single outbound fetch.
type KeySet struct {
	endpoint   string
	discovery  *Discovery
	httpClient *http.Client
	ttl        time.Duration
	minRefresh time.Duration
	metrics    *Metrics

	snap  atomic.Pointer[keySnapshot]
	group singleflight.Group
}

// KeySetOption configures a KeySet.
type KeySetOption func(*KeySet)

// WithMinRefreshInterval sets how soon after a fetch an unknown kid may
// trigger another one.
func WithMinRefreshInterval(d time.Duration) KeySetOption {
	return func(ks *KeySet) {
		ks.minRefresh = d
	}
}

// WithKeySetMetrics records refresh results.
func WithKeySetMetrics(m *Metrics) KeySetOption {
	return func(ks *KeySet) {
		ks.metrics = m
	}
}

// NewKeySet creates a key set fetched from endpoint, or from the jwks_uri of
// discovery when endpoint is empty.
func NewKeySet(endpoint string, discovery *Discovery, httpClient *http.Client, ttl time.Duration, opts ...KeySetOption) *KeySet {
	ks := &KeySet{
		endpoint:   endpoint,
		discovery:  discovery,
		httpClient: httpClient,
		ttl:        ttl,
		minRefresh: DefaultMinRefreshInterval,
	}
	for _, opt := range opts {
		opt(ks)
	}
	return ks
}

// Key returns the public key for kid. A miss on a fresh snapshot triggers at
// most one refetch before ErrUnknownKey is returned.
func (ks *KeySet) Key(ctx context.Context, kid string) (any, error) {
	cur := ks.snap.Load()
	if cur != nil && time.Since(cur.fetchedAt) < ks.ttl {
		if k, ok := cur.lookup(kid); ok {
			return k, nil
		}
		if time.Since(cur.fetchedAt) < ks.minRefresh {
			return nil, fmt.Errorf("%w: kid %q", ErrUnknownKey, kid)
		}
	}

	next, err := ks.refresh(ctx, cur)
	if err != nil {
		return nil, err
	}
	if k, ok := next.lookup(kid); ok {
		return k, nil
	}
	return nil, fmt.Errorf("%w: kid %q", ErrUnknownKey, kid)
}

// refresh fetches a new snapshot unless another caller already replaced
// seen while this one waited. The shared fetch is detached from the caller
// that started it and bounded only by the HTTP client timeout.
func (ks *KeySet) refresh(ctx context.Context, seen *keySnapshot) (*keySnapshot, error) {
	ch := ks.group.DoChan("jwks", func() (interface{}, error) {
		if cur := ks.snap.Load(); cur != nil && cur != seen {
			return cur, nil
		}

		fctx := context.WithoutCancel(ctx)
		url, err := ks.resolveURL(fctx)
		if err != nil {
			return nil, err
		}

		next, err := ks.fetch(fctx, url)
		if err != nil {
			ks.metrics.jwksRefresh("error")
			logging.Error("jwks", err, "failed to refresh key set from %s", url)
			return nil, err
		}
		ks.metrics.jwksRefresh("ok")
		ks.snap.Store(next)
		logging.Debug("jwks", "refreshed key set from %s: %d keys", url, len(next.byKID)+len(next.anonymous))
		return next, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*keySnapshot), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, ctx.Err())
	}
}

func (ks *KeySet) resolveURL(ctx context.Context) (string, error) {
	if ks.endpoint != "" {
		return ks.endpoint, nil
	}
	if ks.discovery == nil {
		return "", fmt.Errorf("%w: no JWKS endpoint configured", ErrUpstreamUnavailable)
	}
	return ks.discovery.JWKSURI(ctx)
}

func (ks *KeySet) fetch(ctx context.Context, url string) (*keySnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := ks.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: JWKS request failed with status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	return parseKeySet(body)
}

// parseKeySet decodes keys one by one so a single unsupported entry does not
// invalidate the whole set.
func parseKeySet(body []byte) (*keySnapshot, error) {
	var doc struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JWKS: %v", ErrUpstreamUnavailable, err)
	}

	snap := &keySnapshot{
		byKID:     make(map[string]any, len(doc.Keys)),
		fetchedAt: time.Now(),
	}
	for _, raw := range doc.Keys {
		var jwk jose.JSONWebKey
		if err := jwk.UnmarshalJSON(raw); err != nil {
			logging.Debug("jwks", "skipping unsupported key: %v", err)
			continue
		}
		if jwk.Use == "enc" {
			continue
		}
		pub := jwk.Public()
		if !pub.Valid() || pub.Key == nil {
			continue
		}
		if jwk.KeyID == "" {
			snap.anonymous = append(snap.anonymous, pub.Key)
			continue
		}
		snap.byKID[jwk.KeyID] = pub.Key
	}
	return snap, nil
}
