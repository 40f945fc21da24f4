package geoapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"path"
	"strings"

	"fastgeoapi/internal/config"
	"fastgeoapi/internal/gate"
	"fastgeoapi/pkg/logging"
)

// ResponseModifier adjusts an upstream response before it is copied to the
// client.
type ResponseModifier func(*http.Response) error

// Proxy forwards requests under the API context to the OGC API server.
type Proxy struct {
	target    *url.URL
	context   string
	modifiers []ResponseModifier
	rewrite   bool
	rp        *httputil.ReverseProxy
}

// ProxyOption configures a Proxy.
type ProxyOption func(*Proxy)

// WithResponseModifier appends m to the response pipeline.
func WithResponseModifier(m ResponseModifier) ProxyOption {
	return func(p *Proxy) {
		p.modifiers = append(p.modifiers, m)
	}
}

// WithTransport sets the upstream transport.
func WithTransport(rt http.RoundTripper) ProxyOption {
	return func(p *Proxy) {
		p.rp.Transport = rt
	}
}

// NewProxy builds the reverse proxy. When link rewriting is enabled the
// ForwardedLinks modifier runs last.
func NewProxy(cfg config.GeoAPIConfig, opts ...ProxyOption) (*Proxy, error) {
	target, err := url.Parse(cfg.Upstream)
	if err != nil || target.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL %q", cfg.Upstream)
	}

	p := &Proxy{
		target:  target,
		context: strings.TrimSuffix(cfg.Context, "/"),
		rewrite: cfg.ReverseProxy,
	}
	p.rp = &httputil.ReverseProxy{
		Rewrite:        p.rewriteRequest,
		ModifyResponse: p.modifyResponse,
		ErrorHandler:   p.handleError,
	}
	for _, opt := range opts {
		opt(p)
	}
	if cfg.ReverseProxy {
		p.modifiers = append(p.modifiers, ForwardedLinks(cfg.BaseURL))
	}
	return p, nil
}

// Context returns the mount path, e.g. /geoapi.
func (p *Proxy) Context() string {
	return p.context
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.rp.ServeHTTP(w, r)
}

// StripContext maps an incoming path onto the upstream path. Dot segments
// are resolved so the upstream never receives a path that climbs out of the
// one the gate evaluated.
func (p *Proxy) StripContext(reqPath string) string {
	stripped := strings.TrimPrefix(reqPath, p.context)
	cleaned := path.Clean("/" + stripped)
	if strings.HasSuffix(stripped, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}

func (p *Proxy) rewriteRequest(pr *httputil.ProxyRequest) {
	pr.Out.URL.Path = p.StripContext(pr.In.URL.Path)
	pr.Out.URL.RawPath = ""
	pr.SetURL(p.target)
	// Modifiers need the plain body; the transport negotiates gzip itself
	// and decodes it when the header is left unset.
	if len(p.modifiers) > 0 {
		pr.Out.Header.Del("Accept-Encoding")
	}
	pr.Out.Header.Del(gate.APIKeyHeader)
	pr.Out.Header.Del(gate.InternalKeyHeader)

	if rpc, ok := ReverseProxyContextFromRequest(pr.In); ok {
		pr.Out = pr.Out.WithContext(withReverseProxyContext(pr.Out.Context(), rpc))
	}
}

func (p *Proxy) modifyResponse(resp *http.Response) error {
	for _, m := range p.modifiers {
		if err := m(resp); err != nil {
			return err
		}
	}
	return nil
}

func (p *Proxy) handleError(w http.ResponseWriter, r *http.Request, err error) {
	logging.Error("proxy", err, "upstream request %s %s failed", r.Method, r.URL.Path)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": "upstream unavailable"})
}
