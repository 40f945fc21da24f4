package geoapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"fastgeoapi/pkg/logging"
)

// ForwardedURLHeader reports the external base URL links were rewritten to.
const ForwardedURLHeader = "X-Pygeoapi-Forwarded-Url"

// rewritableTypes are the media types whose bodies may contain self links.
var rewritableTypes = map[string]bool{
	"text/html":                       true,
	"application/json":                true,
	"application/ld+json":             true,
	"application/schema+json":         true,
	"application/vnd.oai.openapi+json": true,
}

// ReverseProxyContext is the externally visible origin of one request as
// reported by the fronting proxy.
type ReverseProxyContext struct {
	Proto string
	Host  string
}

// ReverseProxyContextFromRequest reads X-Forwarded-Proto and X-Forwarded-Host.
// Both must be present.
func ReverseProxyContextFromRequest(r *http.Request) (ReverseProxyContext, bool) {
	proto := firstValue(r.Header.Get("X-Forwarded-Proto"))
	host := firstValue(r.Header.Get("X-Forwarded-Host"))
	if proto == "" || host == "" {
		return ReverseProxyContext{}, false
	}
	return ReverseProxyContext{Proto: proto, Host: host}, true
}

type reverseProxyContextKey struct{}

func withReverseProxyContext(ctx context.Context, rpc ReverseProxyContext) context.Context {
	return context.WithValue(ctx, reverseProxyContextKey{}, rpc)
}

// forwardedOrigin prefers the context stored on the outbound request, since
// forwarded headers are not passed upstream.
func forwardedOrigin(r *http.Request) (ReverseProxyContext, bool) {
	if rpc, ok := r.Context().Value(reverseProxyContextKey{}).(ReverseProxyContext); ok {
		return rpc, true
	}
	return ReverseProxyContextFromRequest(r)
}

// BaseURL is the origin links should point at.
func (c ReverseProxyContext) BaseURL() string {
	return c.Proto + "://" + c.Host
}

func firstValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}

// Rewritable reports whether a Content-Type value names a body that may
// carry links.
func Rewritable(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return rewritableTypes[mediaType]
}

// ForwardedLinks returns a response modifier replacing every occurrence of
// baseURL in eligible bodies with the forwarded origin.
func ForwardedLinks(baseURL string) ResponseModifier {
	old := []byte(baseURL)
	return func(resp *http.Response) error {
		if resp.Request == nil || len(old) == 0 {
			return nil
		}
		rpc, ok := forwardedOrigin(resp.Request)
		if !ok || !Rewritable(resp.Header.Get("Content-Type")) {
			return nil
		}
		if resp.Header.Get("Content-Encoding") != "" {
			logging.Debug("proxy", "not rewriting encoded %s response", resp.Header.Get("Content-Encoding"))
			return nil
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to read upstream body: %w", err)
		}

		external := rpc.BaseURL()
		body = bytes.ReplaceAll(body, old, []byte(external))
		logging.Debug("proxy", "rewrote links %s -> %s", baseURL, external)

		SetBody(resp, body)
		resp.Header.Set(ForwardedURLHeader, external)
		return nil
	}
}

// SetBody replaces a response body and fixes its length.
func SetBody(resp *http.Response, body []byte) {
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
}
