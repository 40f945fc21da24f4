package gate

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
)

// InternalKeyHeader carries the per-process key the MCP tool server sends
// on its loopback calls into the API.
const InternalKeyHeader = "X-MCP-Internal-Key"

// InternalKey is a random secret generated at startup and never persisted.
type InternalKey struct {
	value string
}

// NewInternalKey generates 32 random bytes, base64url encoded.
func NewInternalKey() (*InternalKey, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate internal key: %w", err)
	}
	return &InternalKey{value: base64.RawURLEncoding.EncodeToString(b)}, nil
}

// Value returns the key for the MCP client.
func (k *InternalKey) Value() string {
	if k == nil {
		return ""
	}
	return k.value
}

// Admits reports whether r is an internal call: it must come from a loopback
// peer and carry the exact key.
func (k *InternalKey) Admits(r *http.Request) bool {
	if k == nil || k.value == "" {
		return false
	}
	got := r.Header.Get(InternalKeyHeader)
	if got == "" {
		return false
	}
	if !IsLoopbackAddr(r.RemoteAddr) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(k.value)) == 1
}

// IsLoopbackAddr reports whether a RemoteAddr (host:port or bare host) is a
// loopback peer. Forwarded headers are deliberately not consulted.
func IsLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
