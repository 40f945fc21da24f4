// Package server assembles the public HTTP listener.
//
// Every request passes request logging (with an X-Request-Id) and CORS
// handling before being routed:
//
//	┌───────────────────────────────────────────────────────────────┐
//	│                      fastgeoapi listener                      │
//	│                                                               │
//	│  /geoapi/...  ─► [ Gate ] ─► [ Reverse proxy ] ─► pygeoapi    │
//	│                                                               │
//	│  /mcp         ─► [ OAuth proxy | Gate ] ─► [ MCP tools ]      │
//	│                                   │                           │
//	│                                   └─► loopback + internal key │
//	│                                        back into /geoapi/...  │
//	│                                                               │
//	│  /health, /metrics                                            │
//	└───────────────────────────────────────────────────────────────┘
//
// # MCP OAuth proxy
//
// When MCP is enabled together with the JWKS scheme and an OIDC discovery
// endpoint, MCP clients authenticate through an OAuth 2.1 authorization
// server built on the mcp-oauth library. It supports dynamic client
// registration (RFC 7591) and mandatory PKCE, and delegates user login to
// the configured OIDC provider. The endpoints are:
//
//   - /.well-known/oauth-protected-resource/mcp/ - Protected Resource Metadata (RFC 9728)
//   - /mcp/.well-known/oauth-authorization-server - Authorization Server Metadata (RFC 8414)
//   - /mcp/register - Dynamic Client Registration (RFC 7591)
//   - /mcp/authorize - Authorization
//   - /mcp/token - Token Endpoint
//   - /mcp/auth/callback - Callback from the OIDC provider
//   - /mcp/revoke - Token Revocation (RFC 7009)
//   - /mcp - Protected MCP endpoint (requires a Bearer token)
//
// A request to /mcp without a token gets a bare RFC 6750 challenge that
// names the resource metadata URL; a rejected token gets invalid_token.
// Without the OAuth proxy, /mcp is guarded by the same gate as the API.
package server
