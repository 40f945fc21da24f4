// Package app bootstraps and runs fastgeoapi.
//
// NewApplication loads the configuration from a dotenv file and the
// environment, initializes logging, and wires the components in dependency
// order: metrics registry, internal bypass key, authentication gate, reverse
// proxy, MCP tool server and OAuth proxy, HTTP server. Any configuration
// problem surfaces here as a *config.ConfigurationError, before a socket is
// bound.
//
// Run binds the listener, reports readiness to systemd, serves, watches the
// OpenAPI document for MCP tool reloads, and shuts everything down on
// SIGINT, SIGTERM or context cancellation.
package app
