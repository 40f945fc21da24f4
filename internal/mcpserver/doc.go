// Package mcpserver exposes the OGC API as Model Context Protocol tools.
//
// Every GET operation in the OpenAPI document becomes one tool whose
// arguments are the operation's path and query parameters. Tool calls are
// plain HTTP requests to the API on the loopback interface carrying the
// per-process internal key, which lets them pass the authentication gate
// without a user credential. The MCP endpoint itself is protected separately,
// either by the gate or by the OAuth proxy in package server.
//
// The tool set follows the document: when the OpenAPI file changes, Load
// swaps the previous tools for the new ones.
package mcpserver
