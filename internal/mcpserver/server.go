package mcpserver

import (
	"context"
	"net/http"
	"sync"

	"github.com/mark3labs/mcp-go/server"

	"fastgeoapi/internal/openapi"
	"fastgeoapi/pkg/logging"
)

// ServerName is advertised to MCP clients during initialization.
const ServerName = "fastgeoapi"

// Server exposes the API's read operations as MCP tools over streamable
// HTTP. Tools are replaced wholesale whenever the document changes.
type Server struct {
	mcpServer      *server.MCPServer
	streamableHTTP *server.StreamableHTTPServer
	client         *APIClient

	mu        sync.Mutex
	toolNames []string
}

// New creates a server with no tools. Call Load to register them.
func New(version string, client *APIClient) *Server {
	mcpServer := server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, false),
		server.WithPromptCapabilities(false),
	)
	return &Server{
		mcpServer:      mcpServer,
		streamableHTTP: server.NewStreamableHTTPServer(mcpServer),
		client:         client,
	}
}

// Load replaces the registered tools with those derived from doc and
// returns how many were registered.
func (s *Server) Load(doc openapi.Document) int {
	tools := BuildTools(doc, s.client)

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.toolNames) > 0 {
		s.mcpServer.DeleteTools(s.toolNames...)
	}
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Tool.Name)
	}
	if len(tools) > 0 {
		s.mcpServer.AddTools(tools...)
	}
	s.toolNames = names

	logging.Info("mcpserver", "registered %d tools from %q", len(tools), doc.Title())
	return len(tools)
}

// ToolNames lists the registered tools.
func (s *Server) ToolNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.toolNames...)
}

// Handler serves the MCP streamable HTTP transport.
func (s *Server) Handler() http.Handler {
	return s.streamableHTTP
}

// Shutdown closes open MCP sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.streamableHTTP.Shutdown(ctx)
}
