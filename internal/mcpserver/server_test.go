package mcpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fastgeoapi/internal/openapi"
)

func newTestClient(t *testing.T, url string) *client.Client {
	t.Helper()
	mcpClient, err := client.NewStreamableHttpClient(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mcpClient.Close() })

	_, err = mcpClient.Initialize(context.Background(), mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: "2024-11-05",
			ClientInfo: mcp.Implementation{
				Name:    "fastgeoapi-test",
				Version: "1.0.0",
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	})
	require.NoError(t, err)
	return mcpClient
}

func listToolNames(t *testing.T, c *client.Client) []string {
	t.Helper()
	result, err := c.ListTools(context.Background(), mcp.ListToolsRequest{})
	require.NoError(t, err)
	names := make([]string, 0, len(result.Tools))
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	return names
}

func TestServerOverStreamableHTTP(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"` + strings.TrimPrefix(r.URL.Path, "/geoapi/collections/") + `"}`))
	}))
	defer api.Close()

	s := New("test", NewAPIClient(api.URL+"/geoapi", nil, 0))
	require.Equal(t, 3, s.Load(loadToolsDoc(t)))

	mux := http.NewServeMux()
	mux.Handle("/mcp", s.Handler())
	ts := httptest.NewServer(mux)
	defer ts.Close()
	defer func() { _ = s.Shutdown(context.Background()) }()

	c := newTestClient(t, ts.URL+"/mcp")
	assert.ElementsMatch(t, []string{"get_root", "describeCollection", "getFeatures"}, listToolNames(t, c))

	result, err := c.CallTool(context.Background(), mcp.CallToolRequest{
		Params: struct {
			Name      string    `json:"name"`
			Arguments any       `json:"arguments,omitempty"`
			Meta      *mcp.Meta `json:"_meta,omitempty"`
		}{
			Name:      "describeCollection",
			Arguments: map[string]interface{}{"collectionId": "lakes"},
		},
	})
	require.NoError(t, err)
	require.False(t, result.IsError)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	assert.Equal(t, `{"id":"lakes"}`, text.Text)
}

func TestServerLoadReplacesTools(t *testing.T) {
	s := New("test", NewAPIClient("http://127.0.0.1:1", nil, 0))
	s.Load(loadToolsDoc(t))

	doc, err := openapi.ParseDocument([]byte(`openapi: 3.0.2
info:
  title: reduced
paths:
  /conformance:
    get:
      operationId: getConformance
`))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Load(doc))
	assert.Equal(t, []string{"getConformance"}, s.ToolNames())
}
