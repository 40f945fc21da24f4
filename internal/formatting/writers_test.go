package formatting

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]OutputFormat{"": FormatTable, "TABLE": FormatTable, "json": FormatJSON, "yaml": FormatYAML} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("xml")
	assert.ErrorContains(t, err, "unsupported output format")
}

func TestWriteRows(t *testing.T) {
	rows := []Row{{Key: "HOST", Value: "0.0.0.0"}, {Key: "PORT", Value: "5000"}}

	var buf bytes.Buffer
	require.NoError(t, WriteRows(&buf, FormatTable, rows))
	assert.Contains(t, buf.String(), "HOST")
	assert.Contains(t, buf.String(), "0.0.0.0")

	buf.Reset()
	require.NoError(t, WriteRows(&buf, FormatJSON, rows))
	var obj map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &obj))
	assert.Equal(t, "5000", obj["PORT"])

	buf.Reset()
	require.NoError(t, WriteRows(&buf, FormatYAML, rows))
	obj = nil
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &obj))
	assert.Equal(t, "0.0.0.0", obj["HOST"])
}

func TestWriteTools(t *testing.T) {
	tools := []mcp.Tool{{
		Name:        "getFeatures",
		Description: "Features\n\nFetch features",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit":        map[string]interface{}{"type": "integer"},
				"collectionId": map[string]interface{}{"type": "string"},
			},
			Required: []string{"collectionId"},
		},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteTools(&buf, FormatTable, tools))
	out := buf.String()
	assert.Contains(t, out, "getFeatures")
	assert.Contains(t, out, "collectionId*, limit")
	assert.NotContains(t, out, "Fetch features")

	buf.Reset()
	require.NoError(t, WriteTools(&buf, FormatJSON, tools))
	var summaries []toolSummary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, []string{"collectionId", "limit"}, summaries[0].Arguments)

	buf.Reset()
	require.NoError(t, WriteTools(&buf, FormatTable, nil))
	assert.True(t, strings.Contains(buf.String(), "No tools found"))
}
