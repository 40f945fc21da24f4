package cmd

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"fastgeoapi/internal/formatting"
	"fastgeoapi/internal/mcpserver"
	"fastgeoapi/internal/openapi"
)

var toolsOutput string

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the MCP tools derived from the OpenAPI document",
	Long: `Builds the MCP tool set from the pygeoapi OpenAPI document (PYGEOAPI_OPENAPI)
the same way serve does with FASTGEOAPI_WITH_MCP=true, and lists each tool
with its arguments. Required arguments are marked with *.`,
	Args: cobra.NoArgs,
	RunE: runTools,
}

func runTools(cmd *cobra.Command, args []string) error {
	format, err := formatting.ParseFormat(toolsOutput)
	if err != nil {
		return err
	}
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	doc, err := openapi.LoadDocument(settings.GeoAPI.OpenAPIPath)
	if err != nil {
		return err
	}
	return formatting.WriteTools(cmd.OutOrStdout(), format, toolsOf(doc))
}

func toolsOf(doc openapi.Document) []mcp.Tool {
	serverTools := mcpserver.BuildTools(doc, nil)
	tools := make([]mcp.Tool, 0, len(serverTools))
	for _, st := range serverTools {
		tools = append(tools, st.Tool)
	}
	return tools
}

func init() {
	rootCmd.AddCommand(toolsCmd)

	toolsCmd.Flags().StringVarP(&toolsOutput, "output", "o", "table", "Output format (table, json, yaml)")
}
