package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"fastgeoapi/internal/config"
	"fastgeoapi/internal/formatting"
	"fastgeoapi/internal/openapi"
)

var openapiOutput string

var openapiCmd = &cobra.Command{
	Use:   "openapi",
	Short: "Print the OpenAPI document as clients of the gate see it",
	Long: `Reads the pygeoapi OpenAPI document (PYGEOAPI_OPENAPI) and writes it as JSON
with the security schemes of the configured authentication scheme added, the
same way the document is rewritten when served under the API context.

The JSON document is written next to the YAML one (pygeoapi-openapi.yml
becomes pygeoapi-openapi.json) unless --output names another file. Use
--output - to print it instead.`,
	Args: cobra.NoArgs,
	RunE: runOpenAPI,
}

func runOpenAPI(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	doc, err := augmentedDocument(settings)
	if err != nil {
		return err
	}

	out := formatting.PrettyJSON(doc) + "\n"
	if openapiOutput == "-" {
		_, err = fmt.Fprint(cmd.OutOrStdout(), out)
		return err
	}

	target := openapiOutput
	if target == "" {
		target = jsonPath(settings.GeoAPI.OpenAPIPath)
	}
	if err := os.WriteFile(target, []byte(out), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", target)
	return nil
}

// jsonPath swaps the extension of the YAML document for .json.
func jsonPath(yamlPath string) string {
	return strings.TrimSuffix(yamlPath, filepath.Ext(yamlPath)) + ".json"
}

func augmentedDocument(settings *config.Config) (openapi.Document, error) {
	scheme, err := settings.Auth.ResolveScheme()
	if err != nil {
		return nil, err
	}
	doc, err := openapi.LoadDocument(settings.GeoAPI.OpenAPIPath)
	if err != nil {
		return nil, err
	}
	openapi.Augment(doc, openapi.SecuritySchemes(scheme, settings))
	return doc, nil
}

func init() {
	rootCmd.AddCommand(openapiCmd)

	openapiCmd.Flags().StringVarP(&openapiOutput, "output", "o", "", "Target file, or - for stdout (default: the OpenAPI path with a .json extension)")
}
