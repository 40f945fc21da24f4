package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"fastgeoapi/internal/app"
)

// serveDebug forces debug logging regardless of LOG_LEVEL.
var serveDebug bool

// serveLogDir overrides LOG_PATH.
var serveLogDir string

// serveCmd defines the serve command structure.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the protected OGC API",
	Long: `Starts the HTTP server. The pygeoapi instance at PYGEOAPI_UPSTREAM is mounted
under FASTGEOAPI_CONTEXT (default /geoapi) behind the configured
authentication scheme.

Configuration is read from the environment. Variables in the file given by
--env-file are loaded first without overriding variables already set. When
ENV_STATE is dev or prod, every variable except HOST and PORT is read with
the DEV_ or PROD_ prefix.

With FASTGEOAPI_WITH_MCP=true the read operations of the OpenAPI document at
PYGEOAPI_OPENAPI are exposed as MCP tools on /mcp. The tool set is rebuilt
whenever that document changes.

The process stops gracefully on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// runServe is the main entry point for the serve command
func runServe(cmd *cobra.Command, args []string) error {
	cfg := app.NewConfig(serveDebug, envFile, serveLogDir, GetVersion())

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().StringVar(&serveLogDir, "log-dir", "", "Directory for a log file in addition to stdout (overrides LOG_PATH)")
}
