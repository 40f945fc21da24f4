package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fastgeoapi/internal/config"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeConfiguration indicates the configuration was rejected at startup.
	ExitCodeConfiguration = 2
)

// envFile is the .env file read before the process environment is parsed.
var envFile string

// rootCmd represents the base command for the fastgeoapi application.
var rootCmd = &cobra.Command{
	Use:   "fastgeoapi",
	Short: "Authentication gate and MCP tool server in front of pygeoapi",
	Long: `fastgeoapi mounts a pygeoapi OGC API under a context path and protects it
with exactly one authentication scheme: a shared API key, JWT bearer tokens
checked against a JWKS, or an Open Policy Agent decision.

It can also expose the API's read operations as MCP tools, optionally behind
an OAuth authorization server for MCP clients.`,
	// Errors are printed by Execute so configuration problems can carry
	// their suggestions.
	SilenceUsage:  true,
	SilenceErrors: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "fastgeoapi version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		printError(rootCmd, err)
		os.Exit(getExitCode(err))
	}
}

func printError(cmd *cobra.Command, err error) {
	var ce *config.ConfigurationError
	if errors.As(err, &ce) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", ce.DetailedError())
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
}

// getExitCode determines the appropriate exit code based on the error type.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	var ce *config.ConfigurationError
	if errors.As(err, &ce) {
		return ExitCodeConfiguration
	}

	var ve config.ValidationErrors
	if errors.As(err, &ve) {
		return ExitCodeConfiguration
	}

	return ExitCodeError
}

// loadSettings reads the configuration the same way serve does.
func loadSettings() (*config.Config, error) {
	return config.Load(envFile)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "Path of the .env file to load before reading the environment")

	rootCmd.AddCommand(newVersionCmd())
}
