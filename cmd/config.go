package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"fastgeoapi/internal/config"
	"fastgeoapi/internal/formatting"
)

var configOutput string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the resolved configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the configuration serve would start with",
	Long: `Loads and validates the configuration exactly as serve does and prints the
resolved values. Secrets are masked.

Validation failures exit with code 2.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	format, err := formatting.ParseFormat(configOutput)
	if err != nil {
		return err
	}
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	rows, err := settingsRows(settings)
	if err != nil {
		return err
	}
	return formatting.WriteRows(cmd.OutOrStdout(), format, rows)
}

// settingsRows lists settings under their environment names, without the
// ENV_STATE prefix.
func settingsRows(c *config.Config) ([]formatting.Row, error) {
	scheme, err := c.Auth.ResolveScheme()
	if err != nil {
		return nil, err
	}

	a := c.Auth
	g := c.GeoAPI
	rows := []formatting.Row{
		{Key: "ENV_STATE", Value: c.EnvState},
		{Key: "HOST", Value: c.Host},
		{Key: "PORT", Value: strconv.Itoa(c.Port)},
		{Key: "ROOT_PATH", Value: c.RootPath},
		{Key: "AUTH_SCHEME", Value: string(scheme)},
		{Key: "LOG_LEVEL", Value: c.Log.Level},
		{Key: "LOG_FORMAT", Value: c.Log.Format},
		{Key: "LOG_PATH", Value: c.Log.Path},
		{Key: "FASTGEOAPI_CONTEXT", Value: g.Context},
		{Key: "FASTGEOAPI_REVERSE_PROXY", Value: strconv.FormatBool(g.ReverseProxy)},
		{Key: "PYGEOAPI_UPSTREAM", Value: g.Upstream},
		{Key: "PYGEOAPI_BASEURL", Value: g.BaseURL},
		{Key: "PYGEOAPI_CONFIG", Value: g.ConfigPath},
		{Key: "PYGEOAPI_OPENAPI", Value: g.OpenAPIPath},
		{Key: "PYGEOAPI_SECURITY_SCHEME", Value: g.SecurityScheme},
	}

	switch scheme {
	case config.SchemeAPIKey:
		rows = append(rows, formatting.Row{Key: "PYGEOAPI_KEY_GLOBAL", Value: mask(a.GlobalAPIKey)})
	case config.SchemeJWKS:
		rows = append(rows,
			formatting.Row{Key: "OAUTH2_JWKS_ENDPOINT", Value: a.JWKSEndpoint},
			formatting.Row{Key: "OAUTH2_TOKEN_ENDPOINT", Value: a.TokenEndpoint},
			formatting.Row{Key: "OAUTH2_AUDIENCE", Value: a.Audience},
			formatting.Row{Key: "OAUTH2_ISSUER", Value: a.Issuer},
			formatting.Row{Key: "OAUTH2_OPAQUE_TOKENS_ENABLED", Value: strconv.FormatBool(a.OpaqueTokensEnabled)},
			formatting.Row{Key: "JWKS_CACHE_TTL", Value: a.JWKSCacheTTL.String()},
		)
	case config.SchemeOPA:
		rows = append(rows,
			formatting.Row{Key: "OPA_URL", Value: a.OPAURL},
			formatting.Row{Key: "OPA_POLICY_PATH", Value: a.OPAPolicyPath},
			formatting.Row{Key: "OPA_CACHE_TTL", Value: a.OPACacheTTL.String()},
		)
	}
	if scheme != config.SchemeNone && scheme != config.SchemeAPIKey {
		rows = append(rows,
			formatting.Row{Key: "OIDC_WELL_KNOWN_ENDPOINT", Value: a.OIDCWellKnownEndpoint},
			formatting.Row{Key: "OIDC_CLIENT_ID", Value: a.OIDCClientID},
			formatting.Row{Key: "OIDC_CLIENT_SECRET", Value: mask(a.OIDCClientSecret)},
			formatting.Row{Key: "AUTH_UPSTREAM_TIMEOUT", Value: a.UpstreamTimeout.String()},
		)
	}

	rows = append(rows, formatting.Row{Key: "FASTGEOAPI_WITH_MCP", Value: strconv.FormatBool(c.MCP.Enabled)})
	if c.MCP.Enabled {
		rows = append(rows,
			formatting.Row{Key: "APP_URI", Value: c.MCP.AppURI},
			formatting.Row{Key: "MCP_OAUTH_PROXY", Value: strconv.FormatBool(c.OAuthProxyEnabled())},
		)
	}
	return rows, nil
}

// mask hides all but the last two characters of short secrets and all but
// the last four of longer ones.
func mask(secret string) string {
	switch n := len(secret); {
	case n == 0:
		return ""
	case n <= 8:
		return fmt.Sprintf("****%s", secret[n-min(2, n/2):])
	default:
		return "****" + secret[n-4:]
	}
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)

	configShowCmd.Flags().StringVarP(&configOutput, "output", "o", "table", "Output format (table, json, yaml)")
}
