package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"fastgeoapi/internal/config"
	"fastgeoapi/internal/formatting"
	"fastgeoapi/internal/gate"
)

var (
	tokenClientID     string
	tokenClientSecret string
	tokenScopes       []string
	tokenAudience     string
	tokenJSON         bool
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Fetch an access token with the client credentials grant",
	Long: `Requests an access token from the identity provider with the OAuth2 client
credentials grant and prints it, ready for an Authorization: Bearer header.

The token endpoint is OAUTH2_TOKEN_ENDPOINT, or the one discovered from
OIDC_WELL_KNOWN_ENDPOINT. Client credentials default to OIDC_CLIENT_ID and
OIDC_CLIENT_SECRET.`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func runToken(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, tokenTimeout(settings))
	defer cancel()

	httpClient := &http.Client{Timeout: tokenTimeout(settings)}
	ccfg, err := clientCredentialsConfig(ctx, settings, httpClient)
	if err != nil {
		return err
	}

	tok, err := ccfg.Token(context.WithValue(ctx, oauth2.HTTPClient, httpClient))
	if err != nil {
		return fmt.Errorf("failed to fetch token from %s: %w", ccfg.TokenURL, err)
	}

	out := cmd.OutOrStdout()
	if tokenJSON {
		_, err = fmt.Fprintln(out, formatting.PrettyJSON(tok))
		return err
	}
	_, err = fmt.Fprintln(out, tok.AccessToken)
	return err
}

func clientCredentialsConfig(ctx context.Context, settings *config.Config, httpClient *http.Client) (*clientcredentials.Config, error) {
	a := settings.Auth

	clientID := firstNonEmpty(tokenClientID, a.OIDCClientID)
	if clientID == "" {
		return nil, &config.ConfigurationError{
			Setting:     "OIDC_CLIENT_ID",
			Message:     "a client ID is required for the client credentials grant",
			Suggestions: []string{"set OIDC_CLIENT_ID or pass --client-id"},
		}
	}

	tokenURL := a.TokenEndpoint
	if tokenURL == "" && a.OIDCWellKnownEndpoint != "" {
		provider, err := gate.NewDiscovery(a.OIDCWellKnownEndpoint, httpClient).Provider(ctx)
		if err != nil {
			return nil, err
		}
		tokenURL = provider.Endpoint().TokenURL
	}
	if tokenURL == "" {
		return nil, &config.ConfigurationError{
			Setting:     "OAUTH2_TOKEN_ENDPOINT",
			Message:     "no token endpoint configured",
			Suggestions: []string{"set OAUTH2_TOKEN_ENDPOINT or OIDC_WELL_KNOWN_ENDPOINT"},
		}
	}

	ccfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: firstNonEmpty(tokenClientSecret, a.OIDCClientSecret),
		TokenURL:     tokenURL,
		Scopes:       tokenScopes,
	}
	if aud := firstNonEmpty(tokenAudience, a.Audience); aud != "" {
		ccfg.EndpointParams = map[string][]string{"audience": {aud}}
	}
	return ccfg, nil
}

func tokenTimeout(settings *config.Config) time.Duration {
	if settings.Auth.UpstreamTimeout > 0 {
		return settings.Auth.UpstreamTimeout
	}
	return config.DefaultUpstreamTimeout
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().StringVar(&tokenClientID, "client-id", "", "OAuth2 client ID (default OIDC_CLIENT_ID)")
	tokenCmd.Flags().StringVar(&tokenClientSecret, "client-secret", "", "OAuth2 client secret (default OIDC_CLIENT_SECRET)")
	tokenCmd.Flags().StringSliceVar(&tokenScopes, "scope", nil, "Scope to request, repeatable")
	tokenCmd.Flags().StringVar(&tokenAudience, "audience", "", "Audience parameter (default OAUTH2_AUDIENCE)")
	tokenCmd.Flags().BoolVar(&tokenJSON, "json", false, "Print the full token response as JSON")
}
