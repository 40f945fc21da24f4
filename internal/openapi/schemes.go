package openapi

import (
	"fastgeoapi/internal/config"
	"fastgeoapi/internal/gate"
)

// SecurityScheme is one OpenAPI 3.0 security scheme object.
type SecurityScheme map[string]any

// NamedScheme pairs a scheme with its key under components.securitySchemes.
type NamedScheme struct {
	Name   string
	Scheme SecurityScheme
}

// SecuritySchemes describes how clients authenticate under the active gate
// scheme. Open access yields none.
func SecuritySchemes(scheme config.Scheme, cfg *config.Config) []NamedScheme {
	base := "pygeoapi " + cfg.GeoAPI.SecurityScheme

	switch scheme {
	case config.SchemeAPIKey:
		return []NamedScheme{{
			Name: base,
			Scheme: SecurityScheme{
				"type": "apiKey",
				"name": gate.APIKeyHeader,
				"in":   "header",
			},
		}}
	case config.SchemeJWKS:
		schemes := []NamedScheme{}
		if cfg.Auth.TokenEndpoint != "" {
			schemes = append(schemes, NamedScheme{
				Name: base,
				Scheme: SecurityScheme{
					"type": "oauth2",
					"flows": map[string]any{
						"clientCredentials": map[string]any{
							"tokenUrl": cfg.Auth.TokenEndpoint,
							"scopes":   map[string]any{},
						},
					},
				},
			})
		}
		bearerName := base
		if len(schemes) > 0 {
			bearerName = base + " bearer"
		}
		schemes = append(schemes, NamedScheme{
			Name: bearerName,
			Scheme: SecurityScheme{
				"type":         "http",
				"scheme":       "bearer",
				"bearerFormat": "JWT",
			},
		})
		return schemes
	case config.SchemeOPA:
		if cfg.Auth.OIDCWellKnownEndpoint == "" {
			return nil
		}
		return []NamedScheme{{
			Name: base,
			Scheme: SecurityScheme{
				"type":             "openIdConnect",
				"openIdConnectUrl": cfg.Auth.OIDCWellKnownEndpoint,
			},
		}}
	default:
		return nil
	}
}
