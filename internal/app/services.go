package app

import (
	"fmt"
	"net"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"fastgeoapi/internal/config"
	"fastgeoapi/internal/gate"
	"fastgeoapi/internal/geoapi"
	"fastgeoapi/internal/mcpserver"
	"fastgeoapi/internal/openapi"
	"fastgeoapi/internal/server"
	"fastgeoapi/pkg/logging"
)

// openapiUpstreamPath is where pygeoapi serves its OpenAPI document.
const openapiUpstreamPath = "/openapi"

// Services holds every component of a running instance.
//
// Dependencies are created in order:
//  1. Metrics registry and, with MCP enabled, the internal bypass key
//  2. The authentication gate
//  3. The reverse proxy, augmenting the OpenAPI document for the gate's scheme
//  4. The MCP tool server, its document watcher and OAuth proxy (optional)
//  5. The HTTP server routing to all of the above
type Services struct {
	Settings *config.Config
	Registry *prometheus.Registry

	Gate  *gate.Gate
	Proxy *geoapi.Proxy

	// Set only when MCP is enabled.
	InternalKey *gate.InternalKey
	MCP         *mcpserver.Server
	Watcher     *openapi.Watcher
	OAuth       *server.OAuthProxy

	Server *server.Server
}

// InitializeServices wires the components for settings. Missing scheme
// parameters and an unusable OAuth proxy setup fail here, before anything
// listens.
func InitializeServices(settings *config.Config, version string) (*Services, error) {
	s := &Services{
		Settings: settings,
		Registry: prometheus.NewRegistry(),
	}
	s.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	gateOpts := []gate.Option{gate.WithMetrics(gate.NewMetrics(s.Registry))}
	if settings.MCP.Enabled {
		key, err := gate.NewInternalKey()
		if err != nil {
			return nil, err
		}
		s.InternalKey = key
		gateOpts = append(gateOpts, gate.WithInternalKey(key))
	}

	g, err := gate.New(settings, gateOpts...)
	if err != nil {
		return nil, err
	}
	s.Gate = g

	schemes := openapi.SecuritySchemes(g.Scheme(), settings)
	proxy, err := geoapi.NewProxy(settings.GeoAPI,
		geoapi.WithResponseModifier(openapi.ResponseModifier(openapiUpstreamPath, schemes)))
	if err != nil {
		return nil, fmt.Errorf("failed to create reverse proxy: %w", err)
	}
	s.Proxy = proxy

	if settings.MCP.Enabled {
		if err := s.initializeMCP(version); err != nil {
			return nil, err
		}
	}

	opts := server.Options{
		Config:   settings,
		Gate:     g,
		API:      proxy,
		OAuth:    s.OAuth,
		Gatherer: s.Registry,
	}
	if s.MCP != nil {
		opts.MCP = s.MCP.Handler()
	}
	s.Server = server.New(opts)
	return s, nil
}

func (s *Services) initializeMCP(version string) error {
	settings := s.Settings
	if !servesLoopback(settings.Host) {
		logging.Warn("App", "HOST %s does not include loopback; MCP tool calls cannot reach the API", settings.Host)
	}

	client := mcpserver.NewAPIClient(
		mcpserver.LoopbackBaseURL(settings.Port, settings.GeoAPI.Context),
		s.InternalKey,
		mcpserver.DefaultTimeout,
	)
	s.MCP = mcpserver.New(version, client)

	path := settings.GeoAPI.OpenAPIPath
	if doc, err := openapi.LoadDocument(path); err != nil {
		logging.Warn("App", "MCP starts without tools until %s is readable: %v", path, err)
	} else {
		s.MCP.Load(doc)
	}
	s.Watcher = openapi.NewWatcher(path, 0, func(doc openapi.Document) {
		s.MCP.Load(doc)
	})

	if settings.OAuthProxyEnabled() {
		oauthProxy, err := server.NewOAuthProxy(settings)
		if err != nil {
			return &config.ConfigurationError{
				Setting: "OIDC_WELL_KNOWN_ENDPOINT",
				Message: "the MCP OAuth proxy could not be created",
				Err:     err,
			}
		}
		s.OAuth = oauthProxy
	}
	return nil
}

// servesLoopback reports whether a listener on host accepts loopback
// connections.
func servesLoopback(host string) bool {
	switch host {
	case "", "0.0.0.0", "::", "localhost":
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
