package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"fastgeoapi/internal/config"
	"fastgeoapi/internal/gate"
	"fastgeoapi/pkg/logging"
)

const (
	// DefaultReadHeaderTimeout is the default timeout for reading request headers.
	DefaultReadHeaderTimeout = 10 * time.Second
	// DefaultWriteTimeout is the default timeout for writing responses.
	DefaultWriteTimeout = 120 * time.Second
	// DefaultIdleTimeout is the default idle timeout for keepalive connections.
	DefaultIdleTimeout = 120 * time.Second
)

// Options are the parts the HTTP server routes to. Gate and API are
// required; MCP and OAuth are optional.
type Options struct {
	Config *config.Config
	Gate   *gate.Gate
	API    http.Handler

	// MCP serves the MCP endpoint. Without OAuth it sits behind Gate.
	MCP   http.Handler
	OAuth *OAuthProxy

	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// Server is the public HTTP listener.
type Server struct {
	httpServer *http.Server
	oauth      *OAuthProxy
}

// New assembles the routes and wraps them in request logging and CORS.
func New(opts Options) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              opts.Config.Addr(),
			Handler:           NewHandler(opts),
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
		},
		oauth: opts.OAuth,
	}
}

// NewHandler builds the routing tree:
//
//	<context>, <context>/...  gate -> reverse proxy
//	/mcp                      OAuth proxy or gate -> MCP tool server
//	/health                   liveness
//	/metrics                  Prometheus
func NewHandler(opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	protected := opts.Gate.Middleware(opts.API)
	apiContext := opts.Config.GeoAPI.Context
	mux.Handle(apiContext, protected)
	mux.Handle(apiContext+"/", protected)

	if opts.MCP != nil {
		if opts.OAuth != nil {
			opts.OAuth.Register(mux, opts.MCP)
		} else {
			mux.Handle(MCPPath, opts.Gate.Middleware(opts.MCP))
			logging.Info("server", "Protected %s with the %s gate", MCPPath, opts.Gate.Scheme())
		}
	}

	corsHandler := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowOriginFunc:  func(_ string) bool { return true },
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		ExposedHeaders: []string{
			"WWW-Authenticate",
			"Mcp-Session-Id",
		},
	})
	return corsHandler.Handler(requestLog(mux))
}

// ListenAndServe blocks until the server stops. A graceful Shutdown is not
// an error.
func (s *Server) ListenAndServe() error {
	logging.Info("server", "listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(l net.Listener) error {
	logging.Info("server", "listening on %s", l.Addr())
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then stops the OAuth proxy.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if oerr := s.oauth.Shutdown(ctx); oerr != nil && err == nil {
		err = oerr
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
