package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"fastgeoapi/internal/config"
	"fastgeoapi/pkg/logging"
)

// Application represents a bootstrapped fastgeoapi instance.
//
// The Application follows a two-phase initialization pattern:
//  1. Bootstrap phase: Load configuration, initialize logging, wire services
//  2. Execution phase: Serve until interrupted
//
// Example usage:
//
//	cfg := app.NewConfig(false, ".env", "", version)
//	application, err := app.NewApplication(cfg)
//	if err != nil {
//	    return err
//	}
//	return application.Run(ctx)
type Application struct {
	config   *Config
	services *Services
	logFile  io.Closer
}

// NewApplication loads the configuration (unless cfg.Settings is already
// set), initializes logging and wires all services. Configuration problems
// are returned as *config.ConfigurationError.
func NewApplication(cfg *Config) (*Application, error) {
	// Minimal logging until LOG_LEVEL is known.
	logging.InitForCLI(logging.LevelInfo, os.Stdout)

	if cfg.Settings == nil {
		settings, err := config.Load(cfg.EnvFile)
		if err != nil {
			return nil, err
		}
		cfg.Settings = settings
	}
	settings := cfg.Settings

	logFile, err := initLogging(cfg, settings.Log)
	if err != nil {
		return nil, err
	}

	services, err := InitializeServices(settings, cfg.Version)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		if logFile != nil {
			logFile.Close()
		}
		return nil, err
	}

	scheme, _ := settings.Auth.ResolveScheme()
	logging.Info("Bootstrap", "fastgeoapi %s: scheme=%s context=%s upstream=%s mcp=%t",
		cfg.Version, scheme, settings.GeoAPI.Context, settings.GeoAPI.Upstream, settings.MCP.Enabled)

	app := &Application{config: cfg, services: services}
	if logFile != nil {
		app.logFile = logFile
	}
	return app, nil
}

func initLogging(cfg *Config, lc config.LogConfig) (*os.File, error) {
	level, err := logging.ParseLevel(lc.Level)
	if err != nil {
		return nil, &config.ConfigurationError{Setting: "LOG_LEVEL", Message: err.Error()}
	}
	if cfg.Debug {
		level = logging.LevelDebug
	}
	format, err := logging.ParseFormat(lc.Format)
	if err != nil {
		return nil, &config.ConfigurationError{Setting: "LOG_FORMAT", Message: err.Error()}
	}

	dir := lc.Path
	if cfg.LogDir != "" {
		dir = cfg.LogDir
	}
	var output io.Writer = os.Stdout
	var file *os.File
	if dir != "" {
		name := lc.Filename
		if name == "" {
			name = config.DefaultLogFilename
		}
		file, err = logging.OpenFile(dir, name)
		if err != nil {
			return nil, fmt.Errorf("failed to set up file logging: %w", err)
		}
		output = io.MultiWriter(os.Stdout, file)
	}

	logging.Init(level, format, output)
	return file, nil
}

// Services exposes the wired components.
func (a *Application) Services() *Services {
	return a.services
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts
// down gracefully.
func (a *Application) Run(ctx context.Context) error {
	if a.logFile != nil {
		defer a.logFile.Close()
	}
	return runServer(ctx, a.services)
}
