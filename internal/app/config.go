package app

import (
	"fastgeoapi/internal/config"
)

// Config holds the application configuration
type Config struct {
	// Debug forces debug logging regardless of LOG_LEVEL.
	Debug bool

	// EnvFile is the dotenv file read before the environment (optional).
	EnvFile string

	// LogDir, when set, additionally writes logs to a file in this directory.
	LogDir string

	// Version is reported to MCP clients.
	Version string

	// Settings is the loaded service configuration. When nil it is loaded
	// from EnvFile and the environment.
	Settings *config.Config
}

// NewConfig creates a new application configuration
func NewConfig(debug bool, envFile, logDir, version string) *Config {
	return &Config{
		Debug:   debug,
		EnvFile: envFile,
		LogDir:  logDir,
		Version: version,
	}
}
