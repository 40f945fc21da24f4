// Package logging provides subsystem-tagged structured logging for
// fastgeoapi on top of log/slog.
//
// Every entry carries a "subsystem" attribute (for example "gate", "jwks",
// "proxy", "mcp") so that decisions made by different components can be
// filtered apart. Errors are attached as an "error" attribute.
//
// # Usage
//
//	logging.Init(logging.LevelInfo, logging.FormatJSON, os.Stdout)
//	logging.Info("gate", "active scheme: %s", scheme)
//	logging.Error("jwks", err, "refresh failed for %s", url)
//
// Libraries that accept a *slog.Logger get one through Logger(subsystem).
package logging
