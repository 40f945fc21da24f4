// Package config loads fastgeoapi's configuration from the environment.
//
// Variables are read from the process environment, optionally seeded from a
// .env file. ENV_STATE selects a prefix: "dev" reads DEV_*, "prod" reads
// PROD_*, and an unset ENV_STATE reads the bare names. HOST and PORT are
// always read without a prefix.
//
// The three scheme flags API_KEY_ENABLED, JWKS_ENABLED and OPA_ENABLED are
// mutually exclusive. Config.Validate rejects more than one, and rejects an
// enabled scheme whose required parameters are missing, with a
// *ConfigurationError. The process must not start in that case.
package config
