// Package config handles configuration loading for dream-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (chosen by extension),
// with environment variable expansion, DREAMS_* overrides and defaults from
// Default.
//
// # Configuration File
//
// ResolvePath picks the file in this order:
//
//  1. --config flag
//  2. DREAMS_CONFIG environment variable
//  3. ./config.yaml or ./config.toml
//  4. ~/.config/dreams/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  platform_jwt_secret: "${SUPABASE_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to "".
//
// # Overrides
//
// These variables, when set, replace the file value after expansion:
//
//	DREAMS_PLATFORM_JWT_SECRET  auth.platform_jwt_secret
//	DREAMS_PLATFORM_JWKS_URL    auth.platform_jwks_url
//	DREAMS_LOCAL_JWT_SECRET     auth.local_jwt_secret
//	DREAMS_DB_PATH              database.path
//	DREAMS_DB_DRIVER            database.driver
//	DREAMS_ENV                  server.environment
//	DREAMS_HTTP_ADDR            server.http_addr
//	DREAMS_LOG_LEVEL            logging.level
//
// # Secrets
//
// Signing secrets are not required to load. A missing secret is reported by
// Warnings at startup and surfaces as a server error on the first request
// that needs it.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	auth:
//	  local_token_ttl: "24h"
//	  leeway: "30s"
//	generation:
//	  video:
//	    timeout: "30s"
package config
