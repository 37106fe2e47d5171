// Package config handles configuration loading for verdin-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from VERDIN_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/verdin/gateway.yaml
//  3. ~/.config/verdin/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	gemini:
//	  api_key: "${GEMINI_API_KEY}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	replies:
//	  rate_limit_window: "60s"
//	  history_retention: "24h"
//	  staleness_window: "5m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Sections
//
// whatsapp (device store directory), gemini (API key, model, generation
// parameters, request timeout), sessions (capacity, credential retries,
// restart timing), replies (history and rate-limit knobs), typing (delay
// bounds), logging (level, format).
package config
