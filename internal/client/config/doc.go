// Package config loads runtime configuration for the cloudvault CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the REST API
//	-t int      request timeout (seconds)
//
// # JSON schema
//
// Timeouts may be strings like "30s" or integer nanoseconds:
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "request_timeout": "30s"
//	}
package config
