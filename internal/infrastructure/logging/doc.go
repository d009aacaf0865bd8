// Package logging provides structured logging for the VYON auth service.
//
// It wraps log/slog so every record carries the service name and build
// version. Output is JSON in production and text in development.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// # Security
//
// Never log passwords, password digests, or raw tokens. Log user IDs and
// token IDs (jti) instead.
package logging
