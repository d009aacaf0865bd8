// Package config handles loading and validating VYON auth service configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with VYON_* environment variables
//   - Validation of required fields and production safety rules
//
// Security Considerations:
//   - The JWT secret, bootstrap admin password and broker credentials should
//     be set via environment variables
//   - Production rejects exposed reset tokens and wildcard CORS origins
//
// The loaded Config is read once at startup and passed by value or pointer
// into the components that need it. Nothing reads it from package state.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.AccessTokenTTL())
package config
