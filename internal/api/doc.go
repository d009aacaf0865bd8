// Package api implements the HTTP REST API for the Vyon auth service.
//
// This package provides:
//   - Account endpoints (register, login, refresh, logout, password flows)
//   - Directory endpoints for users, organizations and roles
//   - Bearer authentication backed by the session ledger
//   - Middleware stack (request ID, real IP, logging, recovery, CORS)
//   - Asynchronous audit trail and runtime metrics
//
// # Architecture
//
// Handlers are thin. They decode and validate the request body, resolve
// the caller through auth.Gate, and delegate to auth.Service. Every
// business failure comes back as an *auth.Error whose Kind is mapped to an
// HTTP status in exactly one place (writeServiceError).
//
// # Security
//
// Protected routes require "Authorization: Bearer <access token>". A token
// is only honoured while its session is live, so logout and password
// changes take effect on the next request.
//
// # Graceful Degradation
//
// MQTT and InfluxDB are optional. Without them notifications fall back to
// the log and request metrics are not recorded; every endpoint still works.
package api
