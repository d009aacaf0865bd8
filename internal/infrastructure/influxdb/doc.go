// Package influxdb provides InfluxDB connectivity for the auth service.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, metric writing, and health monitoring.
//
// # Purpose
//
// The service records operational counters, not account data:
//   - auth_events: one point per login, refresh, logout or reset attempt,
//     tagged with the event name and its outcome
//   - sessions: live session count and janitor purge totals
//   - http_requests: request latency by route and status class
//
// No point ever carries an email, username, token or password.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.RecordAuthEvent("login", "success")
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes. Every write
// method is a no-op on a nil or closed client.
package influxdb
