package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementAuthEvents   = "auth_events"
	MeasurementSessions     = "sessions"
	MeasurementHTTPRequests = "http_requests"
)

// RecordAuthEvent counts one authentication event, e.g. ("login", "failure").
// It satisfies auth.EventRecorder.
func (c *Client) RecordAuthEvent(event, outcome string) {
	c.WritePoint(MeasurementAuthEvents,
		map[string]string{
			"event":   event,
			"outcome": outcome,
		},
		map[string]any{
			"count": 1,
		},
	)
}

// WriteSessionStats records the janitor's view of the session ledger.
func (c *Client) WriteSessionStats(live, purgedSessions, purgedRedemptions int64) {
	c.WritePoint(MeasurementSessions,
		nil,
		map[string]any{
			"live":               live,
			"purged":             purgedSessions,
			"purged_redemptions": purgedRedemptions,
		},
	)
}

// WriteHTTPRequest records the latency of one API request. route is the
// matched pattern (e.g. "/users/{id}"), never the raw path.
func (c *Client) WriteHTTPRequest(method, route string, status int, duration time.Duration) {
	c.WritePoint(MeasurementHTTPRequests,
		map[string]string{
			"method": method,
			"route":  route,
			"class":  strconv.Itoa(status/100) + "xx", //nolint:mnd // HTTP status class
		},
		map[string]any{
			"status":      status,
			"duration_ms": float64(duration.Microseconds()) / 1000, //nolint:mnd // µs to ms
		},
	)
}

// WritePoint writes a point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a point with an explicit timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
