// Package mqtt provides MQTT client connectivity for the auth service.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The auth service does not send email itself. It publishes notification
// jobs (password reset links, activation notices, organization welcomes)
// to the broker, and a separate mail gateway subscribes and delivers them.
//
//	Auth Service → MQTT Broker → Mail Gateway → SMTP
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Notification payloads carry reset links and temporary passwords;
//     restrict the notify topics with broker ACLs
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(client.Topics().NotifyEmail("password_reset"), job)
package mqtt
