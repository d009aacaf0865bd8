// Package notify delivers outbound account notifications.
//
// The auth service never talks SMTP itself. MQTTNotifier publishes each
// notification as a JSON job on <prefix>/notify/email/<kind>, where a mail
// gateway picks it up. LogNotifier is the fallback when no broker is
// configured: it records that a notification would have been sent and
// reports it as undelivered.
//
// Both implement auth.Notifier and never return errors to the caller. A
// failed delivery is logged and reported as false.
package notify
