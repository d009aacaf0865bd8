package mqtt

import "fmt"

// DefaultTopicPrefix is used when the config leaves topic_prefix empty.
const DefaultTopicPrefix = "vyon"

// Topics builds the auth service's MQTT topics under a deployment prefix.
//
//	topics := mqtt.NewTopics("vyon")
//	topics.NotifyEmail("password_reset")
//	// Returns: "vyon/notify/email/password_reset"
type Topics struct {
	prefix string
}

// NewTopics returns a builder for prefix.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the topic root.
func (t Topics) Prefix() string {
	return t.prefix
}

// ServiceStatus returns the retained online/offline status topic.
//
// Example: vyon/auth/status
func (t Topics) ServiceStatus() string {
	return fmt.Sprintf("%s/auth/status", t.prefix)
}

// NotifyEmail returns the topic a mail gateway consumes for one template.
//
// Example: vyon/notify/email/account_activated
func (t Topics) NotifyEmail(kind string) string {
	return fmt.Sprintf("%s/notify/email/%s", t.prefix, kind)
}

// AllNotifications returns a pattern matching every notification job.
//
// Pattern: vyon/notify/email/+
func (t Topics) AllNotifications() string {
	return fmt.Sprintf("%s/notify/email/+", t.prefix)
}
