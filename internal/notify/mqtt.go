package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/vyon/auth-service/internal/auth"
	"github.com/vyon/auth-service/internal/infrastructure/mqtt"
)

// Publisher is the subset of the MQTT client the notifier needs.
type Publisher interface {
	PublishJSON(topic string, v any) error
	Topics() mqtt.Topics
}

// job is the wire format consumed by the mail gateway.
type job struct {
	Kind      auth.NotificationKind `json:"kind"`
	To        string                `json:"to"`
	Name      string                `json:"name,omitempty"`
	Data      map[string]string     `json:"data,omitempty"`
	QueuedAt  string                `json:"queued_at"`
	Publisher string                `json:"publisher"`
}

// MQTTNotifier publishes notification jobs to the broker.
type MQTTNotifier struct {
	pub    Publisher
	source string
	logger *slog.Logger
	now    func() time.Time
}

// NewMQTTNotifier creates a notifier publishing through pub. source is
// stamped on every job so the gateway can tell services apart.
func NewMQTTNotifier(pub Publisher, source string, logger *slog.Logger) *MQTTNotifier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MQTTNotifier{
		pub:    pub,
		source: source,
		logger: logger,
		now:    time.Now,
	}
}

// Notify publishes n. It reports false when the job could not be handed to
// the broker.
func (m *MQTTNotifier) Notify(ctx context.Context, n auth.Notification) bool {
	if err := ctx.Err(); err != nil {
		m.logger.Warn("notification dropped", "kind", n.Kind, "error", err)
		return false
	}

	topic := m.pub.Topics().NotifyEmail(string(n.Kind))
	err := m.pub.PublishJSON(topic, job{
		Kind:      n.Kind,
		To:        n.To,
		Name:      n.Name,
		Data:      n.Data,
		QueuedAt:  m.now().UTC().Format(time.RFC3339),
		Publisher: m.source,
	})
	if err != nil {
		m.logger.Warn("notification publish failed",
			"kind", n.Kind,
			"topic", topic,
			"error", err,
		)
		return false
	}

	m.logger.Debug("notification queued", "kind", n.Kind, "topic", topic)
	return true
}
