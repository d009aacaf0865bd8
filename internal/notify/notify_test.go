package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyon/auth-service/internal/auth"
	"github.com/vyon/auth-service/internal/infrastructure/mqtt"
)

type published struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	topics mqtt.Topics
	sent   []published
	err    error
}

func (f *fakePublisher) PublishJSON(topic string, v any) error {
	if f.err != nil {
		return f.err
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.sent = append(f.sent, published{topic: topic, payload: payload})
	return nil
}

func (f *fakePublisher) Topics() mqtt.Topics { return f.topics }

func resetNotification() auth.Notification {
	return auth.Notification{
		Kind: auth.NotifyPasswordReset,
		To:   "asha@example.com",
		Name: "Asha",
		Data: map[string]string{"reset_url": "https://app.example/reset?token=abc"},
	}
}

func TestMQTTNotifier_PublishesJob(t *testing.T) {
	pub := &fakePublisher{topics: mqtt.NewTopics("vyon")}
	n := NewMQTTNotifier(pub, "vyon-auth", nil)
	n.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	ok := n.Notify(t.Context(), resetNotification())
	require.True(t, ok)
	require.Len(t, pub.sent, 1)
	assert.Equal(t, "vyon/notify/email/password_reset", pub.sent[0].topic)

	var got map[string]any
	require.NoError(t, json.Unmarshal(pub.sent[0].payload, &got))
	assert.Equal(t, "password_reset", got["kind"])
	assert.Equal(t, "asha@example.com", got["to"])
	assert.Equal(t, "Asha", got["name"])
	assert.Equal(t, "2026-01-02T03:04:05Z", got["queued_at"])
	assert.Equal(t, "vyon-auth", got["publisher"])
	assert.Equal(t, map[string]any{"reset_url": "https://app.example/reset?token=abc"}, got["data"])
}

func TestMQTTNotifier_TopicPerKind(t *testing.T) {
	pub := &fakePublisher{topics: mqtt.NewTopics("staging")}
	n := NewMQTTNotifier(pub, "vyon-auth", nil)

	for _, kind := range []auth.NotificationKind{auth.NotifyAccountActivated, auth.NotifyOrganizationWelcome} {
		require.True(t, n.Notify(t.Context(), auth.Notification{Kind: kind, To: "x@example.com"}))
	}

	require.Len(t, pub.sent, 2)
	assert.Equal(t, "staging/notify/email/account_activated", pub.sent[0].topic)
	assert.Equal(t, "staging/notify/email/organization_welcome", pub.sent[1].topic)
}

func TestMQTTNotifier_PublishFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	pub := &fakePublisher{topics: mqtt.NewTopics("vyon"), err: mqtt.ErrNotConnected}

	ok := NewMQTTNotifier(pub, "vyon-auth", logger).Notify(t.Context(), resetNotification())

	assert.False(t, ok)
	assert.Contains(t, buf.String(), "notification publish failed")
	assert.NotContains(t, buf.String(), "token=abc")
}

func TestMQTTNotifier_CancelledContext(t *testing.T) {
	pub := &fakePublisher{topics: mqtt.NewTopics("vyon")}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok := NewMQTTNotifier(pub, "vyon-auth", nil).Notify(ctx, resetNotification())

	assert.False(t, ok)
	assert.Empty(t, pub.sent)
}

func TestMQTTNotifier_DisconnectedClient(t *testing.T) {
	// A never-connected client still satisfies Publisher and fails cleanly.
	var client mqtt.Client
	ok := NewMQTTNotifier(&client, "vyon-auth", nil).Notify(t.Context(), resetNotification())
	assert.False(t, ok)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	ok := NewLogNotifier(logger).Notify(t.Context(), resetNotification())

	assert.False(t, ok)
	assert.Contains(t, buf.String(), "asha@example.com")
	assert.Contains(t, buf.String(), "password_reset")
	assert.NotContains(t, buf.String(), "token=abc")
}

func TestNotifiersSatisfyInterface(t *testing.T) {
	var _ auth.Notifier = (*MQTTNotifier)(nil)
	var _ auth.Notifier = (*LogNotifier)(nil)
}
