package notify

import (
	"context"
	"log/slog"

	"github.com/vyon/auth-service/internal/auth"
)

// LogNotifier records notifications in the log instead of delivering them.
// Only the kind and recipient are logged; Data may hold credentials.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LogNotifier{logger: logger}
}

// Notify logs n and always reports false.
func (l *LogNotifier) Notify(_ context.Context, n auth.Notification) bool {
	l.logger.Info("notification not delivered: no transport configured",
		"kind", n.Kind,
		"to", n.To,
	)
	return false
}
