package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes notifications to the log instead of delivering
// them. Used when no SMTP server is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the message and reports success.
func (n *LogNotifier) Notify(ctx context.Context, recipients []string, subject, htmlBody string) error {
	n.logger.Info().
		Strs("recipients", recipients).
		Str("subject", subject).
		Msg("notification (log only)")
	return nil
}
