package outbox

import (
	"context"
	"log/slog"
)

// LogMailer writes reset links to the log instead of sending mail. It is the
// default for local installs.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) SendPasswordReset(_ context.Context, email, link string) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("password reset link", "email", email, "link", link)
	return nil
}
