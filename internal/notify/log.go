package notify

import (
	"context"

	"carrental/internal/models"

	"github.com/rs/zerolog"
)

// LogSender writes notifications to the log. It is the last resort and accepts everyone.
type LogSender struct {
	logger *zerolog.Logger
}

func NewLogSender(logger *zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Channel() string { return "log" }

func (s *LogSender) Accepts(*models.User) bool { return true }

func (s *LogSender) Send(_ context.Context, user *models.User, subject, body string) error {
	s.logger.Info().
		Int64("user_id", user.ID).
		Str("subject", subject).
		Str("body", body).
		Msg("Notification")
	return nil
}
