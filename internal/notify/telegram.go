package notify

import (
	"context"
	"fmt"

	"carrental/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotClient is the part of *tgbotapi.BotAPI the sender uses.
type BotClient interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramSender struct {
	bot BotClient
}

func NewTelegramSender(bot BotClient) *TelegramSender {
	return &TelegramSender{bot: bot}
}

// NewTelegramBot connects to the Bot API with the given token.
func NewTelegramBot(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return bot, nil
}

func (s *TelegramSender) Channel() string { return "telegram" }

func (s *TelegramSender) Accepts(user *models.User) bool {
	return user.TelegramID != 0
}

func (s *TelegramSender) Send(_ context.Context, user *models.User, subject, body string) error {
	text := body
	if subject != "" {
		text = "*" + tgbotapi.EscapeText(tgbotapi.ModeMarkdown, subject) + "*\n" +
			tgbotapi.EscapeText(tgbotapi.ModeMarkdown, body)
	}
	msg := tgbotapi.NewMessage(user.TelegramID, text)
	if subject != "" {
		msg.ParseMode = tgbotapi.ModeMarkdown
	}
	_, err := s.bot.Send(msg)
	return err
}
