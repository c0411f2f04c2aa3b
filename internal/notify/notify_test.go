package notify

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"carrental/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBot struct {
	mock.Mock
}

func (m *mockBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

type mockMail struct {
	mock.Mock
}

func (m *mockMail) SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rest.Response), args.Error(1)
}

type staticUsers map[int64]*models.User

func (s staticUsers) GetUser(_ context.Context, id int64) (*models.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, errors.New("not found")
}

func TestRouterPicksFirstAcceptingSender(t *testing.T) {
	users := staticUsers{
		1: {ID: 1, TelegramID: 555, Email: "a@example.com"},
		2: {ID: 2, Email: "b@example.com", FirstName: "Bea"},
		3: {ID: 3},
	}
	bot := new(mockBot)
	mailer := new(mockMail)
	var logBuf bytes.Buffer
	logger := zerolog.New(&logBuf)

	router := NewRouter(users, &logger,
		NewTelegramSender(bot),
		NewEmailSender(mailer, "fleet@example.com", "Fleet"),
		NewLogSender(&logger),
	)
	ctx := context.Background()

	bot.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		msg, ok := c.(tgbotapi.MessageConfig)
		return ok && msg.ChatID == 555
	})).Return(tgbotapi.Message{}, nil).Once()
	channel, err := router.Deliver(ctx, &models.Notification{UserID: 1, Subject: "Hi", Body: "car is free"})
	require.NoError(t, err)
	assert.Equal(t, "telegram", channel)

	mailer.On("SendWithContext", ctx, mock.MatchedBy(func(m *mail.SGMailV3) bool {
		return m.Subject == "Receipt" && m.Personalizations[0].To[0].Address == "b@example.com"
	})).Return(&rest.Response{StatusCode: 202}, nil).Once()
	channel, err = router.Deliver(ctx, &models.Notification{UserID: 2, Subject: "Receipt", Body: "total"})
	require.NoError(t, err)
	assert.Equal(t, "email", channel)

	channel, err = router.Deliver(ctx, &models.Notification{UserID: 3, Subject: "x", Body: "y"})
	require.NoError(t, err)
	assert.Equal(t, "log", channel)
	assert.Contains(t, logBuf.String(), `"body":"y"`)

	bot.AssertExpectations(t)
	mailer.AssertExpectations(t)
}

func TestRouterErrors(t *testing.T) {
	logger := zerolog.Nop()
	mailer := new(mockMail)
	router := NewRouter(staticUsers{2: {ID: 2, Email: "b@example.com"}}, &logger,
		NewEmailSender(mailer, "fleet@example.com", "Fleet"))
	ctx := context.Background()

	_, err := router.Deliver(ctx, &models.Notification{UserID: 99})
	assert.Error(t, err)

	mailer.On("SendWithContext", ctx, mock.Anything).Return(&rest.Response{StatusCode: 401, Body: "bad key"}, nil).Once()
	channel, err := router.Deliver(ctx, &models.Notification{UserID: 2, Subject: "s", Body: "b"})
	assert.Equal(t, "email", channel)
	assert.ErrorContains(t, err, "status 401")

	noRoute := NewRouter(staticUsers{3: {ID: 3}}, &logger, NewEmailSender(mailer, "f@example.com", "F"))
	_, err = noRoute.Deliver(ctx, &models.Notification{UserID: 3})
	assert.ErrorIs(t, err, ErrNoChannel)
}
