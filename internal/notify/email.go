package notify

import (
	"context"
	"fmt"

	"carrental/internal/models"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// MailClient is the part of *sendgrid.Client the sender uses.
type MailClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

type EmailSender struct {
	client    MailClient
	fromEmail string
	fromName  string
}

func NewSendGridClient(apiKey string) *sendgrid.Client {
	return sendgrid.NewSendClient(apiKey)
}

func NewEmailSender(client MailClient, fromEmail, fromName string) *EmailSender {
	return &EmailSender{client: client, fromEmail: fromEmail, fromName: fromName}
}

func (s *EmailSender) Channel() string { return "email" }

func (s *EmailSender) Accepts(user *models.User) bool {
	return user.Email != ""
}

func (s *EmailSender) Send(ctx context.Context, user *models.User, subject, body string) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(user.FullName(), user.Email)
	message := mail.NewSingleEmail(from, subject, to, body, "")

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	return nil
}
