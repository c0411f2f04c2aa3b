// Package notify delivers outbox notifications over the channels a user can be reached on.
package notify

import (
	"context"
	"errors"
	"fmt"

	"carrental/internal/models"

	"github.com/rs/zerolog"
)

// ErrNoChannel means no configured sender can reach the user.
var ErrNoChannel = errors.New("no delivery channel for user")

// Sender is one delivery channel.
type Sender interface {
	Channel() string
	// Accepts reports whether the sender can reach the user.
	Accepts(user *models.User) bool
	Send(ctx context.Context, user *models.User, subject, body string) error
}

type UserLookup interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// Router picks the first sender, in registration order, that accepts the recipient.
type Router struct {
	users   UserLookup
	senders []Sender
	logger  *zerolog.Logger
}

func NewRouter(users UserLookup, logger *zerolog.Logger, senders ...Sender) *Router {
	return &Router{users: users, senders: senders, logger: logger}
}

// Deliver sends the notification and returns the channel used.
func (r *Router) Deliver(ctx context.Context, n *models.Notification) (string, error) {
	user, err := r.users.GetUser(ctx, n.UserID)
	if err != nil {
		return "", fmt.Errorf("resolve recipient %d: %w", n.UserID, err)
	}

	for _, s := range r.senders {
		if !s.Accepts(user) {
			continue
		}
		if err := s.Send(ctx, user, n.Subject, n.Body); err != nil {
			return s.Channel(), fmt.Errorf("%s: %w", s.Channel(), err)
		}
		r.logger.Debug().
			Int64("notification_id", n.ID).
			Int64("user_id", user.ID).
			Str("channel", s.Channel()).
			Msg("Notification delivered")
		return s.Channel(), nil
	}
	return "", ErrNoChannel
}
