// Package sender implements the channel adapters: one transport per
// delivery channel, all satisfying the service.Adapter contract.
package sender

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"

	"hrnotify/internal/entity"
)

// EmailSender delivers notifications over SMTP.
type EmailSender struct {
	dialer *gomail.Dialer
	from   string
	log    zerolog.Logger
}

func NewEmailSender(smtpHost string, smtpPort int, username, password, from string, log zerolog.Logger) *EmailSender {
	return &EmailSender{
		dialer: gomail.NewDialer(smtpHost, smtpPort, username, password),
		from:   from,
		log:    log.With().Str("adapter", "email").Logger(),
	}
}

func (s *EmailSender) Channel() entity.Channel { return entity.ChannelEmail }

func (s *EmailSender) Send(ctx context.Context, rcp entity.Recipient, n entity.Notification) error {
	const op = "sender.EmailSender.Send"

	msg := gomail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", rcp.Email)
	msg.SetHeader("Subject", n.Payload.Title)
	msg.SetBody("text/plain", n.Payload.Body)

	// gomail has no context support; honor cancellation around the dial.
	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(msg) }()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	s.log.Debug().
		Str("to", rcp.Email).
		Str("notification_id", n.ID.String()).
		Msg("email sent")

	return nil
}
