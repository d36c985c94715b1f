package sender

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hrnotify/internal/entity"
)

// InboxWriter is the slice of the inbox store the in-app adapter needs.
type InboxWriter interface {
	Insert(ctx context.Context, e *entity.InboxEntry) error
}

// InAppSender delivers by writing an inbox entry. Delivery is local and
// durable, so this channel effectively never fails once the database is up.
type InAppSender struct {
	inbox InboxWriter
	log   zerolog.Logger
}

func NewInAppSender(inbox InboxWriter, log zerolog.Logger) *InAppSender {
	return &InAppSender{
		inbox: inbox,
		log:   log.With().Str("adapter", "in_app").Logger(),
	}
}

func (s *InAppSender) Channel() entity.Channel { return entity.ChannelInApp }

func (s *InAppSender) Send(ctx context.Context, rcp entity.Recipient, n entity.Notification) error {
	const op = "sender.InAppSender.Send"

	entry := &entity.InboxEntry{
		ID:             uuid.New(),
		NotificationID: n.ID,
		RecipientID:    rcp.ID,
		Type:           n.Type,
		Title:          n.Payload.Title,
		Body:           n.Payload.Body,
		Unread:         true,
		CreatedAt:      n.CreatedAt,
	}

	if err := s.inbox.Insert(ctx, entry); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
