package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hrnotify/internal/entity"
	"hrnotify/internal/metric"
	"hrnotify/pkg/rabbit"
)

// Ingress is the engine's front door. It validates a submission, persists
// the notification (so it survives a restart), and hands the id to the
// dispatch queue. Rejections are synchronous; the engine never blocks a
// business caller on delivery.
type Ingress struct {
	notifications NotificationStore
	recipients    RecipientStore
	selector      *Selector
	queue         QueuePublisher
	metrics       *metric.Metrics
	log           zerolog.Logger
	now           func() time.Time
}

func NewIngress(
	notifications NotificationStore,
	recipients RecipientStore,
	selector *Selector,
	queue QueuePublisher,
	metrics *metric.Metrics,
	log zerolog.Logger,
) *Ingress {
	return &Ingress{
		notifications: notifications,
		recipients:    recipients,
		selector:      selector,
		queue:         queue,
		metrics:       metrics,
		log:           log.With().Str("component", "ingress").Logger(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

type SubmitRequest struct {
	Type       entity.NotificationType
	Recipients []uuid.UUID
	Title      string
	Body       string
	Meta       map[string]string
	Channels   entity.ChannelMask
	Priority   entity.Priority
	ExpiresAt  *time.Time
}

// Submit accepts or rejects a notification. On acceptance the notification
// is durable and queued for dispatch; nothing has been sent yet.
func (s *Ingress) Submit(ctx context.Context, req SubmitRequest) (uuid.UUID, error) {
	const op = "service.Ingress.Submit"

	if err := s.validate(req); err != nil {
		s.metrics.Rejected()
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	recipients, err := s.recipients.ListByIDs(ctx, req.Recipients)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: load recipients: %w", op, err)
	}
	if len(recipients) != len(req.Recipients) {
		s.metrics.Rejected()
		return uuid.Nil, fmt.Errorf("%s: %w", op, entity.ErrRecipientNotFound)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: new v7 uuid: %w", op, err)
	}

	notification := &entity.Notification{
		ID:         id,
		Type:       req.Type,
		Recipients: req.Recipients,
		Payload:    entity.Payload{Title: req.Title, Body: req.Body, Meta: req.Meta},
		Channels:   req.Channels,
		Priority:   req.Priority,
		Dispatch:   entity.DispatchQueued,
		CreatedAt:  s.now(),
		ExpiresAt:  req.ExpiresAt,
	}

	// Reject up front when no recipient resolves to any channel: a
	// notification nobody can receive must fail loudly at ingress, not
	// dissolve silently later.
	if !s.resolvesAnywhere(notification, recipients) {
		s.metrics.Rejected()
		return uuid.Nil, fmt.Errorf("%s: %w", op, entity.ErrNoChannels)
	}

	if err := s.notifications.Create(ctx, notification); err != nil {
		return uuid.Nil, fmt.Errorf("%s: persist: %w", op, err)
	}

	body, err := json.Marshal(QueueMessage{NotificationID: id})
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: marshal queue message: %w", op, err)
	}

	if err := s.queue.Publish(ctx, body, uint8(notification.Priority)); err != nil {
		// The notification row stays for audit but is excluded from
		// recovery; the caller is told to back off and resubmit.
		if markErr := s.notifications.SetDispatchStatus(ctx, id, entity.DispatchRejected); markErr != nil {
			s.log.Error().Err(markErr).Str("notification_id", id.String()).Msg("mark rejected failed")
		}
		s.metrics.Rejected()
		if errors.Is(err, rabbit.ErrPublishRejected) {
			return uuid.Nil, fmt.Errorf("%s: %w", op, entity.ErrQueueFull)
		}
		return uuid.Nil, fmt.Errorf("%s: publish: %w", op, err)
	}

	s.metrics.Submitted()
	s.log.Info().
		Str("op", op).
		Str("notification_id", id.String()).
		Str("type", string(req.Type)).
		Int("recipients", len(req.Recipients)).
		Str("channels", req.Channels.String()).
		Msg("notification accepted")

	return id, nil
}

func (s *Ingress) validate(req SubmitRequest) error {
	if len(req.Recipients) == 0 {
		return entity.ErrEmptyRecipients
	}
	for _, r := range req.Recipients {
		if r == uuid.Nil {
			return fmt.Errorf("nil recipient id: %w", entity.ErrInvalidData)
		}
	}
	if !req.Type.IsValid() {
		return fmt.Errorf("unknown type %q: %w", req.Type, entity.ErrInvalidData)
	}
	if req.Body == "" {
		return fmt.Errorf("body is required: %w", entity.ErrInvalidData)
	}
	if req.Channels.IsEmpty() {
		return entity.ErrNoChannels
	}
	if !req.Priority.IsValid() {
		return fmt.Errorf("priority out of range: %w", entity.ErrInvalidData)
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(s.now()) {
		return fmt.Errorf("expiry already passed: %w", entity.ErrInvalidData)
	}
	return nil
}

func (s *Ingress) resolvesAnywhere(n *entity.Notification, recipients []entity.Recipient) bool {
	for i := range recipients {
		if !s.selector.Resolve(n, &recipients[i]).IsEmpty() {
			return true
		}
	}
	return false
}
