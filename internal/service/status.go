package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hrnotify/internal/entity"
)

const (
	_defaultInboxLimit = 20
	_maxInboxLimit     = 100
)

// Status serves delivery state queries, the in-app inbox, and the two
// operator overrides. Reads go through the cache; every write path in the
// engine invalidates it.
type Status struct {
	notifications NotificationStore
	deliveries    DeliveryStore
	inbox         InboxStore
	cache         StatusCache
	log           zerolog.Logger
}

func NewStatus(
	notifications NotificationStore,
	deliveries DeliveryStore,
	inbox InboxStore,
	cache StatusCache,
	log zerolog.Logger,
) *Status {
	return &Status{
		notifications: notifications,
		deliveries:    deliveries,
		inbox:         inbox,
		cache:         cache,
		log:           log.With().Str("component", "status").Logger(),
	}
}

// GetDeliveryStatus returns every delivery record spawned by a notification.
func (s *Status) GetDeliveryStatus(ctx context.Context, notificationID uuid.UUID) ([]entity.DeliveryRecord, error) {
	const op = "service.Status.GetDeliveryStatus"

	if s.cache != nil {
		records, err := s.cache.GetStatus(ctx, notificationID)
		if err == nil {
			return records, nil
		}
		if !errors.Is(err, entity.ErrDataNotFound) {
			s.log.Warn().Err(err).Str("op", op).Msg("status cache read failed")
		}
	}

	if _, err := s.notifications.GetByID(ctx, notificationID); err != nil {
		if errors.Is(err, entity.ErrDataNotFound) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrNotificationNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	records, err := s.deliveries.ListByNotification(ctx, notificationID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if s.cache != nil {
		if err := s.cache.SetStatus(ctx, notificationID, records); err != nil {
			s.log.Debug().Err(err).Str("op", op).Msg("status cache write failed")
		}
	}

	return records, nil
}

// GetInbox lists a recipient's in-app entries, newest first.
func (s *Status) GetInbox(ctx context.Context, recipientID uuid.UUID, filter entity.InboxFilter) ([]entity.InboxEntry, error) {
	const op = "service.Status.GetInbox"

	if filter.Limit == 0 {
		filter.Limit = _defaultInboxLimit
	}
	if filter.Limit > _maxInboxLimit {
		filter.Limit = _maxInboxLimit
	}

	entries, err := s.inbox.List(ctx, recipientID, filter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return entries, nil
}

// ForceRetry puts a stuck or expired delivery back on the retry schedule
// with a fresh attempt budget.
func (s *Status) ForceRetry(ctx context.Context, deliveryID uuid.UUID) error {
	const op = "service.Status.ForceRetry"

	rec, err := s.deliveries.Get(ctx, deliveryID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.deliveries.ForceRetry(ctx, deliveryID, time.Now().UTC()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.invalidate(ctx, rec.NotificationID)
	s.log.Info().Str("op", op).Str("delivery_id", deliveryID.String()).Msg("operator forced retry")
	return nil
}

// ForceExpire terminates a delivery regardless of its remaining attempts.
func (s *Status) ForceExpire(ctx context.Context, deliveryID uuid.UUID) error {
	const op = "service.Status.ForceExpire"

	rec, err := s.deliveries.Get(ctx, deliveryID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.deliveries.ForceExpire(ctx, deliveryID, time.Now().UTC()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.invalidate(ctx, rec.NotificationID)
	s.log.Info().Str("op", op).Str("delivery_id", deliveryID.String()).Msg("operator forced expiry")
	return nil
}

func (s *Status) invalidate(ctx context.Context, notificationID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateStatus(ctx, notificationID); err != nil {
		s.log.Debug().Err(err).Str("notification_id", notificationID.String()).Msg("status cache invalidation failed")
	}
}
