package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hrnotify/internal/entity"
	"hrnotify/internal/metric"
)

// AckKind is the acknowledgment level a recipient reports back.
type AckKind string

const (
	AckRead      AckKind = "read"
	AckConfirmed AckKind = "confirmed"
)

// Acks applies recipient acknowledgments to delivery records and performs
// the fan-in: the first ack on any channel supersedes that recipient's
// still-undelivered siblings, so nobody gets an SMS about a notice they
// already read in the app.
type Acks struct {
	deliveries DeliveryStore
	inbox      InboxStore
	cache      StatusCache
	policies   ChannelPolicies
	metrics    *metric.Metrics
	log        zerolog.Logger
	now        func() time.Time
}

func NewAcks(
	deliveries DeliveryStore,
	inbox InboxStore,
	cache StatusCache,
	policies ChannelPolicies,
	metrics *metric.Metrics,
	log zerolog.Logger,
) *Acks {
	return &Acks{
		deliveries: deliveries,
		inbox:      inbox,
		cache:      cache,
		policies:   policies,
		metrics:    metrics,
		log:        log.With().Str("component", "acks").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Ack records a read or confirmed acknowledgment for one delivery lineage.
// Idempotent: re-acking at or below the current level is a no-op.
func (a *Acks) Ack(ctx context.Context, notificationID, recipientID uuid.UUID, channel entity.Channel, kind AckKind) error {
	const op = "service.Acks.Ack"

	if kind != AckRead && kind != AckConfirmed {
		return fmt.Errorf("%s: unknown ack kind %q: %w", op, kind, entity.ErrInvalidData)
	}
	if !a.policies.SupportsAck(channel) {
		return fmt.Errorf("%s: channel %s: %w", op, channel, entity.ErrAckUnsupported)
	}

	rec, err := a.deliveries.GetByTuple(ctx, notificationID, recipientID, channel)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	target := entity.DeliveryRead
	if kind == AckConfirmed {
		target = entity.DeliveryConfirmed
	}

	applied, err := a.advance(ctx, rec, target)
	if err != nil {
		if errors.Is(err, entity.ErrStateConflict) && !rec.State.Terminal() {
			// The recipient saw the notification even though this record's
			// own transition lost; the siblings stand down regardless.
			a.supersedeSiblings(ctx, notificationID, recipientID, channel)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if !applied {
		return nil
	}

	a.metrics.Ack(channel)
	a.supersedeSiblings(ctx, notificationID, recipientID, channel)

	if channel == entity.ChannelInApp {
		if err := a.inbox.MarkRead(ctx, notificationID, recipientID); err != nil &&
			!errors.Is(err, entity.ErrDataNotFound) {
			a.log.Warn().Err(err).
				Str("notification_id", notificationID.String()).
				Str("recipient_id", recipientID.String()).
				Msg("inbox mark read failed")
		}
	}

	if a.cache != nil {
		if err := a.cache.InvalidateStatus(ctx, notificationID); err != nil {
			a.log.Debug().Err(err).Str("notification_id", notificationID.String()).Msg("status cache invalidation failed")
		}
	}

	a.log.Info().
		Str("op", op).
		Str("notification_id", notificationID.String()).
		Str("recipient_id", recipientID.String()).
		Str("channel", string(channel)).
		Str("kind", string(kind)).
		Msg("acknowledgment recorded")

	return nil
}

// advance moves a record toward the target ack state. Returns false when the
// record is already at or past the target.
func (a *Acks) advance(ctx context.Context, rec *entity.DeliveryRecord, target entity.DeliveryState) (bool, error) {
	now := a.now()
	patch := entity.DeliveryPatch{}

	switch rec.State {
	case entity.DeliveryConfirmed:
		return false, nil
	case entity.DeliveryRead:
		if target == entity.DeliveryRead {
			return false, nil
		}
	case entity.DeliveryDelivered:
	case entity.DeliveryFailed, entity.DeliveryRetrying:
		// The engine saw an error, the device saw the message. The ack is
		// the proof of delivery; record it and leave the retry loop.
		patch.DeliveredAt = &now
		patch.ClearNextRetry = true
	default:
		// Nothing was handed to the transport yet, or the lineage already
		// closed another way.
		return false, fmt.Errorf("record in state %s: %w", rec.State, entity.ErrStateConflict)
	}

	switch target {
	case entity.DeliveryRead:
		patch.ReadAt = &now
	case entity.DeliveryConfirmed:
		patch.ConfirmedAt = &now
		if rec.ReadAt == nil {
			patch.ReadAt = &now
		}
	}

	if err := a.deliveries.Transition(ctx, rec.ID, rec.Version, target, patch); err != nil {
		return false, err
	}
	return true, nil
}

// supersedeSiblings cancels the recipient's still-pending lineages for the
// same notification. Guarded in the store: a sibling that reached a terminal
// state concurrently stays where it is.
func (a *Acks) supersedeSiblings(ctx context.Context, notificationID, recipientID uuid.UUID, keep entity.Channel) {
	count, err := a.deliveries.SupersedeSiblings(ctx, notificationID, recipientID, keep, a.now())
	if err != nil {
		a.log.Error().Err(err).
			Str("notification_id", notificationID.String()).
			Str("recipient_id", recipientID.String()).
			Msg("supersede siblings failed")
		return
	}
	if count > 0 {
		a.metrics.Superseded(keep, count)
		a.log.Info().
			Str("notification_id", notificationID.String()).
			Str("recipient_id", recipientID.String()).
			Str("acked_channel", string(keep)).
			Int64("superseded", count).
			Msg("pending siblings superseded")
	}
}
