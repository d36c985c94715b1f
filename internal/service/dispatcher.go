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
)

// Dispatcher turns one queued notification into its delivery fan-out: one
// record per (recipient, channel) the selector approves. Dispatch is
// idempotent end to end, so a queue redelivery or a crash-recovery rescan
// never duplicates a lineage.
type Dispatcher struct {
	notifications NotificationStore
	deliveries    DeliveryStore
	recipients    RecipientStore
	selector      *Selector
	policies      ChannelPolicies
	log           zerolog.Logger
	now           func() time.Time
}

func NewDispatcher(
	notifications NotificationStore,
	deliveries DeliveryStore,
	recipients RecipientStore,
	selector *Selector,
	policies ChannelPolicies,
	log zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		notifications: notifications,
		deliveries:    deliveries,
		recipients:    recipients,
		selector:      selector,
		policies:      policies,
		log:           log.With().Str("component", "dispatcher").Logger(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// HandleMessage is the rabbit consumer entry point.
func (d *Dispatcher) HandleMessage(ctx context.Context, body []byte) error {
	const op = "service.Dispatcher.HandleMessage"

	var msg QueueMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		// Unparseable message: log and ack, requeueing cannot fix it.
		d.log.Error().Err(err).Str("op", op).Msg("drop malformed queue message")
		return nil
	}

	if err := d.Dispatch(ctx, msg.NotificationID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Dispatch fans a notification out into delivery records and hands them to
// the scheduler's scan set.
func (d *Dispatcher) Dispatch(ctx context.Context, notificationID uuid.UUID) error {
	const op = "service.Dispatcher.Dispatch"

	n, err := d.notifications.GetByID(ctx, notificationID)
	if err != nil {
		if errors.Is(err, entity.ErrDataNotFound) {
			d.log.Warn().Str("op", op).Str("notification_id", notificationID.String()).Msg("queued notification vanished")
			return nil
		}
		return fmt.Errorf("%s: load notification: %w", op, err)
	}

	switch n.Dispatch {
	case entity.DispatchDispatched:
		// Redelivered message; fan-out already completed.
		return nil
	case entity.DispatchRejected:
		return nil
	}

	recipients, err := d.recipients.ListByIDs(ctx, n.Recipients)
	if err != nil {
		return fmt.Errorf("%s: load recipients: %w", op, err)
	}

	now := d.now()
	records := d.fanOut(n, recipients, now)

	created, err := d.deliveries.CreateFanOut(ctx, records)
	if err != nil {
		return fmt.Errorf("%s: create fan-out: %w", op, err)
	}

	if err := d.deliveries.PromotePending(ctx, notificationID, now); err != nil {
		return fmt.Errorf("%s: promote pending: %w", op, err)
	}

	if err := d.notifications.SetDispatchStatus(ctx, notificationID, entity.DispatchDispatched); err != nil {
		return fmt.Errorf("%s: mark dispatched: %w", op, err)
	}

	d.log.Info().
		Str("op", op).
		Str("notification_id", notificationID.String()).
		Int("lineages", len(records)).
		Int64("created", created).
		Int64("resumed", int64(len(records))-created).
		Msg("notification dispatched")

	return nil
}

func (d *Dispatcher) fanOut(n *entity.Notification, recipients []entity.Recipient, now time.Time) []entity.DeliveryRecord {
	var records []entity.DeliveryRecord
	for i := range recipients {
		rcp := &recipients[i]
		for _, channel := range d.selector.Resolve(n, rcp).Channels() {
			records = append(records, entity.DeliveryRecord{
				ID:             uuid.New(),
				NotificationID: n.ID,
				RecipientID:    rcp.ID,
				Channel:        channel,
				State:          entity.DeliveryPending,
				MaxAttempts:    d.policies[channel].MaxAttempts,
				CreatedAt:      now,
				UpdatedAt:      now,
			})
		}
	}
	return records
}

// Recover re-dispatches notifications whose fan-out never completed before a
// restart. Safe to run unconditionally: Dispatch is idempotent.
func (d *Dispatcher) Recover(ctx context.Context, limit uint64) (int, error) {
	const op = "service.Dispatcher.Recover"

	ids, err := d.notifications.ListUndispatched(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	for _, id := range ids {
		if err := d.Dispatch(ctx, id); err != nil {
			return 0, fmt.Errorf("%s: dispatch %s: %w", op, id, err)
		}
	}

	if len(ids) > 0 {
		d.log.Info().Str("op", op).Int("recovered", len(ids)).Msg("recovery scan complete")
	}

	return len(ids), nil
}
