// Package service holds the engine core: ingress, channel selection,
// dispatch fan-out, the retry scheduler and the acknowledgment tracker.
// Stores and adapters are consumed through interfaces declared here;
// the repository and sender packages implement them.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"hrnotify/internal/entity"
	"hrnotify/pkg/backoff"
)

type (
	// NotificationStore persists logical notifications.
	NotificationStore interface {
		Create(ctx context.Context, n *entity.Notification) error
		GetByID(ctx context.Context, id uuid.UUID) (*entity.Notification, error)
		SetDispatchStatus(ctx context.Context, id uuid.UUID, status entity.DispatchStatus) error
		ListUndispatched(ctx context.Context, limit uint64) ([]uuid.UUID, error)
		Prune(ctx context.Context, olderThan time.Time) (int64, error)
	}

	// DeliveryStore owns delivery records. Transition and the bulk updates
	// are guarded (version + legal source states); callers must treat
	// ErrStateConflict as "someone else won, re-read or drop".
	DeliveryStore interface {
		CreateFanOut(ctx context.Context, records []entity.DeliveryRecord) (int64, error)
		PromotePending(ctx context.Context, notificationID uuid.UUID, now time.Time) error
		ClaimDue(ctx context.Context, limit uint64, now time.Time) ([]entity.DeliveryRecord, error)
		Transition(ctx context.Context, id uuid.UUID, version int64, to entity.DeliveryState, patch entity.DeliveryPatch) error
		Get(ctx context.Context, id uuid.UUID) (*entity.DeliveryRecord, error)
		GetByTuple(ctx context.Context, notificationID, recipientID uuid.UUID, channel entity.Channel) (*entity.DeliveryRecord, error)
		ListByNotification(ctx context.Context, notificationID uuid.UUID) ([]entity.DeliveryRecord, error)
		Siblings(ctx context.Context, notificationID, recipientID uuid.UUID) ([]entity.DeliveryRecord, error)
		SupersedeSiblings(ctx context.Context, notificationID, recipientID uuid.UUID, keep entity.Channel, now time.Time) (int64, error)
		ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
		ReleaseStale(ctx context.Context, claimedBefore, now time.Time) (int64, error)
		ForceRetry(ctx context.Context, id uuid.UUID, now time.Time) error
		ForceExpire(ctx context.Context, id uuid.UUID, now time.Time) error
	}

	RecipientStore interface {
		Get(ctx context.Context, id uuid.UUID) (*entity.Recipient, error)
		ListByIDs(ctx context.Context, ids []uuid.UUID) ([]entity.Recipient, error)
	}

	InboxStore interface {
		Insert(ctx context.Context, e *entity.InboxEntry) error
		List(ctx context.Context, recipientID uuid.UUID, filter entity.InboxFilter) ([]entity.InboxEntry, error)
		MarkRead(ctx context.Context, notificationID, recipientID uuid.UUID) error
	}

	// StatusCache is the read-through cache for delivery status queries.
	StatusCache interface {
		GetStatus(ctx context.Context, notificationID uuid.UUID) ([]entity.DeliveryRecord, error)
		SetStatus(ctx context.Context, notificationID uuid.UUID, records []entity.DeliveryRecord) error
		InvalidateStatus(ctx context.Context, notificationID uuid.UUID) error
	}

	// QueuePublisher is the ingress queue's publish side. A full queue is
	// reported as rabbit.ErrPublishRejected by the implementation.
	QueuePublisher interface {
		Publish(ctx context.Context, body []byte, priority uint8) error
	}

	// Adapter is the channel transport contract. Send returning nil means
	// the transport accepted the message; any error (including a deadline)
	// is a transport failure subject to retry policy.
	Adapter interface {
		Channel() entity.Channel
		Send(ctx context.Context, rcp entity.Recipient, n entity.Notification) error
	}

	// Adapters indexes the wired transports by channel.
	Adapters map[entity.Channel]Adapter
)

// QueueMessage is the envelope the ingress publishes and the dispatcher
// consumes. Only the id travels; the notification itself is already durable.
type QueueMessage struct {
	NotificationID uuid.UUID `json:"notification_id"`
}

// ChannelPolicy is the per-channel row of the capability/configuration
// table: timeout, backoff shape, attempt cap, worker sizing. Consulted by
// the scheduler and the ack tracker instead of per-channel branching.
type ChannelPolicy struct {
	Enabled     bool
	Workers     int
	Timeout     time.Duration
	MaxAttempts int
	Backoff     backoff.Policy
	RatePerSec  float64
	Burst       int
	SupportsAck bool
}

type ChannelPolicies map[entity.Channel]ChannelPolicy

// EnabledMask folds the policy table into the system-wide enabled set the
// selector intersects with.
func (p ChannelPolicies) EnabledMask() entity.ChannelMask {
	var mask entity.ChannelMask
	for c, pol := range p {
		if pol.Enabled {
			mask = mask.With(c)
		}
	}
	return mask
}

// ackCapable marks channels whose transports deliver read receipts back to
// the engine. Intrinsic to the transport, not operator-tunable.
var ackCapable = map[entity.Channel]bool{
	entity.ChannelInApp: true,
	entity.ChannelPush:  true,
}

// SupportsAck reports the effective ack capability for a channel.
func (p ChannelPolicies) SupportsAck(c entity.Channel) bool {
	pol, ok := p[c]
	if !ok {
		return false
	}
	return pol.SupportsAck || ackCapable[c]
}
