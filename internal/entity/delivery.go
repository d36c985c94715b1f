package entity

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryState is the per-(notification, recipient, channel) delivery
// lifecycle. Transitions go through CanTransition and the store's versioned
// update; nothing else mutates a record's state.
type DeliveryState string

const (
	DeliveryPending    DeliveryState = "pending"
	DeliveryQueued     DeliveryState = "queued"
	DeliveryDelivering DeliveryState = "delivering"
	DeliveryDelivered  DeliveryState = "delivered"
	DeliveryRead       DeliveryState = "read"
	DeliveryConfirmed  DeliveryState = "confirmed"
	DeliveryFailed     DeliveryState = "failed"
	DeliveryRetrying   DeliveryState = "retrying"
	DeliveryExpired    DeliveryState = "expired"
	DeliverySuperseded DeliveryState = "superseded"
)

func (s DeliveryState) IsValid() bool {
	_, ok := deliveryTransitions[s]
	return ok
}

func (s DeliveryState) String() string {
	return string(s)
}

// Terminal reports whether the retry scheduler is done with the record.
// Delivered counts: read/confirmed only enrich it, they never reopen it.
func (s DeliveryState) Terminal() bool {
	switch s {
	case DeliveryDelivered, DeliveryRead, DeliveryConfirmed, DeliveryExpired, DeliverySuperseded:
		return true
	}
	return false
}

// Supersedable lists the states an acknowledgment on a sibling channel may
// collapse into "superseded": anything still waiting for, or between,
// attempts. In-flight delivering calls are left to finish.
func (s DeliveryState) Supersedable() bool {
	switch s {
	case DeliveryPending, DeliveryQueued, DeliveryFailed, DeliveryRetrying:
		return true
	}
	return false
}

var deliveryTransitions = map[DeliveryState][]DeliveryState{
	DeliveryPending:    {DeliveryQueued, DeliveryExpired, DeliverySuperseded},
	DeliveryQueued:     {DeliveryDelivering, DeliveryExpired, DeliverySuperseded},
	DeliveryDelivering: {DeliveryDelivered, DeliveryFailed},
	DeliveryDelivered:  {DeliveryRead, DeliveryConfirmed},
	DeliveryRead:       {DeliveryConfirmed},
	DeliveryConfirmed:  {},
	// A read receipt can outrun the engine's own outcome: the send timed out
	// engine-side but reached the device. Failed/retrying therefore accept
	// read/confirmed as proof of delivery.
	DeliveryFailed:   {DeliveryRetrying, DeliveryExpired, DeliverySuperseded, DeliveryRead, DeliveryConfirmed},
	DeliveryRetrying: {DeliveryDelivering, DeliveryExpired, DeliverySuperseded, DeliveryRead, DeliveryConfirmed},
	DeliveryExpired:    {},
	DeliverySuperseded: {},
}

// CanTransition reports whether from -> to is legal per the state machine.
func CanTransition(from, to DeliveryState) bool {
	for _, next := range deliveryTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionSources returns every state from which `to` is reachable.
// The store uses it to build the guarded UPDATE's state predicate.
func TransitionSources(to DeliveryState) []DeliveryState {
	var from []DeliveryState
	for _, s := range []DeliveryState{
		DeliveryPending, DeliveryQueued, DeliveryDelivering, DeliveryDelivered,
		DeliveryRead, DeliveryConfirmed, DeliveryFailed, DeliveryRetrying,
		DeliveryExpired, DeliverySuperseded,
	} {
		if CanTransition(s, to) {
			from = append(from, s)
		}
	}
	return from
}

// DeliveryRecord is one (notification, recipient, channel) attempt lineage.
// Version implements optimistic concurrency: every state transition bumps it,
// and a writer holding a stale version loses with ErrStateConflict.
type DeliveryRecord struct {
	ID             uuid.UUID     `json:"id"`
	NotificationID uuid.UUID     `json:"notification_id"`
	RecipientID    uuid.UUID     `json:"recipient_id"`
	Channel        Channel       `json:"channel"`
	State          DeliveryState `json:"state"`
	Attempts       int           `json:"attempts"`
	MaxAttempts    int           `json:"max_attempts"`
	LastError      *string       `json:"last_error,omitempty"`
	LastAttemptAt  *time.Time    `json:"last_attempt_at,omitempty"`
	NextRetryAt    *time.Time    `json:"next_retry_at,omitempty"`
	DeliveredAt    *time.Time    `json:"delivered_at,omitempty"`
	ReadAt         *time.Time    `json:"read_at,omitempty"`
	ConfirmedAt    *time.Time    `json:"confirmed_at,omitempty"`
	Version        int64         `json:"version"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`

	// NotificationExpiresAt is the parent notification's deadline, populated
	// by the claim query so the scheduler can decide retry-vs-expire without
	// a second lookup. Not a column of the record itself.
	NotificationExpiresAt *time.Time `json:"-"`
}

// PastDeadline reports whether the parent notification's expiry (when known)
// has passed.
func (d *DeliveryRecord) PastDeadline(now time.Time) bool {
	return d.NotificationExpiresAt != nil && !now.Before(*d.NotificationExpiresAt)
}

// AttemptsExhausted reports whether another attempt would exceed the
// channel's configured cap.
func (d *DeliveryRecord) AttemptsExhausted() bool {
	return d.Attempts >= d.MaxAttempts
}
