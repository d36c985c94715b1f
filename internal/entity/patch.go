package entity

import "time"

// DeliveryPatch carries the column updates that ride along with a state
// transition. Nil fields are left untouched; ClearNextRetry wins over
// NextRetryAt.
type DeliveryPatch struct {
	Attempts       *int
	LastError      *string
	LastAttemptAt  *time.Time
	NextRetryAt    *time.Time
	ClearNextRetry bool
	DeliveredAt    *time.Time
	ReadAt         *time.Time
	ConfirmedAt    *time.Time
}

// InboxFilter narrows a recipient inbox page.
type InboxFilter struct {
	Type       *NotificationType
	UnreadOnly bool
	Limit      uint64
	Offset     uint64
}
