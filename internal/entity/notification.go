package entity

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType is the closed taxonomy of logical HR events.
type NotificationType string

const (
	TypeAttendance  NotificationType = "ATTENDANCE"
	TypeLeave       NotificationType = "LEAVE"
	TypePayroll     NotificationType = "PAYROLL"
	TypePerformance NotificationType = "PERFORMANCE"
	TypeProject     NotificationType = "PROJECT"
	TypeGrievance   NotificationType = "GRIEVANCE"
	TypeSystem      NotificationType = "SYSTEM"
	TypeGeneral     NotificationType = "GENERAL"
)

func (t NotificationType) IsValid() bool {
	switch t {
	case TypeAttendance, TypeLeave, TypePayroll, TypePerformance,
		TypeProject, TypeGrievance, TypeSystem, TypeGeneral:
		return true
	}
	return false
}

type Priority int8

const (
	PriorityLow      Priority = 0
	PriorityNormal   Priority = 5
	PriorityHigh     Priority = 8
	PriorityCritical Priority = 10

	PriorityDefault = PriorityNormal
)

func (p Priority) IsValid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

// DispatchStatus tracks how far a notification got through fan-out. It exists
// for crash recovery only: a restart re-dispatches everything still "queued",
// relying on the delivery store's uniqueness for idempotency.
type DispatchStatus string

const (
	DispatchQueued     DispatchStatus = "queued"
	DispatchDispatched DispatchStatus = "dispatched"
	DispatchRejected   DispatchStatus = "rejected"
)

// Payload is what a channel adapter renders for the recipient.
type Payload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// Notification is one logical event to deliver. Immutable once queued:
// corrections are a new notification, never a mutation.
type Notification struct {
	ID         uuid.UUID        `json:"id"`
	Type       NotificationType `json:"type"`
	Recipients []uuid.UUID      `json:"recipients"`
	Payload    Payload          `json:"payload"`
	Channels   ChannelMask      `json:"channels"`
	Priority   Priority         `json:"priority"`
	Dispatch   DispatchStatus   `json:"dispatch"`
	CreatedAt  time.Time        `json:"created_at"`
	ExpiresAt  *time.Time       `json:"expires_at,omitempty"`
}

// Expired reports whether the delivery deadline has passed. A nil deadline
// never expires.
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && !now.Before(*n.ExpiresAt)
}
