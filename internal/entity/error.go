package entity

import "errors"

var (
	ErrDataNotFound    = errors.New("data not found")
	ErrConflictingData = errors.New("conflicting data")
	ErrInvalidData     = errors.New("invalid data")

	// Ingress rejections. Surfaced synchronously to the submitting
	// collaborator and never retried by the engine.
	ErrEmptyRecipients = errors.New("recipient set is empty")
	ErrNoChannels      = errors.New("resolved channel set is empty")
	ErrQueueFull       = errors.New("notification queue at capacity")

	ErrNotificationNotFound = errors.New("notification not found")
	ErrDeliveryNotFound     = errors.New("delivery record not found")
	ErrRecipientNotFound    = errors.New("recipient not found")

	// ErrStateConflict means a delivery record transition lost a race with a
	// concurrent writer (or was attempted from a state the machine forbids).
	// The terminal/superseded writer wins; the loser re-reads or drops.
	ErrStateConflict = errors.New("delivery state conflict")

	// ErrAckUnsupported means an acknowledgment arrived for a channel whose
	// adapter has no read-receipt capability.
	ErrAckUnsupported = errors.New("channel does not support acknowledgments")
)
