package entity

import (
	"time"

	"github.com/google/uuid"
)

// Recipient carries the per-channel addressing and opt-in preferences the
// channel selector needs. The rest of the employee record lives outside the
// engine.
type Recipient struct {
	ID          uuid.UUID   `json:"id"`
	Email       string      `json:"email,omitempty"`
	Phone       string      `json:"phone,omitempty"`
	DeviceToken string      `json:"device_token,omitempty"`
	WhatsApp    string      `json:"whatsapp,omitempty"`
	Channels    ChannelMask `json:"channels"`
}

// Address returns the transport address for a channel, empty when the
// recipient has none on file. In-app needs no address: the recipient id is
// the address.
func (r *Recipient) Address(c Channel) string {
	switch c {
	case ChannelInApp:
		return r.ID.String()
	case ChannelEmail:
		return r.Email
	case ChannelSMS:
		return r.Phone
	case ChannelPush:
		return r.DeviceToken
	case ChannelWhatsApp:
		return r.WhatsApp
	}
	return ""
}

// TypePolicy is the data-driven per-type channel rule: ForcedChannels are
// attempted even when the recipient muted them, unless Suppressible.
type TypePolicy struct {
	Type           NotificationType `json:"type"`
	ForcedChannels ChannelMask      `json:"forced_channels"`
	Suppressible   bool             `json:"suppressible"`
}

// InboxEntry is the recipient-facing materialization of an in-app delivery.
type InboxEntry struct {
	ID             uuid.UUID        `json:"id"`
	NotificationID uuid.UUID        `json:"notification_id"`
	RecipientID    uuid.UUID        `json:"recipient_id"`
	Type           NotificationType `json:"type"`
	Title          string           `json:"title"`
	Body           string           `json:"body"`
	Unread         bool             `json:"unread"`
	CreatedAt      time.Time        `json:"created_at"`
}
