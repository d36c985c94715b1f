package entity

import (
	"fmt"
	"strings"
)

// Channel is a notification transport category. The delivery method behind a
// channel (socket push vs. polling for in-app, which SMS gateway, etc.) is an
// adapter concern and never leaks into the engine.
type Channel string

const (
	ChannelInApp    Channel = "IN_APP"
	ChannelEmail    Channel = "EMAIL"
	ChannelSMS      Channel = "SMS"
	ChannelPush     Channel = "PUSH"
	ChannelWhatsApp Channel = "WHATSAPP"
)

// AllChannels lists every transport the engine knows about, in mask bit order.
var AllChannels = []Channel{ChannelInApp, ChannelEmail, ChannelSMS, ChannelPush, ChannelWhatsApp}

func (c Channel) IsValid() bool {
	switch c {
	case ChannelInApp, ChannelEmail, ChannelSMS, ChannelPush, ChannelWhatsApp:
		return true
	}
	return false
}

func (c Channel) String() string {
	return string(c)
}

// ChannelMask is a bitwise set of channels.
type ChannelMask uint8

const (
	MaskInApp ChannelMask = 1 << iota
	MaskEmail
	MaskSMS
	MaskPush
	MaskWhatsApp

	MaskNone ChannelMask = 0
	MaskAll  ChannelMask = MaskInApp | MaskEmail | MaskSMS | MaskPush | MaskWhatsApp
)

var channelBits = map[Channel]ChannelMask{
	ChannelInApp:    MaskInApp,
	ChannelEmail:    MaskEmail,
	ChannelSMS:      MaskSMS,
	ChannelPush:     MaskPush,
	ChannelWhatsApp: MaskWhatsApp,
}

// Bit returns the mask bit for a single channel, or MaskNone for an unknown one.
func (c Channel) Bit() ChannelMask {
	return channelBits[c]
}

func (m ChannelMask) Has(c Channel) bool {
	return m&c.Bit() != 0
}

func (m ChannelMask) With(c Channel) ChannelMask {
	return m | c.Bit()
}

func (m ChannelMask) Without(c Channel) ChannelMask {
	return m &^ c.Bit()
}

func (m ChannelMask) IsEmpty() bool {
	return m&MaskAll == 0
}

// Channels expands the mask into channels in stable bit order, so that
// recomputation after a restart yields the same fan-out order.
func (m ChannelMask) Channels() []Channel {
	var out []Channel
	for _, c := range AllChannels {
		if m.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

func (m ChannelMask) String() string {
	if m.IsEmpty() {
		return "NONE"
	}
	names := make([]string, 0, len(AllChannels))
	for _, c := range m.Channels() {
		names = append(names, string(c))
	}
	return strings.Join(names, "|")
}

// ParseChannelMask accepts "ALL", a single channel name, or a |-separated
// list ("IN_APP|EMAIL").
func ParseChannelMask(s string) (ChannelMask, error) {
	if strings.EqualFold(strings.TrimSpace(s), "ALL") {
		return MaskAll, nil
	}
	var mask ChannelMask
	for _, part := range strings.Split(s, "|") {
		name := Channel(strings.ToUpper(strings.TrimSpace(part)))
		if name == "" {
			continue
		}
		if !name.IsValid() {
			return MaskNone, fmt.Errorf("parse channel mask %q: %w", s, ErrInvalidData)
		}
		mask = mask.With(name)
	}
	return mask, nil
}
