package service

import (
	"hrnotify/internal/entity"
)

// Selector computes the channel set for one (notification, recipient) pair:
// requested mask ∩ recipient opt-ins ∩ system-enabled ∩ channels with a
// usable address, then the data-driven type policy on top. Pure function of
// its inputs: recomputing after a crash reproduces the same fan-out.
type Selector struct {
	enabled  entity.ChannelMask
	policies map[entity.NotificationType]entity.TypePolicy
}

func NewSelector(enabled entity.ChannelMask, policies []entity.TypePolicy) *Selector {
	byType := make(map[entity.NotificationType]entity.TypePolicy, len(policies))
	for _, p := range policies {
		byType[p.Type] = p
	}
	return &Selector{enabled: enabled, policies: byType}
}

// Resolve returns the channels to attempt for one recipient.
func (s *Selector) Resolve(n *entity.Notification, rcp *entity.Recipient) entity.ChannelMask {
	mask := n.Channels & rcp.Channels & s.enabled
	mask = s.withAddress(mask, rcp)

	pol, ok := s.policies[n.Type]
	if !ok || pol.ForcedChannels.IsEmpty() {
		return mask
	}

	forced := pol.ForcedChannels & s.enabled
	if pol.Suppressible {
		// The recipient's mute wins for suppressible types.
		forced &= rcp.Channels
	}
	return mask | s.withAddress(forced, rcp)
}

func (s *Selector) withAddress(mask entity.ChannelMask, rcp *entity.Recipient) entity.ChannelMask {
	for _, c := range mask.Channels() {
		if rcp.Address(c) == "" {
			mask = mask.Without(c)
		}
	}
	return mask
}
